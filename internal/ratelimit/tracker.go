// Package ratelimit tracks per-provider usage inside fixed windows.
// The counters are advisory: they gate new admissions during fallback
// iteration, they do not cap a call that was already admitted.
package ratelimit

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/efikuta/youtube-knowledge-mcp/internal/metrics"
	"github.com/efikuta/youtube-knowledge-mcp/internal/schedule"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

const windowResetTask = "provider-window-reset"

// Limits declares a provider's per-window ceilings. A zero value means
// the provider publishes no limit for that dimension.
type Limits struct {
	RequestsPerWindow  int64 `yaml:"requests_per_window"`
	SizeUnitsPerWindow int64 `yaml:"size_units_per_window"`
}

type window struct {
	requests  int64
	sizeUnits int64
}

// Config holds configuration for the Tracker.
type Config struct {
	// Window is the reset cadence for all provider counters. Hourly by
	// default; deliberately decoupled from the daily quota reset.
	Window time.Duration `yaml:"window"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Window: time.Hour}
}

// Tracker maintains fixed-window usage counters for every registered
// provider. One mutex covers the whole map; the critical sections are a
// few integer comparisons.
type Tracker struct {
	mu      sync.Mutex
	limits  map[string]Limits
	windows map[string]*window

	logger    *slog.Logger
	stopReset func()
}

// NewTracker creates the tracker and schedules the window reset. A nil
// scheduler skips scheduling; callers then drive ResetWindows themselves.
func NewTracker(cfg Config, sched schedule.Scheduler, logger *slog.Logger) *Tracker {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		limits:  make(map[string]Limits),
		windows: make(map[string]*window),
		logger:  logger,
	}

	if sched != nil {
		t.stopReset = sched.Every(windowResetTask, cfg.Window, func(ctx context.Context) {
			t.ResetWindows(ctx)
		})
	}

	return t
}

// Register declares a provider and its limits. Called once per configured
// provider at startup.
func (t *Tracker) Register(name string, limits Limits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits[name] = limits
	if _, ok := t.windows[name]; !ok {
		t.windows[name] = &window{}
	}
}

// CanUse reports whether the provider has window headroom for one more
// request of the given estimated size. Providers never registered carry
// no declared limits and are always allowed.
func (t *Tracker) CanUse(name string, estimatedSize int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	limits, ok := t.limits[name]
	if !ok {
		return true
	}
	w := t.windows[name]

	if limits.RequestsPerWindow > 0 && w.requests >= limits.RequestsPerWindow {
		return false
	}
	if limits.SizeUnitsPerWindow > 0 && w.sizeUnits+estimatedSize > limits.SizeUnitsPerWindow {
		return false
	}
	return true
}

// RecordUse charges one request of actualSize to the provider's window.
// Unconditional: the admission check already happened.
func (t *Tracker) RecordUse(name string, actualSize int64) {
	t.mu.Lock()
	w, ok := t.windows[name]
	if !ok {
		w = &window{}
		t.windows[name] = w
	}
	w.requests++
	w.sizeUnits += actualSize
	requests := w.requests
	t.mu.Unlock()

	metrics.ProviderWindowRequests.WithLabelValues(name).Set(float64(requests))
}

// ResetWindows zeroes every provider's counters. Runs on the scheduled
// window boundary.
func (t *Tracker) ResetWindows(ctx context.Context) {
	t.mu.Lock()
	for name, w := range t.windows {
		w.requests = 0
		w.sizeUnits = 0
		metrics.ProviderWindowRequests.WithLabelValues(name).Set(0)
	}
	count := len(t.windows)
	t.mu.Unlock()

	t.logger.Debug("provider rate windows reset", "providers", count)
}

// Snapshot returns every provider's current window, sorted by name.
func (t *Tracker) Snapshot() []types.ProviderWindow {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.ProviderWindow, 0, len(t.windows))
	for name, w := range t.windows {
		limits := t.limits[name]
		out = append(out, types.ProviderWindow{
			Provider:     name,
			Requests:     w.requests,
			RequestLimit: limits.RequestsPerWindow,
			SizeUnits:    w.sizeUnits,
			SizeLimit:    limits.SizeUnitsPerWindow,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Close stops the scheduled window reset.
func (t *Tracker) Close() error {
	if t.stopReset != nil {
		t.stopReset()
	}
	return nil
}
