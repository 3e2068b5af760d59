// Package guard enforces per-caller quotas, a second line of defense
// independent of provider limits and the daily content-API budget. A
// caller that would push its hourly or daily unit total past its ceiling
// is refused before any provider is contacted.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/efikuta/youtube-knowledge-mcp/internal/metrics"
	"github.com/efikuta/youtube-knowledge-mcp/internal/schedule"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/errors"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

const (
	// DefaultHourlyUnitCeiling and DefaultDailyUnitCeiling bound one
	// caller's cumulative request size per window.
	DefaultHourlyUnitCeiling = 10_000
	DefaultDailyUnitCeiling  = 50_000

	// AnonymousCaller is charged when a request carries no caller identity.
	AnonymousCaller = "anonymous"

	hourlyResetTask = "caller-hourly-reset"
	dailyResetTask  = "caller-daily-reset"
	cleanupTask     = "caller-cleanup"
)

// Config holds configuration for the Guard.
type Config struct {
	HourlyUnitCeiling int64 `yaml:"hourly_unit_ceiling"`
	DailyUnitCeiling  int64 `yaml:"daily_unit_ceiling"`

	// SmoothingRPM rate-limits each caller's request cadence on top of
	// the unit ledgers, so one caller cannot burst the broker even with
	// unit budget left. Zero disables smoothing.
	SmoothingRPM   int `yaml:"smoothing_rpm"`
	SmoothingBurst int `yaml:"smoothing_burst"`

	// CleanupTTL controls when idle caller entries are dropped.
	CleanupTTL time.Duration `yaml:"cleanup_ttl"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HourlyUnitCeiling: DefaultHourlyUnitCeiling,
		DailyUnitCeiling:  DefaultDailyUnitCeiling,
		SmoothingRPM:      60,
		SmoothingBurst:    10,
		CleanupTTL:        24 * time.Hour,
	}
}

type callerEntry struct {
	hourlyUnits int64
	dailyUnits  int64
	limiter     *rate.Limiter
	lastAccess  time.Time
}

// Guard tracks per-caller unit spend across hourly and daily windows.
// Entirely in-memory: caller quotas are a fairness device, not billing
// state, and restarting the process forgiving them is acceptable.
type Guard struct {
	mu      sync.Mutex
	entries map[string]*callerEntry

	hourlyCeiling int64
	dailyCeiling  int64
	smoothingRate rate.Limit
	burst         int
	cleanupTTL    time.Duration

	logger *slog.Logger
	now    func() time.Time
	stops  []func()
}

// NewGuard creates the guard and schedules window resets and idle-entry
// cleanup. A nil scheduler skips all scheduling.
func NewGuard(cfg Config, sched schedule.Scheduler, logger *slog.Logger) *Guard {
	if cfg.HourlyUnitCeiling <= 0 {
		cfg.HourlyUnitCeiling = DefaultHourlyUnitCeiling
	}
	if cfg.DailyUnitCeiling <= 0 {
		cfg.DailyUnitCeiling = DefaultDailyUnitCeiling
	}
	if cfg.SmoothingBurst <= 0 {
		cfg.SmoothingBurst = 10
	}
	if cfg.CleanupTTL <= 0 {
		cfg.CleanupTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &Guard{
		entries:       make(map[string]*callerEntry),
		hourlyCeiling: cfg.HourlyUnitCeiling,
		dailyCeiling:  cfg.DailyUnitCeiling,
		burst:         cfg.SmoothingBurst,
		cleanupTTL:    cfg.CleanupTTL,
		logger:        logger,
		now:           time.Now,
	}
	if cfg.SmoothingRPM > 0 {
		g.smoothingRate = rate.Limit(float64(cfg.SmoothingRPM) / 60.0)
	}

	if sched != nil {
		g.stops = append(g.stops,
			sched.Every(hourlyResetTask, time.Hour, g.ResetHourly),
			sched.DailyAt(dailyResetTask, 0, g.ResetDaily),
			sched.Every(cleanupTask, cfg.CleanupTTL/4, g.Cleanup),
		)
	}

	return g
}

// Admit checks whether callerID may issue a request of estimatedUnits.
// Denials return a caller-quota error; nothing is charged on admit, the
// charge lands in RecordUsage after the request fully succeeds.
func (g *Guard) Admit(callerID string, estimatedUnits int64) error {
	if callerID == "" {
		callerID = AnonymousCaller
	}

	g.mu.Lock()
	entry := g.entryLocked(callerID)
	entry.lastAccess = g.now()

	if entry.limiter != nil && !entry.limiter.Allow() {
		g.mu.Unlock()
		metrics.CallerDenials.WithLabelValues("rate").Inc()
		g.logger.Warn("caller request rate exceeded", "caller", callerID)
		return errors.NewCallerQuotaError(callerID, "request rate exceeded, slow down")
	}

	if entry.hourlyUnits+estimatedUnits > g.hourlyCeiling {
		used := entry.hourlyUnits
		g.mu.Unlock()
		metrics.CallerDenials.WithLabelValues("hourly").Inc()
		g.logger.Warn("caller hourly quota exceeded",
			"caller", callerID, "used", used, "estimated", estimatedUnits,
			"ceiling", g.hourlyCeiling)
		return errors.NewCallerQuotaError(callerID, fmt.Sprintf(
			"hourly quota exceeded: %d used + %d requested > %d",
			used, estimatedUnits, g.hourlyCeiling))
	}

	if entry.dailyUnits+estimatedUnits > g.dailyCeiling {
		used := entry.dailyUnits
		g.mu.Unlock()
		metrics.CallerDenials.WithLabelValues("daily").Inc()
		g.logger.Warn("caller daily quota exceeded",
			"caller", callerID, "used", used, "estimated", estimatedUnits,
			"ceiling", g.dailyCeiling)
		return errors.NewCallerQuotaError(callerID, fmt.Sprintf(
			"daily quota exceeded: %d used + %d requested > %d",
			used, estimatedUnits, g.dailyCeiling))
	}

	g.mu.Unlock()
	return nil
}

// RecordUsage charges actualUnits to both of the caller's windows.
func (g *Guard) RecordUsage(callerID string, actualUnits int64) {
	if callerID == "" {
		callerID = AnonymousCaller
	}
	if actualUnits <= 0 {
		return
	}

	g.mu.Lock()
	entry := g.entryLocked(callerID)
	entry.hourlyUnits += actualUnits
	entry.dailyUnits += actualUnits
	entry.lastAccess = g.now()
	g.mu.Unlock()
}

// Usage returns the caller's current window totals.
func (g *Guard) Usage(callerID string) types.CallerUsage {
	if callerID == "" {
		callerID = AnonymousCaller
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	usage := types.CallerUsage{
		CallerID:    callerID,
		HourlyLimit: g.hourlyCeiling,
		DailyLimit:  g.dailyCeiling,
	}
	if entry, ok := g.entries[callerID]; ok {
		usage.HourlyUnits = entry.hourlyUnits
		usage.DailyUnits = entry.dailyUnits
	}
	return usage
}

// ResetHourly zeroes every caller's hourly window.
func (g *Guard) ResetHourly(ctx context.Context) {
	g.mu.Lock()
	for _, entry := range g.entries {
		entry.hourlyUnits = 0
	}
	g.mu.Unlock()
	g.logger.Debug("caller hourly windows reset")
}

// ResetDaily zeroes every caller's daily window.
func (g *Guard) ResetDaily(ctx context.Context) {
	g.mu.Lock()
	for _, entry := range g.entries {
		entry.dailyUnits = 0
	}
	g.mu.Unlock()
	g.logger.Debug("caller daily windows reset")
}

// Cleanup drops callers idle past the cleanup TTL so the entry map does
// not grow without bound.
func (g *Guard) Cleanup(ctx context.Context) {
	cutoff := g.now().Add(-g.cleanupTTL)

	g.mu.Lock()
	for id, entry := range g.entries {
		if entry.lastAccess.Before(cutoff) {
			delete(g.entries, id)
		}
	}
	active := len(g.entries)
	g.mu.Unlock()

	metrics.ActiveCallers.Set(float64(active))
}

// Close stops all scheduled tasks.
func (g *Guard) Close() error {
	for _, stop := range g.stops {
		stop()
	}
	return nil
}

func (g *Guard) entryLocked(callerID string) *callerEntry {
	entry, ok := g.entries[callerID]
	if !ok {
		entry = &callerEntry{}
		if g.smoothingRate > 0 {
			entry.limiter = rate.NewLimiter(g.smoothingRate, g.burst)
		}
		g.entries[callerID] = entry
		metrics.ActiveCallers.Set(float64(len(g.entries)))
	}
	return entry
}
