// Package budget implements the daily quota ledger for the upstream
// content API. Every unit-costed call is admitted against a daily cap with
// a reserved safety margin, recorded after it succeeds, and persisted so a
// restart resumes the day where it left off.
package budget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/efikuta/youtube-knowledge-mcp/internal/counter"
	"github.com/efikuta/youtube-knowledge-mcp/internal/metrics"
	"github.com/efikuta/youtube-knowledge-mcp/internal/schedule"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

const (
	// DefaultDailyLimit is the Data API's default daily unit allowance.
	DefaultDailyLimit = 8000
	// DefaultReserveBuffer is held back from the daily limit so manual
	// operations and overruns never hit the hard quota wall.
	DefaultReserveBuffer = 1000

	// DefaultWarnPercent and DefaultCriticalPercent are usage thresholds,
	// as a percentage of the daily limit, that trigger escalating signals.
	DefaultWarnPercent     = 75.0
	DefaultCriticalPercent = 90.0

	// preferCachePercent is where callers are told to stop spending on
	// fresh calls that a cached answer could cover.
	preferCachePercent = 85.0

	// bulkThrottlePercent is where bulk operations get clamped to
	// bulkThrottleCeiling items regardless of what was asked.
	bulkThrottlePercent = 80.0
	bulkThrottleCeiling = 5

	// defaultCounterKey is the durable store key holding usedUnits.
	defaultCounterKey = "ytkm:quota:daily"
	counterTTL        = 24 * time.Hour

	resetTask = "budget-reset"
)

// RequestKind classifies content-API operations for admission and
// request-size optimization.
type RequestKind string

const (
	// KindSearch is a search.list call: 100 units per call, bulk results.
	KindSearch RequestKind = "search"
	// KindVideoDetails is a videos.list call: 1 unit per call.
	KindVideoDetails RequestKind = "video_details"
	// KindComments is a commentThreads.list call: 1 unit per page.
	KindComments RequestKind = "comments"
	// KindCaptions is a captions.list call: 50 units per call.
	KindCaptions RequestKind = "captions"
)

// UnitCost returns the Data API unit cost of one operation of this kind.
func (k RequestKind) UnitCost() int64 {
	switch k {
	case KindSearch:
		return 100
	case KindCaptions:
		return 50
	default:
		return 1
	}
}

// bulk reports whether one call of this kind returns many items, so that
// reducing the requested count does not reduce the call's unit cost.
func (k RequestKind) bulk() bool {
	return k == KindSearch
}

// Config holds configuration for the Ledger.
type Config struct {
	DailyLimit      int64         `yaml:"daily_limit"`
	ReserveBuffer   int64         `yaml:"reserve_buffer"`
	WarnPercent     float64       `yaml:"warn_percent"`
	CriticalPercent float64       `yaml:"critical_percent"`
	CounterKey      string        `yaml:"counter_key"`
	HydrateTimeout  time.Duration `yaml:"hydrate_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DailyLimit:      DefaultDailyLimit,
		ReserveBuffer:   DefaultReserveBuffer,
		WarnPercent:     DefaultWarnPercent,
		CriticalPercent: DefaultCriticalPercent,
		CounterKey:      defaultCounterKey,
		HydrateTimeout:  5 * time.Second,
	}
}

// Ledger tracks cumulative unit spend against the daily allowance. All
// mutation goes through a single mutex; the admit+record critical section
// is a handful of integer operations, so one coarse lock is enough.
type Ledger struct {
	mu      sync.Mutex
	used    int64
	resetAt time.Time

	dailyLimit int64
	reserve    int64
	warnPct    float64
	critPct    float64

	warned   bool
	critical bool

	counterKey string
	store      counter.Store
	logger     *slog.Logger
	now        func() time.Time
	stopReset  func()
}

// NewLedger builds the ledger, hydrates it from the durable store, and
// schedules the daily reset. A nil store keeps the ledger memory-only; a
// nil scheduler skips the reset task (callers drive Reset themselves).
func NewLedger(cfg Config, store counter.Store, sched schedule.Scheduler, logger *slog.Logger) *Ledger {
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = DefaultDailyLimit
	}
	if cfg.ReserveBuffer < 0 {
		cfg.ReserveBuffer = 0
	}
	if cfg.WarnPercent <= 0 {
		cfg.WarnPercent = DefaultWarnPercent
	}
	if cfg.CriticalPercent <= 0 {
		cfg.CriticalPercent = DefaultCriticalPercent
	}
	if cfg.CounterKey == "" {
		cfg.CounterKey = defaultCounterKey
	}
	if cfg.HydrateTimeout <= 0 {
		cfg.HydrateTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Ledger{
		dailyLimit: cfg.DailyLimit,
		reserve:    cfg.ReserveBuffer,
		warnPct:    cfg.WarnPercent,
		critPct:    cfg.CriticalPercent,
		counterKey: cfg.CounterKey,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
	l.resetAt = schedule.NextDailyBoundary(l.now(), 0)

	l.hydrate(cfg.HydrateTimeout)

	if sched != nil {
		l.stopReset = sched.DailyAt(resetTask, 0, func(ctx context.Context) {
			l.Reset(ctx)
		})
	}

	l.publish()
	return l
}

// hydrate restores usedUnits from the durable store. Best-effort: any
// failure leaves the ledger cold at zero with a logged warning.
func (l *Ledger) hydrate(timeout time.Duration) {
	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	value, ok, err := l.store.Get(ctx, l.counterKey)
	if err != nil {
		l.logger.Warn("quota counter restore failed, starting cold",
			"key", l.counterKey, "error", err)
		return
	}
	if !ok || value < 0 {
		return
	}

	l.mu.Lock()
	l.used = value
	l.warned = l.percentLocked() >= l.warnPct
	l.critical = l.percentLocked() >= l.critPct
	l.mu.Unlock()

	l.logger.Info("quota counter restored", "used", value)
}

// CanAdmit reports whether an operation costing cost units fits inside
// the spendable allowance (daily limit minus reserve). It never errors;
// the answer is computed from in-memory state only.
func (l *Ledger) CanAdmit(cost int64) bool {
	if cost < 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used+cost <= l.spendableLocked()
}

// RecordUsage charges cost units to the ledger and persists the new total.
// Persistence failures degrade to memory-only operation, they never
// surface to the caller. Threshold crossings are logged once per window.
func (l *Ledger) RecordUsage(ctx context.Context, cost int64, label string) {
	if cost <= 0 {
		return
	}

	l.mu.Lock()
	l.used += cost
	used := l.used
	percent := l.percentLocked()

	crossedWarn := !l.warned && percent >= l.warnPct
	if crossedWarn {
		l.warned = true
	}
	crossedCritical := !l.critical && percent >= l.critPct
	if crossedCritical {
		l.critical = true
	}
	l.mu.Unlock()

	if crossedWarn {
		l.logger.Warn("daily quota usage above warning threshold",
			"percent", percent, "used", used, "limit", l.dailyLimit, "label", label)
		metrics.BudgetThresholdCrossings.WithLabelValues("warn").Inc()
	}
	if crossedCritical {
		l.logger.Error("daily quota usage critical",
			"percent", percent, "used", used, "limit", l.dailyLimit, "label", label)
		metrics.BudgetThresholdCrossings.WithLabelValues("critical").Inc()
	}

	if l.store != nil {
		if err := l.store.SetWithExpiry(ctx, l.counterKey, used, counterTTL); err != nil {
			l.logger.Warn("quota usage persistence failed, continuing in memory",
				"key", l.counterKey, "error", err)
		}
	}

	l.publish()
}

// AvailableUnits returns the units still spendable above the reserve.
func (l *Ledger) AvailableUnits() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.availableLocked()
}

// OptimizeRequestSize shrinks a requested item count to what the remaining
// budget supports. Returns 0 when even the minimal call for kind does not
// fit. Per-item kinds are capped to the affordable count; bulk kinds keep
// their full count until usage passes the throttle threshold, after which
// they are clamped to a small fixed ceiling.
func (l *Ledger) OptimizeRequestSize(kind RequestKind, requested int) int {
	if requested <= 0 {
		return 0
	}

	l.mu.Lock()
	available := l.availableLocked()
	percent := l.percentLocked()
	l.mu.Unlock()

	cost := kind.UnitCost()
	if cost > available {
		metrics.BudgetDenials.WithLabelValues(string(kind)).Inc()
		return 0
	}

	optimized := requested
	if kind.bulk() {
		if percent > bulkThrottlePercent && requested > bulkThrottleCeiling {
			optimized = bulkThrottleCeiling
		}
	} else {
		if affordable := available / cost; int64(optimized) > affordable {
			optimized = int(affordable)
		}
	}

	if optimized < requested {
		l.logger.Info("request size reduced to fit remaining quota",
			"kind", string(kind), "requested", requested, "optimized", optimized,
			"available", available)
		metrics.RequestDowngrades.WithLabelValues(string(kind)).Inc()
	}
	return optimized
}

// ShouldPreferCache reports whether callers should serve cached results
// instead of spending fresh units.
func (l *Ledger) ShouldPreferCache() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.percentLocked() > preferCachePercent
}

// Reset zeroes the window, clears the persisted counter, and rolls
// resetAt to the next daily boundary. Invoked by the scheduler at each
// UTC midnight; safe to call manually.
func (l *Ledger) Reset(ctx context.Context) {
	l.mu.Lock()
	l.used = 0
	l.warned = false
	l.critical = false
	l.resetAt = schedule.NextDailyBoundary(l.now(), 0)
	resetAt := l.resetAt
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Delete(ctx, l.counterKey); err != nil {
			l.logger.Warn("persisted quota counter delete failed",
				"key", l.counterKey, "error", err)
		}
	}

	l.logger.Info("daily quota window reset", "reset_at", resetAt)
	l.publish()
}

// Snapshot returns a point-in-time view of the ledger.
func (l *Ledger) Snapshot() types.UsageSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return types.UsageSnapshot{
		Used:      l.used,
		Limit:     l.dailyLimit,
		Reserve:   l.reserve,
		Remaining: l.availableLocked(),
		Percent:   l.percentLocked(),
		ResetAt:   l.resetAt,
	}
}

// Close stops the scheduled reset.
func (l *Ledger) Close() error {
	if l.stopReset != nil {
		l.stopReset()
	}
	return nil
}

func (l *Ledger) spendableLocked() int64 {
	return l.dailyLimit - l.reserve
}

func (l *Ledger) availableLocked() int64 {
	if avail := l.spendableLocked() - l.used; avail > 0 {
		return avail
	}
	return 0
}

func (l *Ledger) percentLocked() float64 {
	return float64(l.used) / float64(l.dailyLimit) * 100
}

// publish pushes the current snapshot to the metrics registry.
func (l *Ledger) publish() {
	snap := l.Snapshot()
	metrics.SetQuotaSnapshot(snap.Used, snap.Remaining, snap.Percent, snap.ResetAt)
}
