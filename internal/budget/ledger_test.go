package budget

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efikuta/youtube-knowledge-mcp/internal/counter"
	"github.com/efikuta/youtube-knowledge-mcp/internal/schedule"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T, store counter.Store) *Ledger {
	t.Helper()
	l := NewLedger(DefaultConfig(), store, nil, testLogger())
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// brokenStore fails every operation, standing in for an unreachable
// persistence backend.
type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, key string) (int64, bool, error) {
	return 0, false, errors.New("store down")
}

func (brokenStore) SetWithExpiry(ctx context.Context, key string, value int64, ttl time.Duration) error {
	return errors.New("store down")
}

func (brokenStore) Delete(ctx context.Context, key string) error {
	return errors.New("store down")
}

func (brokenStore) Ping(ctx context.Context) error { return errors.New("store down") }
func (brokenStore) Close() error                   { return nil }

func TestCanAdmitAgainstReserve(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)

	// 8000 daily minus the 1000 reserve leaves 7000 spendable.
	l.RecordUsage(ctx, 6900, "backfill")

	assert.True(t, l.CanAdmit(50), "6950 <= 7000")
	assert.True(t, l.CanAdmit(100), "7000 <= 7000")
	assert.False(t, l.CanAdmit(150), "7050 > 7000")
	assert.False(t, l.CanAdmit(-1), "negative cost is never admitted")
	assert.Equal(t, int64(100), l.AvailableUnits())
}

func TestAdmissionNeverExceedsBudget(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)

	costs := []int64{100, 50, 1, 1, 100, 50, 100}
	for i := 0; i < 200; i++ {
		cost := costs[i%len(costs)]
		if !l.CanAdmit(cost) {
			break
		}
		l.RecordUsage(ctx, cost, "loop")
		snap := l.Snapshot()
		require.LessOrEqual(t, snap.Used, snap.Limit-snap.Reserve,
			"admitted usage must stay inside the spendable allowance")
	}
}

func TestAvailableUnitsNeverNegative(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)

	// Actual cost can exceed the estimate that was admitted.
	l.RecordUsage(ctx, 9000, "overrun")

	assert.Equal(t, int64(0), l.AvailableUnits())
	assert.False(t, l.CanAdmit(1))
	snap := l.Snapshot()
	assert.Equal(t, int64(9000), snap.Used)
	assert.Equal(t, int64(0), snap.Remaining)
}

func TestOptimizeRequestSizePerItem(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)

	// 6880 used leaves 120 available.
	l.RecordUsage(ctx, 6880, "setup")

	assert.Equal(t, 2, l.OptimizeRequestSize(KindCaptions, 10),
		"two caption calls at 50 units fit in 120")
	assert.Equal(t, 10, l.OptimizeRequestSize(KindVideoDetails, 10),
		"cheap per-item calls pass through untouched")
	assert.Equal(t, 5, l.OptimizeRequestSize(KindSearch, 10),
		"search still fits but 86% usage trips the bulk throttle")
}

func TestOptimizeRequestSizeMinimalCostDenied(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)

	l.RecordUsage(ctx, 6970, "setup") // 30 available

	assert.Equal(t, 0, l.OptimizeRequestSize(KindCaptions, 1))
	assert.Equal(t, 0, l.OptimizeRequestSize(KindSearch, 1))
	assert.Equal(t, 1, l.OptimizeRequestSize(KindVideoDetails, 1))
	assert.Equal(t, 0, l.OptimizeRequestSize(KindVideoDetails, 0))
}

func TestOptimizeRequestSizeBulkThrottle(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)

	// Below the 80% throttle a bulk search keeps its full count.
	l.RecordUsage(ctx, 6000, "setup") // 75%
	assert.Equal(t, 25, l.OptimizeRequestSize(KindSearch, 25))

	// Past 80% bulk counts clamp to the fixed ceiling.
	l.RecordUsage(ctx, 500, "setup") // 81.25%
	assert.Equal(t, 5, l.OptimizeRequestSize(KindSearch, 25))
	assert.Equal(t, 3, l.OptimizeRequestSize(KindSearch, 3),
		"counts at or under the ceiling pass through")
}

func TestShouldPreferCache(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)

	l.RecordUsage(ctx, 6800, "setup") // 85%
	assert.False(t, l.ShouldPreferCache())

	l.RecordUsage(ctx, 1, "setup")
	assert.True(t, l.ShouldPreferCache())
}

func TestResetRestoresAdmission(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)

	l.RecordUsage(ctx, 7000, "spend")
	require.False(t, l.CanAdmit(1))

	l.Reset(ctx)

	snap := l.Snapshot()
	assert.Equal(t, int64(0), snap.Used)
	assert.True(t, l.CanAdmit(7000))
	assert.False(t, l.CanAdmit(7001))

	// Idempotent.
	l.Reset(ctx)
	assert.Equal(t, int64(0), l.Snapshot().Used)
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := counter.NewMemoryStore()

	l := NewLedger(DefaultConfig(), store, nil, testLogger())
	l.RecordUsage(ctx, 4200, "spend")
	require.NoError(t, l.Close())

	// A fresh ledger over the same store resumes mid-day.
	l2 := NewLedger(DefaultConfig(), store, nil, testLogger())
	defer l2.Close()
	assert.Equal(t, int64(4200), l2.Snapshot().Used)

	l2.Reset(ctx)

	// Reset clears the persisted counter too.
	l3 := NewLedger(DefaultConfig(), store, nil, testLogger())
	defer l3.Close()
	assert.Equal(t, int64(0), l3.Snapshot().Used)
}

func TestBrokenStoreDegradesToMemory(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(DefaultConfig(), brokenStore{}, nil, testLogger())
	defer l.Close()

	assert.Equal(t, int64(0), l.Snapshot().Used, "restore failure starts cold")

	l.RecordUsage(ctx, 500, "spend")
	assert.Equal(t, int64(500), l.Snapshot().Used, "write failure keeps counting in memory")
	assert.True(t, l.CanAdmit(100))

	l.Reset(ctx)
	assert.Equal(t, int64(0), l.Snapshot().Used, "delete failure does not block the reset")
}

func TestScheduledDailyReset(t *testing.T) {
	ctx := context.Background()
	store := counter.NewMemoryStore()
	sched := schedule.NewManual()

	l := NewLedger(DefaultConfig(), store, sched, testLogger())
	defer l.Close()

	require.True(t, sched.Registered(resetTask))

	l.RecordUsage(ctx, 3000, "spend")
	require.True(t, sched.Fire(resetTask))

	assert.Equal(t, int64(0), l.Snapshot().Used)

	_, ok, err := store.Get(ctx, defaultCounterKey)
	require.NoError(t, err)
	assert.False(t, ok, "scheduled reset clears the persisted counter")
}

func TestConcurrentRecordUsage(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.RecordUsage(ctx, 1, "concurrent")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), l.Snapshot().Used, "no increment may be lost")
}

func TestSnapshotFields(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)

	l.RecordUsage(ctx, 2000, "spend")

	snap := l.Snapshot()
	assert.Equal(t, int64(2000), snap.Used)
	assert.Equal(t, int64(8000), snap.Limit)
	assert.Equal(t, int64(1000), snap.Reserve)
	assert.Equal(t, int64(5000), snap.Remaining)
	assert.InDelta(t, 25.0, snap.Percent, 0.001)
	assert.True(t, snap.ResetAt.After(time.Now()), "reset is in the future")
	assert.Equal(t, time.UTC, snap.ResetAt.Location())
}
