package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efikuta/youtube-knowledge-mcp/internal/schedule"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr := NewTracker(DefaultConfig(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestRequestLimitGatesAdmission(t *testing.T) {
	tr := newTestTracker(t)
	tr.Register("gemini", Limits{RequestsPerWindow: 2})

	assert.True(t, tr.CanUse("gemini", 100))
	tr.RecordUse("gemini", 100)
	assert.True(t, tr.CanUse("gemini", 100))
	tr.RecordUse("gemini", 100)
	assert.False(t, tr.CanUse("gemini", 100), "window is full after two requests")
}

func TestSizeLimitGatesAdmission(t *testing.T) {
	tr := newTestTracker(t)
	tr.Register("openai", Limits{RequestsPerWindow: 100, SizeUnitsPerWindow: 1000})

	assert.True(t, tr.CanUse("openai", 900))
	tr.RecordUse("openai", 900)

	assert.False(t, tr.CanUse("openai", 200), "900+200 exceeds the size window")
	assert.True(t, tr.CanUse("openai", 100), "900+100 fits exactly")
}

func TestRecordUseIsUnconditional(t *testing.T) {
	tr := newTestTracker(t)
	tr.Register("gemini", Limits{SizeUnitsPerWindow: 100})

	// Actual size can land above the estimate that was admitted. The
	// window absorbs the overrun; only new admissions are blocked.
	tr.RecordUse("gemini", 500)

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(500), snap[0].SizeUnits)
	assert.False(t, tr.CanUse("gemini", 1))
}

func TestUnregisteredProviderAllowed(t *testing.T) {
	tr := newTestTracker(t)

	assert.True(t, tr.CanUse("unknown", 1<<20))
	tr.RecordUse("unknown", 42)
	assert.True(t, tr.CanUse("unknown", 1<<20))
}

func TestZeroLimitsMeanUnlimited(t *testing.T) {
	tr := newTestTracker(t)
	tr.Register("anthropic", Limits{})

	for i := 0; i < 1000; i++ {
		require.True(t, tr.CanUse("anthropic", 10_000))
		tr.RecordUse("anthropic", 10_000)
	}
}

func TestScheduledWindowReset(t *testing.T) {
	sched := schedule.NewManual()
	tr := NewTracker(DefaultConfig(), sched, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer tr.Close()

	require.True(t, sched.Registered(windowResetTask))

	tr.Register("gemini", Limits{RequestsPerWindow: 1})
	tr.RecordUse("gemini", 100)
	require.False(t, tr.CanUse("gemini", 1))

	require.True(t, sched.Fire(windowResetTask))

	assert.True(t, tr.CanUse("gemini", 1), "reset restores window headroom")
	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Zero(t, snap[0].Requests)
	assert.Zero(t, snap[0].SizeUnits)
}

func TestSnapshotSorted(t *testing.T) {
	tr := newTestTracker(t)
	tr.Register("openai", Limits{RequestsPerWindow: 5})
	tr.Register("anthropic", Limits{RequestsPerWindow: 3})
	tr.Register("gemini", Limits{RequestsPerWindow: 10})

	snap := tr.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "anthropic", snap[0].Provider)
	assert.Equal(t, "gemini", snap[1].Provider)
	assert.Equal(t, "openai", snap[2].Provider)
	assert.Equal(t, int64(3), snap[0].RequestLimit)
}

func TestConcurrentRecordUse(t *testing.T) {
	tr := newTestTracker(t)
	tr.Register("gemini", Limits{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				tr.RecordUse("gemini", 3)
			}
		}()
	}
	wg.Wait()

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(1000), snap[0].Requests)
	assert.Equal(t, int64(3000), snap[0].SizeUnits)
}

func TestResetWindowsWithoutScheduler(t *testing.T) {
	tr := newTestTracker(t)
	tr.Register("gemini", Limits{RequestsPerWindow: 1})
	tr.RecordUse("gemini", 10)

	tr.ResetWindows(context.Background())
	assert.True(t, tr.CanUse("gemini", 1))
}
