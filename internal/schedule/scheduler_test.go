package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDailyBoundary(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		offset time.Duration
		want   time.Time
	}{
		{
			"midday rolls to next midnight",
			time.Date(2024, 3, 10, 13, 45, 0, 0, time.UTC),
			0,
			time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			"exactly at boundary rolls a full day",
			time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			0,
			time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			"offset later today",
			time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC),
			3 * time.Hour,
			time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC),
		},
		{
			"offset already passed today",
			time.Date(2024, 3, 10, 5, 0, 0, 0, time.UTC),
			3 * time.Hour,
			time.Date(2024, 3, 11, 3, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextDailyBoundary(tt.now, tt.offset)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestRunnerEvery(t *testing.T) {
	r := NewRunner(nil, nil)
	defer r.Stop()

	var runs atomic.Int32
	stop := r.Every("tick", 10*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	})

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	stop()

	settled := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, runs.Load(), settled+1, "task kept firing after stop")
}

func TestRunnerStopIdempotent(t *testing.T) {
	r := NewRunner(nil, NewFakeClock(time.Now()))
	r.Every("noop", time.Hour, func(ctx context.Context) {})
	r.Stop()
	r.Stop()
}

func TestManualFire(t *testing.T) {
	m := NewManual()

	var runs int
	stop := m.DailyAt("daily-reset", 0, func(ctx context.Context) { runs++ })

	require.True(t, m.Registered("daily-reset"))
	require.True(t, m.Fire("daily-reset"))
	require.True(t, m.Fire("daily-reset"))
	assert.Equal(t, 2, runs)

	stop()
	assert.False(t, m.Fire("daily-reset"))
	assert.Equal(t, 2, runs)
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), c.Now())

	jump := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	c.Set(jump)
	assert.Equal(t, jump, c.Now())
}
