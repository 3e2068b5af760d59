package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efikuta/youtube-knowledge-mcp/internal/schedule"
)

func newTestCache(t *testing.T) (*MemoryCache, *schedule.FakeClock) {
	t.Helper()
	clock := schedule.NewFakeClock(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC))
	c := NewMemoryCache(DefaultMemoryConfig(), nil)
	c.now = clock.Now
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	fp := Fingerprint(CategoryDetails, "video", "abc123")
	require.NoError(t, c.Set(ctx, fp, []byte(`{"title":"a"}`), 0))

	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"title":"a"}`), got)

	missing, err := c.Get(ctx, Fingerprint(CategoryDetails, "video", "nope"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryCacheTTLBoundary(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t)

	fp := Fingerprint(CategorySearch, "golang tutorials")
	require.NoError(t, c.Set(ctx, fp, []byte(`{"videos":[]}`), 1800*time.Second))

	clock.Advance(1799 * time.Second)
	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.NotNil(t, got, "one second before expiry should hit")

	clock.Advance(2 * time.Second)
	got, err = c.Get(ctx, fp)
	require.NoError(t, err)
	assert.Nil(t, got, "one second after expiry should miss")
}

func TestMemoryCacheCategoryDefaults(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t)

	searchFP := Fingerprint(CategorySearch, "q")
	detailFP := Fingerprint(CategoryDetails, "id")
	require.NoError(t, c.Set(ctx, searchFP, []byte("s"), 0))
	require.NoError(t, c.Set(ctx, detailFP, []byte("d"), 0))

	// Past the 30m search TTL but inside the 1h details TTL.
	clock.Advance(45 * time.Minute)

	got, err := c.Get(ctx, searchFP)
	require.NoError(t, err)
	assert.Nil(t, got, "search entries default to a 30 minute ttl")

	got, err = c.Get(ctx, detailFP)
	require.NoError(t, err)
	assert.NotNil(t, got, "detail entries default to a 1 hour ttl")
}

func TestMemoryCacheGetStale(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t)

	fp := Fingerprint(CategoryGeneration, "prompt", "gemini")
	require.NoError(t, c.Set(ctx, fp, []byte("summary"), time.Minute))

	payload, stale, err := c.GetStale(ctx, fp)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, []byte("summary"), payload)

	clock.Advance(2 * time.Minute)

	payload, stale, err = c.GetStale(ctx, fp)
	require.NoError(t, err)
	assert.True(t, stale, "expired payload should be flagged")
	assert.Equal(t, []byte("summary"), payload)

	payload, stale, err = c.GetStale(ctx, Fingerprint(CategoryGeneration, "absent"))
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Nil(t, payload)
}

func TestMemoryCacheSweep(t *testing.T) {
	ctx := context.Background()
	clock := schedule.NewFakeClock(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC))
	sched := schedule.NewManual()

	c := NewMemoryCache(DefaultMemoryConfig(), sched)
	c.now = clock.Now
	defer c.Close()

	require.True(t, sched.Registered(sweepTask))

	for i := 0; i < 5; i++ {
		fp := Fingerprint(CategorySearch, fmt.Sprintf("query-%d", i))
		require.NoError(t, c.Set(ctx, fp, []byte("r"), time.Minute))
	}
	keeper := Fingerprint(CategoryTranscripts, "long-lived")
	require.NoError(t, c.Set(ctx, keeper, []byte("t"), time.Hour))
	require.Equal(t, 6, c.Len())

	clock.Advance(2 * time.Minute)
	require.True(t, sched.Fire(sweepTask))

	assert.Equal(t, 1, c.Len(), "sweep should reclaim unread expired entries")
	assert.Equal(t, int64(5), c.Stats().Evictions)

	// The sweep also ends the stale-read window.
	payload, _, err := c.GetStale(ctx, Fingerprint(CategorySearch, "query-0"))
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestMemoryCacheSweepSkipsSupersededEntries(t *testing.T) {
	ctx := context.Background()
	clock := schedule.NewFakeClock(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC))
	sched := schedule.NewManual()

	c := NewMemoryCache(DefaultMemoryConfig(), sched)
	c.now = clock.Now
	defer c.Close()

	fp := Fingerprint(CategoryDetails, "video")
	require.NoError(t, c.Set(ctx, fp, []byte("v1"), time.Minute))
	// Overwrite with a longer TTL; the old heap entry is now outdated.
	require.NoError(t, c.Set(ctx, fp, []byte("v2"), time.Hour))

	clock.Advance(2 * time.Minute)
	require.True(t, sched.Fire(sweepTask))

	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got, "sweep must not evict the superseding entry")
}

func TestMemoryCacheCapacityEviction(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultMemoryConfig()
	cfg.MaxEntries = 3

	c := NewMemoryCache(cfg, nil)
	defer c.Close()

	for i := 0; i < 5; i++ {
		fp := Fingerprint(CategorySearch, fmt.Sprintf("q-%d", i))
		require.NoError(t, c.Set(ctx, fp, []byte("x"), time.Hour))
	}

	assert.LessOrEqual(t, c.Len(), 3, "cache must stay within max entries")
}

func TestMemoryCacheValueIsolation(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	fp := Fingerprint(CategoryComments, "vid")
	original := []byte("immutable")
	require.NoError(t, c.Set(ctx, fp, original, 0))
	original[0] = 'X'

	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, []byte("immutable"), got, "stored payload must not alias caller memory")

	got[0] = 'Y'
	again, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, []byte("immutable"), again, "returned payload must not alias cache memory")
}

func TestMemoryCacheDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	fp := Fingerprint(CategoryDetails, "video")
	require.NoError(t, c.Set(ctx, fp, []byte("v"), 0))
	require.NoError(t, c.Delete(ctx, fp))

	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, fp, []byte("v"), 0))
	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheStats(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	fp := Fingerprint(CategoryDetails, "video")
	require.NoError(t, c.Set(ctx, fp, []byte("v"), 0))

	_, _ = c.Get(ctx, fp)
	_, _ = c.Get(ctx, fp)
	_, _ = c.Get(ctx, Fingerprint(CategoryDetails, "missing"))

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.001)
}
