package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efikuta/youtube-knowledge-mcp/internal/schedule"
)

func newMiniredisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis, *schedule.FakeClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := DefaultRedisCacheConfig()
	cfg.Namespace = "test-cache"
	c := NewRedisCacheFromClient(client, cfg)

	clock := schedule.NewFakeClock(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC))
	c.now = clock.Now
	return c, mr, clock
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr, _ := newMiniredisCache(t)

	fp := Fingerprint(CategoryDetails, "video", "abc")
	require.NoError(t, c.Set(ctx, fp, []byte(`{"title":"a"}`), time.Hour))

	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"title":"a"}`), got)

	assert.True(t, mr.Exists("test-cache:"+fp), "keys carry the namespace prefix")

	missing, err := c.Get(ctx, Fingerprint(CategoryDetails, "nope"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisCacheLogicalExpiry(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newMiniredisCache(t)

	fp := Fingerprint(CategorySearch, "golang")
	require.NoError(t, c.Set(ctx, fp, []byte("results"), 30*time.Minute))

	clock.Advance(29 * time.Minute)
	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.NotNil(t, got)

	// Logically expired, physically still present thanks to the grace
	// window: Get misses while GetStale still serves the payload.
	clock.Advance(2 * time.Minute)
	got, err = c.Get(ctx, fp)
	require.NoError(t, err)
	assert.Nil(t, got)

	payload, stale, err := c.GetStale(ctx, fp)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, []byte("results"), payload)
}

func TestRedisCachePhysicalExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr, clock := newMiniredisCache(t)

	fp := Fingerprint(CategoryGeneration, "prompt")
	require.NoError(t, c.Set(ctx, fp, []byte("summary"), 15*time.Minute))

	// Past logical ttl plus the full stale grace: Redis drops the key.
	mr.FastForward(15*time.Minute + time.Hour + time.Second)
	clock.Advance(15*time.Minute + time.Hour + time.Second)

	payload, stale, err := c.GetStale(ctx, fp)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Nil(t, payload, "stale reads end once the grace window closes")
}

func TestRedisCacheCategoryTTL(t *testing.T) {
	ctx := context.Background()
	c, mr, _ := newMiniredisCache(t)

	fp := Fingerprint(CategoryTranscripts, "vid", "en")
	require.NoError(t, c.Set(ctx, fp, []byte("text"), 0))

	// 24h transcript ttl plus 1h grace.
	ttl := mr.TTL("test-cache:" + fp)
	assert.Equal(t, 25*time.Hour, ttl)
}

func TestRedisCacheDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newMiniredisCache(t)

	fp := Fingerprint(CategoryComments, "vid")
	require.NoError(t, c.Set(ctx, fp, []byte("c"), time.Hour))
	require.NoError(t, c.Delete(ctx, fp))

	got, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.Nil(t, got)

	for i := byte('a'); i < 'f'; i++ {
		require.NoError(t, c.Set(ctx, Fingerprint(CategorySearch, string(i)), []byte{i}, time.Hour))
	}
	require.NoError(t, c.Clear(ctx))

	got, err = c.Get(ctx, Fingerprint(CategorySearch, "a"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCacheCorruptEnvelope(t *testing.T) {
	ctx := context.Background()
	c, mr, _ := newMiniredisCache(t)

	fp := Fingerprint(CategoryDetails, "vid")
	require.NoError(t, mr.Set("test-cache:"+fp, "not json"))

	_, err := c.Get(ctx, fp)
	assert.Error(t, err)
}
