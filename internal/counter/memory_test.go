package counter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, "quota:daily")
	require.NoError(t, err)
	assert.False(t, ok, "fresh store should report absence")

	require.NoError(t, s.SetWithExpiry(ctx, "quota:daily", 6900, time.Hour))

	val, ok, err := s.Get(ctx, "quota:daily")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(6900), val)

	require.NoError(t, s.Delete(ctx, "quota:daily"))
	_, ok, err = s.Get(ctx, "quota:daily")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.SetWithExpiry(ctx, "quota:daily", 123, 24*time.Hour))

	now = now.Add(23 * time.Hour)
	_, ok, err := s.Get(ctx, "quota:daily")
	require.NoError(t, err)
	assert.True(t, ok, "entry inside its ttl should survive")

	now = now.Add(2 * time.Hour)
	_, ok, err = s.Get(ctx, "quota:daily")
	require.NoError(t, err)
	assert.False(t, ok, "entry past its ttl should read as absent")
}

func TestMemoryStoreZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.SetWithExpiry(ctx, "k", 7, 0))
	now = now.Add(1000 * time.Hour)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreDeleteAbsent(t *testing.T) {
	s := NewMemoryStore()
	assert.NoError(t, s.Delete(context.Background(), "missing"))
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}
