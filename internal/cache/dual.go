package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// DualCache layers the in-process cache (L1) over Redis (L2). Writes go to
// both; reads check L1 first and backfill it on an L2 hit so repeated reads
// of hot fingerprints stay local.
type DualCache struct {
	local  *MemoryCache
	remote *RedisCache

	localTTL time.Duration

	localHits atomic.Int64
	remoteHit atomic.Int64
	backfills atomic.Int64
	misses    atomic.Int64
}

// DualConfig holds configuration for DualCache.
type DualConfig struct {
	// LocalTTL bounds how long an L2 backfill lives in L1. The entry's own
	// category TTL still applies in L2.
	LocalTTL time.Duration `yaml:"local_ttl"`
}

// DefaultDualConfig returns sensible defaults.
func DefaultDualConfig() DualConfig {
	return DualConfig{LocalTTL: 5 * time.Minute}
}

// NewDualCache creates a two-tier cache.
func NewDualCache(local *MemoryCache, remote *RedisCache, cfg DualConfig) *DualCache {
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = 5 * time.Minute
	}
	return &DualCache{
		local:    local,
		remote:   remote,
		localTTL: cfg.LocalTTL,
	}
}

// Get implements Cache.
func (c *DualCache) Get(ctx context.Context, fingerprint string) ([]byte, error) {
	if payload, err := c.local.Get(ctx, fingerprint); err == nil && payload != nil {
		c.localHits.Add(1)
		return payload, nil
	}

	payload, err := c.remote.Get(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		c.remoteHit.Add(1)
		// Backfill is best-effort.
		_ = c.local.Set(ctx, fingerprint, payload, c.localTTL)
		c.backfills.Add(1)
		return payload, nil
	}

	c.misses.Add(1)
	return nil, nil
}

// GetStale implements Cache. Fresh copies win over stale ones regardless of
// tier; a stale local copy is the last resort when Redis is unreachable.
func (c *DualCache) GetStale(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	if payload, stale, err := c.local.GetStale(ctx, fingerprint); err == nil && payload != nil && !stale {
		return payload, false, nil
	}

	payload, stale, err := c.remote.GetStale(ctx, fingerprint)
	if err == nil && payload != nil {
		return payload, stale, nil
	}

	return c.local.GetStale(ctx, fingerprint)
}

// Set implements Cache.
func (c *DualCache) Set(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error {
	localTTL := c.localTTL
	if ttl > 0 && ttl < localTTL {
		localTTL = ttl
	}
	if err := c.local.Set(ctx, fingerprint, payload, localTTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, fingerprint, payload, ttl)
}

// Delete implements Cache.
func (c *DualCache) Delete(ctx context.Context, fingerprint string) error {
	if err := c.local.Delete(ctx, fingerprint); err != nil {
		return err
	}
	return c.remote.Delete(ctx, fingerprint)
}

// Clear implements Cache.
func (c *DualCache) Clear(ctx context.Context) error {
	if err := c.local.Clear(ctx); err != nil {
		return err
	}
	return c.remote.Clear(ctx)
}

// Ping implements Cache.
func (c *DualCache) Ping(ctx context.Context) error {
	return c.remote.Ping(ctx)
}

// Close implements Cache.
func (c *DualCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats implements Cache. Tier hits are folded together; per-tier numbers
// stay available on the tiers themselves.
func (c *DualCache) Stats() Stats {
	hits := c.localHits.Load() + c.remoteHit.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.local.Stats().Sets,
		HitRate: hitRate,
	}
}
