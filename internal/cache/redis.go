package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
)

// envelope wraps a cached payload so logical expiry survives in Redis. The
// physical Redis TTL runs longer than the logical one by the stale grace,
// which is what keeps expired payloads readable for GetStale.
type envelope struct {
	Payload    []byte `json:"payload"`
	CreatedAt  int64  `json:"created_at"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

func (e *envelope) expired(now time.Time) bool {
	return now.Unix()-e.CreatedAt > e.TTLSeconds
}

// RedisCacheConfig holds configuration for the Redis cache tier.
type RedisCacheConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	ClusterAddrs []string      `yaml:"cluster_addrs"`
	Namespace    string        `yaml:"namespace"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	StaleGrace   time.Duration `yaml:"stale_grace"`
	TTL          TTLConfig     `yaml:"ttl"`
}

// DefaultRedisCacheConfig returns sensible defaults.
func DefaultRedisCacheConfig() RedisCacheConfig {
	return RedisCacheConfig{
		Addr:        "localhost:6379",
		Namespace:   "ytkm-cache",
		DialTimeout: 5 * time.Second,
		StaleGrace:  time.Hour,
		TTL:         DefaultTTLConfig(),
	}
}

// RedisCache is the Redis-backed response cache tier.
type RedisCache struct {
	client     goredis.UniversalClient
	namespace  string
	ttlcfg     TTLConfig
	staleGrace time.Duration
	now        func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	errs   atomic.Int64
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisCacheConfig) (*RedisCache, error) {
	addrs := cfg.ClusterAddrs
	if len(addrs) == 0 {
		addrs = []string{cfg.Addr}
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:       addrs,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	c := NewRedisCacheFromClient(client, cfg)
	return c, nil
}

// NewRedisCacheFromClient wraps an existing client, mainly for tests.
func NewRedisCacheFromClient(client goredis.UniversalClient, cfg RedisCacheConfig) *RedisCache {
	grace := cfg.StaleGrace
	if grace <= 0 {
		grace = time.Hour
	}
	return &RedisCache{
		client:     client,
		namespace:  cfg.Namespace,
		ttlcfg:     cfg.TTL,
		staleGrace: grace,
		now:        time.Now,
	}
}

func (c *RedisCache) prefixKey(fingerprint string) string {
	if c.namespace == "" {
		return fingerprint
	}
	return c.namespace + ":" + fingerprint
}

func (c *RedisCache) fetch(ctx context.Context, fingerprint string) (*envelope, error) {
	data, err := c.client.Get(ctx, c.prefixKey(fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		c.errs.Add(1)
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.errs.Add(1)
		return nil, fmt.Errorf("cache envelope decode: %w", err)
	}
	return &env, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, fingerprint string) ([]byte, error) {
	env, err := c.fetch(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if env == nil || env.expired(c.now()) {
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)
	return env.Payload, nil
}

// GetStale implements Cache.
func (c *RedisCache) GetStale(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	env, err := c.fetch(ctx, fingerprint)
	if err != nil {
		return nil, false, err
	}
	if env == nil {
		c.misses.Add(1)
		return nil, false, nil
	}
	stale := env.expired(c.now())
	if stale {
		c.misses.Add(1)
	} else {
		c.hits.Add(1)
	}
	return env.Payload, stale, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttlcfg.For(CategoryOf(fingerprint))
	}

	env := envelope{
		Payload:    payload,
		CreatedAt:  c.now().Unix(),
		TTLSeconds: int64(ttl / time.Second),
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("cache envelope encode: %w", err)
	}

	if err := c.client.Set(ctx, c.prefixKey(fingerprint), data, ttl+c.staleGrace).Err(); err != nil {
		c.errs.Add(1)
		return fmt.Errorf("redis set: %w", err)
	}
	c.sets.Add(1)
	return nil
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, fingerprint string) error {
	if err := c.client.Del(ctx, c.prefixKey(fingerprint)).Err(); err != nil {
		c.errs.Add(1)
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear implements Cache. Scans the namespace rather than flushing the
// whole database, which may be shared.
func (c *RedisCache) Clear(ctx context.Context) error {
	pattern := c.prefixKey("*")
	iter := c.client.Scan(ctx, 0, pattern, 200).Iterator()

	keys := make([]string, 0, 200)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 200 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del batch: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del batch: %w", err)
		}
	}
	return nil
}

// Ping implements Cache.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close implements Cache.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Stats implements Cache.
func (c *RedisCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		HitRate: hitRate,
	}
}
