package cache

import (
	"fmt"

	"github.com/efikuta/youtube-knowledge-mcp/internal/schedule"
)

// Driver selects the cache backend.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
	DriverDual   Driver = "dual"
)

// Config holds the complete cache configuration.
type Config struct {
	Driver Driver           `yaml:"driver"`
	TTL    TTLConfig        `yaml:"ttl"`
	Memory MemoryConfig     `yaml:"memory"`
	Redis  RedisCacheConfig `yaml:"redis"`
	Dual   DualConfig       `yaml:"dual"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver: DriverMemory,
		TTL:    DefaultTTLConfig(),
		Memory: DefaultMemoryConfig(),
		Redis:  DefaultRedisCacheConfig(),
		Dual:   DefaultDualConfig(),
	}
}

// New builds a cache from configuration. The top-level TTL table overrides
// each tier's own so one table governs every driver.
func New(cfg Config, sched schedule.Scheduler) (Cache, error) {
	if cfg.TTL != (TTLConfig{}) {
		cfg.Memory.TTL = cfg.TTL
		cfg.Redis.TTL = cfg.TTL
	}

	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryCache(cfg.Memory, sched), nil
	case DriverRedis:
		return NewRedisCache(cfg.Redis)
	case DriverDual:
		remote, err := NewRedisCache(cfg.Redis)
		if err != nil {
			return nil, err
		}
		local := NewMemoryCache(cfg.Memory, sched)
		return NewDualCache(local, remote, cfg.Dual), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
