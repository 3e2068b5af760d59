// Package cache provides the response cache: a TTL store keyed by
// deterministic request fingerprints, with per-category lifetimes tuned to
// how fast each kind of YouTube data goes stale.
package cache

import (
	"context"
	"time"
)

// Category identifies the kind of payload behind a fingerprint and selects
// its default TTL.
type Category string

const (
	CategoryTranscripts Category = "transcripts"
	CategoryDetails     Category = "details"
	CategorySearch      Category = "search"
	CategoryComments    Category = "comments"
	CategoryGeneration  Category = "generation"
)

// TTLConfig holds per-category lifetimes.
type TTLConfig struct {
	Transcripts time.Duration `yaml:"transcripts"`
	Details     time.Duration `yaml:"details"`
	Search      time.Duration `yaml:"search"`
	Comments    time.Duration `yaml:"comments"`
	Generation  time.Duration `yaml:"generation"`
	Default     time.Duration `yaml:"default"`
}

// DefaultTTLConfig returns the standard lifetimes. Transcripts are immutable
// once published so they keep the longest TTL; search results churn fastest.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Transcripts: 24 * time.Hour,
		Details:     time.Hour,
		Search:      30 * time.Minute,
		Comments:    2 * time.Hour,
		Generation:  15 * time.Minute,
		Default:     time.Hour,
	}
}

// For returns the TTL for a category, falling back to Default.
func (c TTLConfig) For(category Category) time.Duration {
	var ttl time.Duration
	switch category {
	case CategoryTranscripts:
		ttl = c.Transcripts
	case CategoryDetails:
		ttl = c.Details
	case CategorySearch:
		ttl = c.Search
	case CategoryComments:
		ttl = c.Comments
	case CategoryGeneration:
		ttl = c.Generation
	}
	if ttl <= 0 {
		ttl = c.Default
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return ttl
}

// Stats holds cache counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is the response cache shared by all callers. Implementations must
// never return an expired payload from Get; GetStale is the only
// expired-tolerant read and exists for budget-exhaustion degradation.
type Cache interface {
	// Get returns the payload for fingerprint, or (nil, nil) on miss or
	// expiry. Expired entries found on the read path are evicted.
	Get(ctx context.Context, fingerprint string) ([]byte, error)
	// GetStale returns the payload even when expired, with stale=true.
	// Best-effort: the background sweep eventually removes expired entries,
	// after which the payload is gone for stale readers too.
	GetStale(ctx context.Context, fingerprint string) (payload []byte, stale bool, err error)
	// Set stores payload. A non-positive ttl selects the default for the
	// category embedded in the fingerprint.
	Set(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error
	// Delete removes the entry unconditionally.
	Delete(ctx context.Context, fingerprint string) error
	// Clear removes every entry.
	Clear(ctx context.Context) error
	// Ping checks backend health.
	Ping(ctx context.Context) error
	// Close stops background work and releases resources.
	Close() error
	// Stats returns counters since start.
	Stats() Stats
}
