// Package counter provides the durable counter store used to persist quota
// ledger totals across process restarts. Every backend degrades the same
// way: a read error is reported to the caller, who treats the counter as
// absent and cold-starts.
package counter

import (
	"context"
	"time"
)

// Store is a key/value store of integer counters with per-key expiry.
type Store interface {
	// Get returns the counter value and whether it exists. Absence is
	// (0, false, nil); errors are reserved for backend failures.
	Get(ctx context.Context, key string) (int64, bool, error)
	// SetWithExpiry stores value under key, expiring after ttl.
	SetWithExpiry(ctx context.Context, key string, value int64, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}
