package cache

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/efikuta/youtube-knowledge-mcp/internal/schedule"
)

// sweepTask names the recurring eviction task on the scheduler.
const sweepTask = "cache-sweep"

// MemoryCache is the in-process response cache. Expiry is enforced twice:
// lazily on reads and by a scheduled sweep over an expiration min-heap, so
// entries written once and never re-read still get reclaimed.
type MemoryCache struct {
	mu sync.RWMutex

	data map[string]*memoryEntry
	ttls map[string]int64 // fingerprint -> expiration (unix nano)

	expirationHeap expirationHeap

	maxEntries int
	ttlcfg     TTLConfig
	now        func() time.Time
	stopSweep  func()

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

type memoryEntry struct {
	payload    []byte
	createdAt  int64
	expiration int64 // unix nano
}

type expirationEntry struct {
	fingerprint string
	expiration  int64
	index       int
}

// expirationHeap is a min-heap ordered by expiration time.
type expirationHeap []*expirationEntry

func (h expirationHeap) Len() int           { return len(h) }
func (h expirationHeap) Less(i, j int) bool { return h[i].expiration < h[j].expiration }
func (h expirationHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expirationHeap) Push(x any) {
	n := len(*h)
	entry, ok := x.(*expirationEntry)
	if !ok {
		return
	}
	entry.index = n
	*h = append(*h, entry)
}

func (h *expirationHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[0 : n-1]
	return entry
}

// MemoryConfig holds configuration for MemoryCache.
type MemoryConfig struct {
	MaxEntries    int           `yaml:"max_entries"`    // default 2000
	SweepInterval time.Duration `yaml:"sweep_interval"` // default 5 minutes
	TTL           TTLConfig     `yaml:"ttl"`
}

// DefaultMemoryConfig returns sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxEntries:    2000,
		SweepInterval: 5 * time.Minute,
		TTL:           DefaultTTLConfig(),
	}
}

// NewMemoryCache creates the cache and registers its sweep with the
// scheduler. A nil scheduler disables the background sweep; lazy eviction
// still applies.
func NewMemoryCache(cfg MemoryConfig, sched schedule.Scheduler) *MemoryCache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 2000
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}

	c := &MemoryCache{
		data:           make(map[string]*memoryEntry),
		ttls:           make(map[string]int64),
		expirationHeap: make(expirationHeap, 0),
		maxEntries:     cfg.MaxEntries,
		ttlcfg:         cfg.TTL,
		now:            time.Now,
	}
	heap.Init(&c.expirationHeap)

	if sched != nil {
		c.stopSweep = sched.Every(sweepTask, cfg.SweepInterval, func(ctx context.Context) {
			c.EvictExpired()
		})
	}

	return c
}

// Get implements Cache.
func (c *MemoryCache) Get(ctx context.Context, fingerprint string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.data[fingerprint]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, nil
	}

	if entry.expiration > 0 && entry.expiration <= c.now().UnixNano() {
		c.misses.Add(1)
		// Lazy eviction, guarding against a concurrent overwrite.
		c.mu.Lock()
		if cur, ok := c.data[fingerprint]; ok && cur.expiration == entry.expiration {
			delete(c.data, fingerprint)
			delete(c.ttls, fingerprint)
			c.evictions.Add(1)
		}
		c.mu.Unlock()
		return nil, nil
	}

	c.hits.Add(1)
	return cloneBytes(entry.payload), nil
}

// GetStale implements Cache. Expired entries are returned flagged, not
// evicted; the sweep reclaims them on its own cadence.
func (c *MemoryCache) GetStale(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[fingerprint]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}

	stale := entry.expiration > 0 && entry.expiration <= c.now().UnixNano()
	if stale {
		c.misses.Add(1)
	} else {
		c.hits.Add(1)
	}
	return cloneBytes(entry.payload), stale, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttlcfg.For(CategoryOf(fingerprint))
	}

	now := c.now()
	expiration := now.Add(ttl).UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.data) >= c.maxEntries {
		c.evictForSpaceLocked()
	}

	c.data[fingerprint] = &memoryEntry{
		payload:    cloneBytes(payload),
		createdAt:  now.UnixNano(),
		expiration: expiration,
	}
	c.ttls[fingerprint] = expiration

	heap.Push(&c.expirationHeap, &expirationEntry{
		fingerprint: fingerprint,
		expiration:  expiration,
	})

	c.sets.Add(1)
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(ctx context.Context, fingerprint string) error {
	c.mu.Lock()
	delete(c.data, fingerprint)
	delete(c.ttls, fingerprint)
	c.mu.Unlock()
	return nil
}

// Clear implements Cache.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.data = make(map[string]*memoryEntry)
	c.ttls = make(map[string]int64)
	c.expirationHeap = make(expirationHeap, 0)
	heap.Init(&c.expirationHeap)
	c.mu.Unlock()
	return nil
}

// EvictExpired removes every expired entry. Called by the scheduled sweep
// and exposed for tests.
func (c *MemoryCache) EvictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()

	for c.expirationHeap.Len() > 0 {
		entry := c.expirationHeap[0]

		// A newer Set superseded this heap entry.
		if storedExp, ok := c.ttls[entry.fingerprint]; !ok || storedExp != entry.expiration {
			heap.Pop(&c.expirationHeap)
			continue
		}

		if entry.expiration <= now {
			heap.Pop(&c.expirationHeap)
			delete(c.data, entry.fingerprint)
			delete(c.ttls, entry.fingerprint)
			c.evictions.Add(1)
		} else {
			break
		}
	}
}

// evictForSpaceLocked frees room for one more entry, preferring expired
// entries and falling back to the soonest-to-expire.
func (c *MemoryCache) evictForSpaceLocked() {
	for c.expirationHeap.Len() > 0 && len(c.data) >= c.maxEntries {
		entry := heap.Pop(&c.expirationHeap).(*expirationEntry)

		if storedExp, ok := c.ttls[entry.fingerprint]; !ok || storedExp != entry.expiration {
			continue
		}

		delete(c.data, entry.fingerprint)
		delete(c.ttls, entry.fingerprint)
		c.evictions.Add(1)
	}
}

// Ping implements Cache.
func (c *MemoryCache) Ping(ctx context.Context) error { return nil }

// Close implements Cache.
func (c *MemoryCache) Close() error {
	if c.stopSweep != nil {
		c.stopSweep()
	}
	return nil
}

// Stats implements Cache.
func (c *MemoryCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:      hits,
		Misses:    misses,
		Sets:      c.sets.Load(),
		Evictions: c.evictions.Load(),
		HitRate:   hitRate,
	}
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
