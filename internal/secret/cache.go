package secret

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedProvider memoizes another provider's lookups so hot-reload paths
// do not hammer the backing store. Values expire after ttl; the janitor
// sweeps at twice that.
type CachedProvider struct {
	inner Provider
	cache *gocache.Cache
}

// NewCachedProvider wraps inner with a ttl-bounded cache.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProvider{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Get implements Provider. Errors are never cached.
func (p *CachedProvider) Get(ctx context.Context, path string) (string, error) {
	if cached, ok := p.cache.Get(path); ok {
		if value, ok := cached.(string); ok {
			return value, nil
		}
	}

	value, err := p.inner.Get(ctx, path)
	if err != nil {
		return "", err
	}
	p.cache.Set(path, value, gocache.DefaultExpiration)
	return value, nil
}

// Close implements Provider.
func (p *CachedProvider) Close() error {
	p.cache.Flush()
	return p.inner.Close()
}
