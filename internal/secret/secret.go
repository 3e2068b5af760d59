// Package secret resolves credential references from configuration.
// A reference is scheme-routed ("env://YOUTUBE_API_KEY",
// "vault://kv/data/ytkm#api_key"); anything without a scheme passes
// through as a literal so plain keys in local configs keep working.
package secret

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Provider fetches secret values for one scheme.
type Provider interface {
	// Get returns the value at path (the part after "scheme://").
	Get(ctx context.Context, path string) (string, error)
	// Close releases provider resources.
	Close() error
}

// Resolver routes secret references to registered providers by scheme.
type Resolver struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewResolver creates an empty resolver. Register providers before use.
func NewResolver() *Resolver {
	return &Resolver{providers: make(map[string]Provider)}
}

// Register routes scheme to provider, replacing any previous registration.
func (r *Resolver) Register(scheme string, provider Provider) {
	r.mu.Lock()
	r.providers[scheme] = provider
	r.mu.Unlock()
}

// Resolve returns the value behind ref. References without "://" are
// returned verbatim; empty references resolve to empty.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	scheme, path, ok := strings.Cut(ref, "://")
	if !ok {
		return ref, nil
	}

	r.mu.RLock()
	provider, registered := r.providers[scheme]
	r.mu.RUnlock()

	if !registered {
		return "", fmt.Errorf("no secret provider for scheme %q", scheme)
	}
	return provider.Get(ctx, path)
}

// ResolveOptional is Resolve for credentials whose absence disables a
// feature instead of failing startup: resolution errors map to "".
func (r *Resolver) ResolveOptional(ctx context.Context, ref string) string {
	value, err := r.Resolve(ctx, ref)
	if err != nil {
		return ""
	}
	return value
}

// Close closes every registered provider.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for scheme, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", scheme, err))
		}
	}
	return errors.Join(errs...)
}
