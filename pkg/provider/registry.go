package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Entry pairs a ranked descriptor with its adapter.
type Entry struct {
	Descriptor Descriptor
	Provider   Provider
}

// Registry holds the fallback chain: every configured provider, ordered by
// priority. Built once at startup; reads after that are lock-free copies.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	names   map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]int)}
}

// Register adds a provider to the chain. Names must be unique.
func (r *Registry) Register(desc Descriptor, p Provider) error {
	if desc.Name == "" {
		return fmt.Errorf("provider descriptor missing name")
	}
	if p == nil {
		return fmt.Errorf("provider %s: nil adapter", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names[desc.Name]; exists {
		return fmt.Errorf("provider %s already registered", desc.Name)
	}

	r.names[desc.Name] = len(r.entries)
	r.entries = append(r.entries, Entry{Descriptor: desc, Provider: p})
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].Descriptor.Priority < r.entries[j].Descriptor.Priority
	})
	for i, e := range r.entries {
		r.names[e.Descriptor.Name] = i
	}
	return nil
}

// ByPriority returns the chain in ascending priority order.
func (r *Registry) ByPriority() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.names[name]
	if !ok {
		return Entry{}, false
	}
	return r.entries[idx], true
}

// Names returns registered provider names in priority order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Descriptor.Name
	}
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
