package providers

import (
	"context"
	"sort"
	"sync"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/resilience"
)

// Registry holds the enabled adapters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.ProviderID]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[domain.ProviderID]Adapter)}
}

// Register adds an adapter, replacing any adapter with the same ID.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ProviderID()] = a
}

// Get returns the adapter for id, or nil.
func (r *Registry) Get(id domain.ProviderID) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[id]
}

// All returns a snapshot of the registered adapters ordered by ID.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID() < out[j].ProviderID() })
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// GuardedAdapter decorates an adapter with a resilience guard.
type GuardedAdapter struct {
	Adapter
	guard *resilience.Guard
}

// WithGuard wraps a so every Search passes through g.
func WithGuard(a Adapter, g *resilience.Guard) *GuardedAdapter {
	return &GuardedAdapter{Adapter: a, guard: g}
}

// Search runs the wrapped adapter's Search under the guard.
func (g *GuardedAdapter) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	var results []domain.SearchResult
	err := g.guard.Execute(ctx, func(ctx context.Context) error {
		var err error
		results, err = g.Adapter.Search(ctx, query, maxResults)
		return err
	})
	if err != nil {
		if pe, ok := domain.AsProviderError(err); ok && pe.Query == "" {
			pe.WithQuery(query)
		}
		return nil, err
	}
	return results, nil
}
