package resilience

import (
	"sync"
)

// BreakerRegistry provides one circuit breaker per search provider.
// It is safe for concurrent use and lazily creates breakers on first access.
//
// Breakers are process-local: they live in the worker next to the provider
// adapters, never inside workflow code.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	cfg      BreakerConfig
	onChange func(name string, s State)
}

// NewBreakerRegistry creates a registry whose breakers all use cfg.
func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// OnStateChange registers fn for transitions of breakers created after the call.
func (r *BreakerRegistry) OnStateChange(fn func(name string, s State)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Get returns the breaker for name, creating it if needed.
func (r *BreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := NewCircuitBreaker(r.cfg)
	if fn := r.onChange; fn != nil {
		cb.OnStateChange(func(s State) { fn(name, s) })
	}
	r.breakers[name] = cb
	return cb
}

// State returns the state of the named breaker, or StateClosed if it has not
// been created yet.
func (r *BreakerRegistry) State(name string) State {
	r.mu.Lock()
	cb, ok := r.breakers[name]
	r.mu.Unlock()

	if !ok {
		return StateClosed
	}
	return cb.State()
}

// States returns a snapshot of every known breaker state, keyed by name.
func (r *BreakerRegistry) States() map[string]State {
	r.mu.Lock()
	snapshot := make(map[string]*CircuitBreaker, len(r.breakers))
	for k, v := range r.breakers {
		snapshot[k] = v
	}
	r.mu.Unlock()

	out := make(map[string]State, len(snapshot))
	for k, cb := range snapshot {
		out[k] = cb.State()
	}
	return out
}
