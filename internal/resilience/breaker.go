package resilience

import (
	"sync"
	"time"

	"github.com/northstar/funding-discovery/internal/domain"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a sliding-window circuit breaker.
type BreakerConfig struct {
	// WindowSize is the number of most recent calls considered.
	WindowSize int
	// MinimumCalls is the number of recorded calls needed before the failure rate is evaluated.
	MinimumCalls int
	// FailureRateThreshold opens the breaker once the failure rate reaches it.
	FailureRateThreshold float64
	// OpenDuration is how long the breaker rejects calls before allowing a probe.
	OpenDuration time.Duration
}

// DefaultBreakerConfig returns the standard provider breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		WindowSize:           10,
		MinimumCalls:         5,
		FailureRateThreshold: 0.5,
		OpenDuration:         30 * time.Second,
	}
}

// CircuitBreaker is a count-based sliding-window breaker.
// While open it rejects calls without touching the protected dependency.
// After OpenDuration a single probe is let through in the half-open state;
// its outcome closes or re-opens the breaker.
type CircuitBreaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu            sync.Mutex
	state         State
	window        []bool // true = failure
	next          int
	filled        int
	openedAt      time.Time
	probeInFlight bool
	onChange      func(State)
}

// NewCircuitBreaker creates a closed breaker. Zero config fields take the defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinimumCalls <= 0 {
		cfg.MinimumCalls = def.MinimumCalls
	}
	if cfg.MinimumCalls > cfg.WindowSize {
		cfg.MinimumCalls = cfg.WindowSize
	}
	if cfg.FailureRateThreshold <= 0 {
		cfg.FailureRateThreshold = def.FailureRateThreshold
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = def.OpenDuration
	}
	return &CircuitBreaker{
		cfg:    cfg,
		now:    time.Now,
		window: make([]bool, cfg.WindowSize),
	}
}

// Allow reports whether a call may proceed. It returns domain.ErrCircuitOpen
// while open, and while a half-open probe is already in flight.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.OpenDuration {
			return domain.ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probeInFlight = true
		return nil
	case StateHalfOpen:
		if cb.probeInFlight {
			return domain.ErrCircuitOpen
		}
		cb.probeInFlight = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.record(false)
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.record(true)
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.probeInFlight = false
		if failed {
			cb.open()
			return
		}
		cb.reset()
		cb.transition(StateClosed)
	case StateClosed:
		cb.window[cb.next] = failed
		cb.next = (cb.next + 1) % len(cb.window)
		if cb.filled < len(cb.window) {
			cb.filled++
		}
		if cb.filled >= cb.cfg.MinimumCalls && cb.failureRate() >= cb.cfg.FailureRateThreshold {
			cb.open()
		}
	}
	// Outcomes of calls admitted before the breaker opened are ignored.
}

// State returns the current state. An expired open state reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.OpenDuration {
		return StateHalfOpen
	}
	return cb.state
}

// FailureRate returns the failure rate over the recorded window.
func (cb *CircuitBreaker) FailureRate() float64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureRate()
}

// OnStateChange registers fn to be called, under the breaker lock, on every transition.
func (cb *CircuitBreaker) OnStateChange(fn func(State)) {
	cb.mu.Lock()
	cb.onChange = fn
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) failureRate() float64 {
	if cb.filled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < cb.filled; i++ {
		if cb.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(cb.filled)
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.now()
	cb.reset()
	cb.transition(StateOpen)
}

func (cb *CircuitBreaker) reset() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.next = 0
	cb.filled = 0
}

func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	cb.state = to
	if cb.onChange != nil {
		cb.onChange(to)
	}
}
