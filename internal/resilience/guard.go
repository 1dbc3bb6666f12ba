package resilience

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
)

// Guard applies the breaker, retrier and limiter, in that order, to calls of
// one provider. It is safe for concurrent use.
type Guard struct {
	provider domain.ProviderID
	breaker  *CircuitBreaker
	limiter  *RateLimiter
	retry    RetryConfig
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// GuardConfig assembles a Guard.
type GuardConfig struct {
	Provider domain.ProviderID
	Breaker  *CircuitBreaker
	Limiter  *RateLimiter
	Retry    RetryConfig
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
}

// NewGuard creates a Guard. A nil breaker or limiter gets a default one.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.Breaker == nil {
		cfg.Breaker = NewCircuitBreaker(DefaultBreakerConfig())
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(0, 1)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Guard{
		provider: cfg.Provider,
		breaker:  cfg.Breaker,
		limiter:  cfg.Limiter,
		retry:    cfg.Retry,
		logger:   cfg.Logger.With().Str("provider", string(cfg.Provider)).Logger(),
		metrics:  cfg.Metrics,
	}
}

// Breaker returns the guard's circuit breaker.
func (g *Guard) Breaker() *CircuitBreaker {
	return g.breaker
}

// Execute runs op under the guard. While the breaker is open it fails at once
// with an error matching domain.ErrCircuitOpen and op is not called.
func (g *Guard) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := g.breaker.Allow(); err != nil {
		return domain.NewProviderError(g.provider, domain.ErrorKindTransient, "circuit breaker open", err)
	}

	attempt := 1
	err := Retry(ctx, g.retry, func(ctx context.Context) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return domain.NewProviderError(g.provider, domain.ErrorKindRateLimit, "rate limiter wait", err)
		}
		return op(ctx)
	}, func(err error, wait time.Duration) {
		attempt++
		if g.metrics != nil {
			g.metrics.RecordRetry(string(g.provider))
		}
		g.logger.Warn().
			Err(err).
			Int("next_attempt", attempt).
			Dur("backoff", wait).
			Msg("retrying provider call")
	})

	if err != nil && countsAsFailure(Classify(err)) {
		g.breaker.RecordFailure()
	} else {
		g.breaker.RecordSuccess()
	}
	return err
}
