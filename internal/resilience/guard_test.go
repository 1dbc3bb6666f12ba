package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, Multiplier: 2}
}

func newTestGuard(t *testing.T, metrics *observability.Metrics) *Guard {
	t.Helper()
	return NewGuard(GuardConfig{
		Provider: domain.ProviderBrave,
		Retry:    fastRetry(),
		Logger:   zerolog.Nop(),
		Metrics:  metrics,
	})
}

func transientErr() error {
	return domain.NewProviderError(domain.ProviderBrave, domain.ErrorKindTransient, "bad gateway", nil).WithStatus(502)
}

func TestGuard_RetriesTransientErrors(t *testing.T) {
	metrics := observability.NewMetrics("test_guard_retry")
	g := newTestGuard(t, metrics)

	var calls atomic.Int32
	err := g.Execute(context.Background(), func(context.Context) error {
		if calls.Add(1) < 3 {
			return transientErr()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.RetryAttempts.WithLabelValues("brave")))
	assert.Equal(t, StateClosed, g.Breaker().State())
}

func TestGuard_StopsAfterThreeAttempts(t *testing.T) {
	g := newTestGuard(t, nil)

	var calls atomic.Int32
	err := g.Execute(context.Background(), func(context.Context) error {
		calls.Add(1)
		return transientErr()
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransient))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGuard_DoesNotRetryNonRetryableKinds(t *testing.T) {
	kinds := []domain.ErrorKind{domain.ErrorKindAuth, domain.ErrorKindPermanent, domain.ErrorKindRateLimit}

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			g := newTestGuard(t, nil)
			var calls atomic.Int32

			err := g.Execute(context.Background(), func(context.Context) error {
				calls.Add(1)
				return domain.NewProviderError(domain.ProviderBrave, kind, "nope", nil)
			})

			require.Error(t, err)
			assert.Equal(t, kind, Classify(err))
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestGuard_NonRetryableErrorsDoNotOpenBreaker(t *testing.T) {
	g := newTestGuard(t, nil)
	for i := 0; i < 10; i++ {
		_ = g.Execute(context.Background(), func(context.Context) error {
			return domain.NewProviderError(domain.ProviderBrave, domain.ErrorKindAuth, "bad key", nil)
		})
	}
	assert.Equal(t, StateClosed, g.Breaker().State())
}

func TestGuard_OpenBreakerFailsFast(t *testing.T) {
	g := newTestGuard(t, nil)

	for i := 0; i < 5; i++ {
		_ = g.Execute(context.Background(), func(context.Context) error { return transientErr() })
	}
	require.Equal(t, StateOpen, g.Breaker().State())

	var called bool
	start := time.Now()
	err := g.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCircuitOpen))
	assert.False(t, called, "adapter must not be invoked while open")
	assert.Less(t, elapsed, 5*time.Millisecond)
}

func TestGuard_ContextCancelStopsRetries(t *testing.T) {
	g := NewGuard(GuardConfig{
		Provider: domain.ProviderSerper,
		Retry:    RetryConfig{MaxAttempts: 3, InitialBackoff: time.Second, Multiplier: 2},
		Logger:   zerolog.Nop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var calls atomic.Int32
	start := time.Now()
	err := g.Execute(ctx, func(context.Context) error {
		calls.Add(1)
		return transientErr()
	})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, domain.ErrorKindTimeout, Classify(err))
}

func TestGuard_LimiterWaitsBetweenCalls(t *testing.T) {
	g := NewGuard(GuardConfig{
		Provider: domain.ProviderTavily,
		Limiter:  NewRateLimiter(0.001, 1),
		Retry:    fastRetry(),
		Logger:   zerolog.Nop(),
	})

	require.NoError(t, g.Execute(context.Background(), func(context.Context) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := g.Execute(ctx, func(context.Context) error { return nil })

	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindRateLimit, Classify(err))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"nil", nil, ""},
		{"provider error", domain.NewProviderError(domain.ProviderSerper, domain.ErrorKindAuth, "401", nil), domain.ErrorKindAuth},
		{"wrapped provider error", fmt.Errorf("search: %w", transientErr()), domain.ErrorKindTransient},
		{"circuit open", fmt.Errorf("call: %w", domain.ErrCircuitOpen), domain.ErrorKindTransient},
		{"deadline", context.DeadlineExceeded, domain.ErrorKindTimeout},
		{"canceled", context.Canceled, domain.ErrorKindTimeout},
		{"net timeout", timeoutErr{}, domain.ErrorKindTimeout},
		{"connection reset", errors.New("read: connection reset by peer"), domain.ErrorKindTransient},
		{"unauthorized message", errors.New("Unauthorized"), domain.ErrorKindPermanent},
		{"unknown", errors.New("something odd"), domain.ErrorKindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, 3)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(), "request %d within burst", i+1)
	}
	assert.False(t, rl.Allow())

	unlimited := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow())
	}
}
