// Package resilience protects search provider calls with a sliding-window
// circuit breaker, bounded exponential retries and a token-bucket limiter.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/northstar/funding-discovery/internal/domain"
)

// transientSubstrings indicate a transient failure when the error carries no
// structured kind.
var transientSubstrings = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"eof",
	"server_error",
	"service unavailable",
	"temporary",
}

var timeoutSubstrings = []string{
	"timeout",
	"deadline exceeded",
	"i/o timeout",
}

// permanentSubstrings are chosen to avoid false positives: "unauthorized"
// instead of "auth", "invalid request" instead of bare "invalid".
var permanentSubstrings = []string{
	"unauthorized",
	"forbidden",
	"bad request",
	"not found",
	"invalid request",
	"invalid parameter",
	"unsupported protocol scheme",
}

// Classify maps err to a provider error kind.
//
// Priority:
//  1. *domain.ProviderError carries its own kind
//  2. an open circuit is transient
//  3. context deadlines and network timeouts are timeouts
//  4. message substrings, timeout then transient then permanent
//  5. anything else is transient
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}

	if pe, ok := domain.AsProviderError(err); ok {
		return pe.Kind
	}
	if errors.Is(err, domain.ErrCircuitOpen) {
		return domain.ErrorKindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.ErrorKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrorKindTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, sub := range timeoutSubstrings {
		if strings.Contains(msg, sub) {
			return domain.ErrorKindTimeout
		}
	}
	for _, sub := range transientSubstrings {
		if strings.Contains(msg, sub) {
			return domain.ErrorKindTransient
		}
	}
	for _, sub := range permanentSubstrings {
		if strings.Contains(msg, sub) {
			return domain.ErrorKindPermanent
		}
	}

	return domain.ErrorKindTransient
}

// countsAsFailure reports whether an error of kind k says the provider is
// unhealthy. Auth, permanent and quota errors mean the provider answered.
func countsAsFailure(k domain.ErrorKind) bool {
	return k == domain.ErrorKindTransient || k == domain.ErrorKindTimeout
}
