package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a provider failure. The kind decides whether the
// resilience layer retries the call.
type ErrorKind string

const (
	// ErrorKindAuth is a rejected credential (401/403). Never retried.
	ErrorKindAuth ErrorKind = "AUTH"
	// ErrorKindRateLimit is a vendor 429 or an exhausted local quota. Never retried within the call.
	ErrorKindRateLimit ErrorKind = "RATE_LIMIT"
	// ErrorKindTimeout is a call that exceeded its deadline. Retried.
	ErrorKindTimeout ErrorKind = "TIMEOUT"
	// ErrorKindTransient is a 5xx or network failure. Retried.
	ErrorKindTransient ErrorKind = "TRANSIENT"
	// ErrorKindPermanent is any other 4xx or an undecodable response. Never retried.
	ErrorKindPermanent ErrorKind = "PERMANENT"
)

// Sentinels matched by errors.Is against a *ProviderError of the same kind.
var (
	ErrAuth      = errors.New("provider authentication failed")
	ErrRateLimit = errors.New("provider rate limit exceeded")
	ErrTimeout   = errors.New("provider timeout")
	ErrTransient = errors.New("provider transient failure")
	ErrPermanent = errors.New("provider permanent failure")
)

// Sentinel returns the sentinel error for the kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case ErrorKindAuth:
		return ErrAuth
	case ErrorKindRateLimit:
		return ErrRateLimit
	case ErrorKindTimeout:
		return ErrTimeout
	case ErrorKindTransient:
		return ErrTransient
	default:
		return ErrPermanent
	}
}

// Retryable reports whether a failure of this kind may succeed on another attempt.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindTransient || k == ErrorKindTimeout
}

// ProviderError records one failed provider call. It is attached to the
// discovery session and never fails the session on its own.
type ProviderError struct {
	Provider   ProviderID `json:"provider"`
	Kind       ErrorKind  `json:"kind"`
	Message    string     `json:"message"`
	OccurredAt time.Time  `json:"occurred_at"`
	Query      string     `json:"query,omitempty"`
	StatusCode int        `json:"status_code,omitempty"`

	cause error
}

// NewProviderError creates a ProviderError stamped with the current time.
func NewProviderError(provider ProviderID, kind ErrorKind, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		Message:    message,
		OccurredAt: time.Now().UTC(),
		cause:      cause,
	}
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s error (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, e.Message)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *ProviderError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind.Sentinel(), e.cause}
	}
	return []error{e.Kind.Sentinel()}
}

// WithQuery returns the error annotated with the query that triggered it.
func (e *ProviderError) WithQuery(query string) *ProviderError {
	e.Query = query
	return e
}

// WithStatus returns the error annotated with the HTTP status code.
func (e *ProviderError) WithStatus(code int) *ProviderError {
	e.StatusCode = code
	return e
}

// AsProviderError extracts a *ProviderError from err, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
