package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/northstar/funding-discovery/internal/domain"
)

const (
	defaultUserAgent = "Northstar-FundingDiscovery/1.0"
	maxErrorBody     = 1 << 12
	maxResponseBody  = 10 << 20
)

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key sent in APIKeyHeader.
	APIKey string

	// APIKeyHeader is the header carrying the API key (e.g. "X-API-KEY").
	// Vendors that expect the key in the body leave it empty.
	APIKeyHeader string

	// DailyLimit is the configured call quota, quoted in 429 errors.
	DailyLimit int
}

// HTTPClient performs one vendor request and maps failures onto provider
// error kinds. It never retries; the resilience layer owns retries.
// It is safe for concurrent use.
type HTTPClient struct {
	provider domain.ProviderID
	client   *http.Client
	config   HTTPClientConfig
}

// NewHTTPClient creates an HTTP client for provider.
func NewHTTPClient(provider domain.ProviderID, cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &HTTPClient{
		provider: provider,
		client:   &http.Client{Timeout: cfg.Timeout},
		config:   cfg,
	}
}

// DoJSON sends req and decodes a 200 response body into out.
//
// Status mapping: 401/403 auth, 429 rate limit, 408 timeout, other 4xx
// permanent, 5xx transient. Network failures are transient, deadlines are
// timeouts and undecodable bodies are permanent.
func (c *HTTPClient) DoJSON(req *http.Request, out any) error {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return c.transportError(req.Context(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return c.statusError(resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		if isTimeout(req.Context(), err) {
			return domain.NewProviderError(c.provider, domain.ErrorKindTimeout, "reading response", err)
		}
		return domain.NewProviderError(c.provider, domain.ErrorKindPermanent, "decoding response", err).
			WithStatus(resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) statusError(status int, body string) error {
	var kind domain.ErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = domain.ErrorKindAuth
	case status == http.StatusTooManyRequests:
		kind = domain.ErrorKindRateLimit
	case status == http.StatusRequestTimeout:
		kind = domain.ErrorKindTimeout
	case status >= 500:
		kind = domain.ErrorKindTransient
	default:
		kind = domain.ErrorKindPermanent
	}

	msg := http.StatusText(status)
	if kind == domain.ErrorKindRateLimit {
		if c.config.DailyLimit > 0 {
			msg = fmt.Sprintf("rate limited by vendor (configured limit %d calls/day)", c.config.DailyLimit)
		} else {
			msg = "rate limited by vendor (no configured daily limit)"
		}
	}
	if body != "" {
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	return domain.NewProviderError(c.provider, kind, msg, nil).WithStatus(status)
}

func (c *HTTPClient) transportError(ctx context.Context, err error) error {
	if isTimeout(ctx, err) {
		return domain.NewProviderError(c.provider, domain.ErrorKindTimeout, "request timed out", err)
	}
	return domain.NewProviderError(c.provider, domain.ErrorKindTransient, "request failed", err)
}

func isTimeout(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
