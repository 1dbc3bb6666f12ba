// Package brave implements the Brave Search web API adapter.
package brave

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/providers"
)

const (
	// DefaultBaseURL is the Brave Search API base URL.
	DefaultBaseURL = "https://api.search.brave.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 5 * time.Second

	// DefaultDailyLimit is the free-tier quota.
	DefaultDailyLimit = 50

	// DefaultMaxResults is Brave's per-request maximum.
	DefaultMaxResults = 20

	searchPath = "/res/v1/web/search"
)

// Client implements providers.Adapter for Brave Search.
type Client struct {
	providers.Base
	config providers.Config
}

var _ providers.Adapter = (*Client)(nil)

// New creates a Brave client.
func New(cfg providers.Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	httpClient := providers.NewHTTPClient(domain.ProviderBrave, providers.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		APIKey:       cfg.APIKey,
		APIKeyHeader: "X-Subscription-Token",
	})

	return &Client{
		Base:   providers.NewBase(domain.ProviderBrave, providers.Capabilities{Keyword: true}, httpClient, cfg.DailyLimit, cfg.MaxResults),
		config: cfg,
	}
}

// Search queries the Brave web index.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	if c.config.APIKey == "" {
		return nil, domain.NewProviderError(domain.ProviderBrave, domain.ErrorKindAuth, "API key not configured", nil).WithQuery(query)
	}
	count := c.Limit(maxResults)

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+searchPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var resp SearchResponse
	if err := c.Do(req, query, &resp); err != nil {
		return nil, err
	}
	if resp.Web == nil {
		return []domain.SearchResult{}, nil
	}

	hits := make([]providers.Hit, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		hits = append(hits, providers.Hit{URL: r.URL, Title: r.Title, Description: r.Description})
	}
	return providers.Normalize(domain.ProviderBrave, query, count, hits), nil
}
