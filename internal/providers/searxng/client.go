// Package searxng implements the adapter for a self-hosted SearXNG metasearch
// instance. SearXNG needs no API key and has no vendor quota.
package searxng

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/providers"
)

const (
	DefaultBaseURL    = "http://localhost:8888"
	DefaultTimeout    = 7 * time.Second
	DefaultMaxResults = 25
)

// Client implements providers.Adapter for SearXNG.
type Client struct {
	providers.Base
	config providers.Config
}

var _ providers.Adapter = (*Client)(nil)

// New creates a SearXNG client.
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

	httpClient := providers.NewHTTPClient(domain.ProviderSearXNG, providers.HTTPClientConfig{Timeout: cfg.Timeout})
	return &Client{
		Base:   providers.NewBase(domain.ProviderSearXNG, providers.Capabilities{Keyword: true}, httpClient, cfg.DailyLimit, cfg.MaxResults),
		config: cfg,
	}
}

// Search queries the instance. SearXNG has no count parameter, so the
// response is truncated locally.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var resp SearchResponse
	if err := c.Do(req, query, &resp); err != nil {
		return nil, err
	}

	hits := make([]providers.Hit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, providers.Hit{URL: r.URL, Title: r.Title, Description: r.Content})
	}
	return providers.Normalize(domain.ProviderSearXNG, query, c.Limit(maxResults), hits), nil
}
