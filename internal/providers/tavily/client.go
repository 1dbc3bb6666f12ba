// Package tavily implements the Tavily AI search adapter. Tavily accepts both
// keyword and natural-language queries.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/providers"
)

const (
	DefaultBaseURL     = "https://api.tavily.com"
	DefaultTimeout     = 6 * time.Second
	DefaultDailyLimit  = 25
	DefaultMaxResults  = 20
	DefaultSearchDepth = "basic"
)

// Client implements providers.Adapter for Tavily.
type Client struct {
	providers.Base
	config providers.Config
}

var _ providers.Adapter = (*Client)(nil)

// New creates a Tavily client.
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
	if cfg.SearchDepth == "" {
		cfg.SearchDepth = DefaultSearchDepth
	}

	// The key goes in the request body, not a header.
	httpClient := providers.NewHTTPClient(domain.ProviderTavily, providers.HTTPClientConfig{Timeout: cfg.Timeout})
	return &Client{
		Base:   providers.NewBase(domain.ProviderTavily, providers.Capabilities{Keyword: true, AI: true}, httpClient, cfg.DailyLimit, cfg.MaxResults),
		config: cfg,
	}
}

// Search runs a Tavily search.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	if c.config.APIKey == "" {
		return nil, domain.NewProviderError(domain.ProviderTavily, domain.ErrorKindAuth, "API key not configured", nil).WithQuery(query)
	}
	limit := c.Limit(maxResults)

	body, err := json.Marshal(SearchRequest{
		APIKey:        c.config.APIKey,
		Query:         query,
		MaxResults:    limit,
		SearchDepth:   c.config.SearchDepth,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp SearchResponse
	if err := c.Do(req, query, &resp); err != nil {
		return nil, err
	}

	hits := make([]providers.Hit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hits = append(hits, providers.Hit{URL: r.URL, Title: r.Title, Description: r.Content})
	}
	return providers.Normalize(domain.ProviderTavily, query, limit, hits), nil
}
