// Package serper implements the Serper.dev Google search adapter.
package serper

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
	DefaultBaseURL    = "https://google.serper.dev"
	DefaultTimeout    = 5 * time.Second
	DefaultDailyLimit = 60
	DefaultMaxResults = 20
)

// Client implements providers.Adapter for Serper.
type Client struct {
	providers.Base
	config providers.Config
}

var _ providers.Adapter = (*Client)(nil)

// New creates a Serper client.
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

	httpClient := providers.NewHTTPClient(domain.ProviderSerper, providers.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		APIKey:       cfg.APIKey,
		APIKeyHeader: "X-API-KEY",
	})
	return &Client{
		Base:   providers.NewBase(domain.ProviderSerper, providers.Capabilities{Keyword: true}, httpClient, cfg.DailyLimit, cfg.MaxResults),
		config: cfg,
	}
}

// Search runs a Google search through Serper.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	if c.config.APIKey == "" {
		return nil, domain.NewProviderError(domain.ProviderSerper, domain.ErrorKindAuth, "API key not configured", nil).WithQuery(query)
	}
	num := c.Limit(maxResults)

	body, err := json.Marshal(SearchRequest{Q: query, Num: num})
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

	hits := make([]providers.Hit, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		hits = append(hits, providers.Hit{URL: r.Link, Title: r.Title, Description: r.Snippet})
	}
	return providers.Normalize(domain.ProviderSerper, query, num, hits), nil
}
