// Package perplexica implements the adapter for a self-hosted Perplexica
// instance. Perplexica fans a query out to several engines and an LLM, so its
// timeout is the longest of all providers.
package perplexica

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
	DefaultBaseURL    = "http://localhost:3001"
	DefaultTimeout    = 15 * time.Second
	DefaultMaxResults = 20

	focusMode        = "webSearch"
	optimizationMode = "balanced"
)

// Client implements providers.Adapter for Perplexica.
type Client struct {
	providers.Base
	config providers.Config
}

var _ providers.Adapter = (*Client)(nil)

// New creates a Perplexica client.
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

	httpClient := providers.NewHTTPClient(domain.ProviderPerplexica, providers.HTTPClientConfig{Timeout: cfg.Timeout})
	return &Client{
		Base:   providers.NewBase(domain.ProviderPerplexica, providers.Capabilities{Keyword: true, AI: true}, httpClient, cfg.DailyLimit, cfg.MaxResults),
		config: cfg,
	}
}

// Search asks Perplexica and returns the sources it cited. Sources without
// metadata are skipped.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	body, err := json.Marshal(SearchRequest{
		Query:            query,
		FocusMode:        focusMode,
		OptimizationMode: optimizationMode,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp SearchResponse
	if err := c.Do(req, query, &resp); err != nil {
		return nil, err
	}

	hits := make([]providers.Hit, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		if s.Metadata == nil {
			continue
		}
		hits = append(hits, providers.Hit{URL: s.Metadata.URL, Title: s.Metadata.Title, Description: s.PageContent})
	}
	return providers.Normalize(domain.ProviderPerplexica, query, c.Limit(maxResults), hits), nil
}
