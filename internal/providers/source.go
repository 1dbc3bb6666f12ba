// Package providers defines the search provider abstraction and runs a query
// across every enabled provider concurrently.
//
// Each vendor (Brave, SearXNG, Serper, Tavily, Perplexica) lives in its own
// subpackage and implements Adapter:
//
//	adapter := brave.New(providers.Config{APIKey: key, DailyLimit: 50})
//	results, err := adapter.Search(ctx, "bulgaria education grants", 20)
package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/northstar/funding-discovery/internal/domain"
)

// Adapter is one web search vendor.
type Adapter interface {
	// Search runs query and returns at most maxResults normalized hits.
	// An empty result set is a success. Failures are *domain.ProviderError.
	Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error)

	// ProviderID identifies the vendor.
	ProviderID() domain.ProviderID

	// SupportsKeywordQueries reports whether the vendor takes short keyword queries.
	SupportsKeywordQueries() bool

	// SupportsAIQueries reports whether the vendor takes natural-language queries.
	SupportsAIQueries() bool

	// CurrentUsage returns the calls made in the rolling 24h window.
	CurrentUsage() int

	// RateLimit returns the daily call quota, 0 meaning unlimited.
	RateLimit() int
}

// Config holds the vendor-independent adapter settings.
type Config struct {
	// BaseURL overrides the vendor's API base URL.
	BaseURL string

	// APIKey authenticates with the vendor. Not all vendors need one.
	APIKey string

	// Timeout bounds one HTTP attempt.
	Timeout time.Duration

	// DailyLimit is the call quota per rolling 24h window (0 = unlimited).
	DailyLimit int

	// MaxResults caps the results requested per call.
	MaxResults int

	// SearchDepth is passed to vendors that support it (Tavily).
	SearchDepth string
}

// Capabilities describes which query styles a vendor accepts.
type Capabilities struct {
	Keyword bool
	AI      bool
}

// Base implements the bookkeeping half of Adapter. Vendor adapters embed it
// and call Do for every request.
type Base struct {
	id    domain.ProviderID
	caps  Capabilities
	http  *HTTPClient
	usage *UsageTracker
	max   int
}

// NewBase creates the shared adapter state. dailyLimit also becomes the
// limit quoted by httpClient when the vendor answers 429.
func NewBase(id domain.ProviderID, caps Capabilities, httpClient *HTTPClient, dailyLimit, maxResults int) Base {
	if httpClient != nil && httpClient.config.DailyLimit == 0 {
		httpClient.config.DailyLimit = dailyLimit
	}
	return Base{
		id:    id,
		caps:  caps,
		http:  httpClient,
		usage: NewUsageTracker(id, dailyLimit),
		max:   maxResults,
	}
}

func (b *Base) ProviderID() domain.ProviderID { return b.id }
func (b *Base) SupportsKeywordQueries() bool  { return b.caps.Keyword }
func (b *Base) SupportsAIQueries() bool       { return b.caps.AI }
func (b *Base) CurrentUsage() int             { return b.usage.Current() }
func (b *Base) RateLimit() int                { return b.usage.Limit() }

// Usage exposes the quota tracker, so a restarted worker can restore it.
func (b *Base) Usage() *UsageTracker { return b.usage }

// Limit clamps a requested result count to the configured maximum.
func (b *Base) Limit(requested int) int {
	if requested <= 0 || (b.max > 0 && requested > b.max) {
		return b.max
	}
	return requested
}

// Do spends one unit of quota and sends req, decoding the JSON body into out.
// When the quota is spent no request is sent.
func (b *Base) Do(req *http.Request, query string, out any) error {
	if err := b.usage.Acquire(); err != nil {
		return withQuery(err, query)
	}
	return withQuery(b.http.DoJSON(req, out), query)
}

func withQuery(err error, query string) error {
	if err == nil {
		return nil
	}
	if pe, ok := domain.AsProviderError(err); ok && pe.Query == "" {
		pe.WithQuery(query)
	}
	return err
}

// Normalize converts raw vendor hits into search results, dropping hits
// without a URL and truncating to max. Rank positions start at 1.
func Normalize(provider domain.ProviderID, query string, max int, hits []Hit) []domain.SearchResult {
	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		if h.URL == "" {
			continue
		}
		if max > 0 && len(results) >= max {
			break
		}
		results = append(results, domain.NewSearchResult(provider, query, h.URL, h.Title, h.Description, len(results)+1))
	}
	return results
}

// Hit is a vendor result before normalization.
type Hit struct {
	URL         string
	Title       string
	Description string
}
