package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// SearchResult is one normalized hit returned by a provider.
// It is immutable once produced by an adapter.
type SearchResult struct {
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	DomainName   string     `json:"domain_name"`
	Provider     ProviderID `json:"provider"`
	Query        string     `json:"query"`
	RankPosition int        `json:"rank_position"`
	DiscoveredAt time.Time  `json:"discovered_at"`
}

// NewSearchResult builds a SearchResult, normalizing the domain of rawURL.
// An unparseable URL leaves DomainName empty; the pipeline counts it later.
func NewSearchResult(provider ProviderID, query, rawURL, title, description string, rank int) SearchResult {
	domainName, _ := NormalizeDomain(rawURL)
	return SearchResult{
		URL:          strings.TrimSpace(rawURL),
		Title:        strings.TrimSpace(title),
		Description:  strings.TrimSpace(description),
		DomainName:   domainName,
		Provider:     provider,
		Query:        query,
		RankPosition: rank,
		DiscoveredAt: time.Now().UTC(),
	}
}

// NormalizeDomain reduces a URL or bare host to its deduplication key: lowercase,
// without scheme, "www." prefix, port, path or query. It is idempotent, so an
// already normalized domain maps to itself.
func NormalizeDomain(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidInput)
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	for strings.HasPrefix(host, "www.") {
		host = strings.TrimPrefix(host, "www.")
	}
	if host == "" || !strings.Contains(host, ".") {
		return "", fmt.Errorf("%w: no registrable host in %q", ErrInvalidInput, raw)
	}
	if _, err := idna.Lookup.ToASCII(host); err != nil {
		return "", fmt.Errorf("%w: host %q: %v", ErrInvalidInput, host, err)
	}
	return host, nil
}
