// Package registry decides whether a discovered domain is new, blacklisted or
// already seen in the current run.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/northstar/funding-discovery/internal/domain"
)

// Cache defaults.
const (
	DefaultCacheSize = 10000
	DefaultCacheTTL  = 5 * time.Minute
)

// Store is the persistence the registry needs.
type Store interface {
	IsBlacklisted(ctx context.Context, name string) (bool, error)
	Register(ctx context.Context, name string, sessionID uuid.UUID) (*domain.Domain, bool, error)
	Blacklist(ctx context.Context, name, by, reason string) (*domain.Domain, error)
}

// Config configures the blacklist cache.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Registry fronts the domain store with a TTL cache of blacklist lookups.
// It is safe for concurrent use.
type Registry struct {
	store  Store
	cache  *expirable.LRU[string, bool]
	logger zerolog.Logger
}

// New creates a Registry.
func New(store Store, cfg Config, logger zerolog.Logger) *Registry {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &Registry{
		store:  store,
		cache:  expirable.NewLRU[string, bool](cfg.CacheSize, nil, cfg.CacheTTL),
		logger: logger.With().Str("component", "domain_registry").Logger(),
	}
}

// ExtractDomain returns the normalized domain of an http(s) URL. It reports
// false for unparseable input, a missing host, a host without a dot, or any
// other scheme.
func ExtractDomain(rawURL string) (string, bool) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return "", false
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", false
	}
	if u.Hostname() == "" {
		return "", false
	}
	name, err := domain.NormalizeDomain(s)
	if err != nil {
		return "", false
	}
	return name, true
}

// IsBlacklisted reports whether name is blacklisted. A store error is logged
// and treated as not blacklisted, so a database hiccup never drops results.
func (r *Registry) IsBlacklisted(ctx context.Context, name string) bool {
	if v, ok := r.cache.Get(name); ok {
		return v
	}
	blacklisted, err := r.store.IsBlacklisted(ctx, name)
	if err != nil {
		r.logger.Warn().Err(err).Str("domain", name).Msg("blacklist lookup failed")
		return false
	}
	r.cache.Add(name, blacklisted)
	return blacklisted
}

// RegisterOrGet upserts the domain. The bool is true when it was newly created.
func (r *Registry) RegisterOrGet(ctx context.Context, name string, sessionID uuid.UUID) (*domain.Domain, bool, error) {
	d, created, err := r.store.Register(ctx, name, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("register domain %s: %w", name, err)
	}
	return d, created, nil
}

// Blacklist excludes name from future discovery, registering it first if unknown.
func (r *Registry) Blacklist(ctx context.Context, name, by, reason string) (*domain.Domain, error) {
	normalized, err := domain.NormalizeDomain(name)
	if err != nil {
		return nil, err
	}
	d, err := r.store.Blacklist(ctx, normalized, by, reason)
	if err != nil {
		return nil, fmt.Errorf("blacklist domain %s: %w", normalized, err)
	}
	r.cache.Add(normalized, true)
	r.logger.Info().Str("domain", normalized).Str("by", by).Str("reason", reason).Msg("domain blacklisted")
	return d, nil
}

// Invalidate drops a cached blacklist lookup.
func (r *Registry) Invalidate(name string) {
	r.cache.Remove(name)
}

// NewRun starts a fresh within-run seen set.
func (r *Registry) NewRun() *Run {
	return &Run{seen: make(map[string]struct{})}
}

// Run tracks the domains seen by one pipeline pass.
type Run struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// IsDuplicateWithinRun marks name as seen and reports whether it already was.
// The first caller for a domain gets false.
func (r *Run) IsDuplicateWithinRun(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[name]; ok {
		return true
	}
	r.seen[name] = struct{}{}
	return false
}

// Seen returns the number of distinct domains in the run.
func (r *Run) Seen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}
