// Package httpserver provides the review REST API of the funding discovery
// service: starting searches, reading sessions, reviewing candidates and
// maintaining the domain blacklist.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/northstar/funding-discovery/internal/database"
	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
	"github.com/northstar/funding-discovery/internal/repository"
	"github.com/northstar/funding-discovery/internal/temporal"
)

// WorkflowStarter starts discovery workflows and reads their live progress.
// *temporal.DiscoveryWorkflowClient implements it.
type WorkflowStarter interface {
	Start(ctx context.Context, input temporal.DiscoveryInput) (workflowID, runID string, err error)
	QueryProgress(ctx context.Context, workflowID string) (*temporal.DiscoveryProgress, error)
}

// SessionReader reads discovery sessions.
type SessionReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.DiscoverySession, error)
}

// CandidateReviewer reads candidates and records review decisions.
type CandidateReviewer interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Candidate, error)
	List(ctx context.Context, filter repository.CandidateFilter) ([]*domain.Candidate, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CandidateStatus, reviewedBy, reason string) (*domain.Candidate, error)
}

// DomainBlacklist blacklists domains and lists them. Blacklist must keep the
// registry's lookup cache consistent; *registry.Registry does.
type DomainBlacklist interface {
	Blacklist(ctx context.Context, name, by, reason string) (*domain.Domain, error)
}

// BlacklistLister lists blacklisted domains.
type BlacklistLister interface {
	ListBlacklisted(ctx context.Context) ([]*domain.Domain, error)
}

// HealthChecker reports database readiness. *database.DB implements it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Deps are the collaborators of the server. Metrics may be nil.
type Deps struct {
	Workflows  WorkflowStarter
	Sessions   SessionReader
	Candidates CandidateReviewer
	Blacklist  DomainBlacklist
	Domains    BlacklistLister
	Health     HealthChecker
	Metrics    *observability.Metrics

	// DefaultMaxResults applies when a search request leaves maxResultsPerQuery out.
	DefaultMaxResults int
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Deps
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if deps.DefaultMaxResults == 0 {
		deps.DefaultMaxResults = defaultMaxResultsPerQuery
	}
	s := &Server{
		deps:   deps,
		logger: logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogMiddleware(s.logger, s.deps.Metrics))
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/searches", s.startSearch)
		r.Get("/sessions/{sessionID}", s.getSession)

		r.Get("/candidates", s.listCandidates)
		r.Get("/candidates/{candidateID}", s.getCandidate)
		r.Put("/candidates/{candidateID}/approve", s.approveCandidate)
		r.Put("/candidates/{candidateID}/reject", s.rejectCandidate)

		r.Get("/domains/blacklisted", s.listBlacklisted)
		r.Post("/domains/{domainName}/blacklist", s.blacklistDomain)
	})

	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler is the liveness probe. It does not touch dependencies.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler pings the database.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.deps.Health.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; an encode error cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
