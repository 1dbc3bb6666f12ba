package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
	"github.com/northstar/funding-discovery/internal/temporal"
)

const (
	defaultMaxResultsPerQuery = 25
	defaultPageSize           = 20
	maxPageSize               = 100
)

type startSearchRequest struct {
	KeywordQuery       string `json:"keywordQuery" trim:"true" validate:"required,max=500"`
	AIQuery            string `json:"aiQuery,omitempty" trim:"true" validate:"max=2000"`
	MaxResultsPerQuery *int   `json:"maxResultsPerQuery,omitempty" validate:"omitempty,min=10,max=100"`
}

// startSearch handles POST /api/v1/searches. It starts a MANUAL discovery
// workflow and returns before any provider is called.
func (s *Server) startSearch(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[startSearchRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	maxResults := s.deps.DefaultMaxResults
	if req.MaxResultsPerQuery != nil {
		maxResults = *req.MaxResultsPerQuery
	}

	input := temporal.DiscoveryInput{
		RequestID:          uuid.New(),
		SessionID:          uuid.New(),
		SessionType:        domain.SessionTypeManual,
		KeywordQuery:       req.KeywordQuery,
		AIQuery:            req.AIQuery,
		MaxResultsPerQuery: maxResults,
	}

	ctx := r.Context()
	workflowID, runID, err := s.deps.Workflows.Start(ctx, input)
	if err != nil {
		logger := observability.LoggerFromContext(ctx, s.logger)
		logger.Error().
			Err(err).
			Str("session_id", input.SessionID.String()).
			Msg("failed to start discovery workflow")
		writeDomainError(w, err)
		return
	}

	logger := observability.LoggerFromContext(observability.WithWorkflow(ctx, workflowID, runID), s.logger)
	logger.Info().
		Str("session_id", input.SessionID.String()).
		Int("max_results", maxResults).
		Msg("discovery search started")

	writeJSON(w, http.StatusAccepted, startSearchResponse{
		SessionID:  input.SessionID.String(),
		RequestID:  input.RequestID.String(),
		WorkflowID: workflowID,
		Status:     "INITIATED",
	})
}

// getSession handles GET /api/v1/sessions/{sessionID}. Running sessions
// include the live workflow progress when the workflow answers the query.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := parseUUID(w, chi.URLParam(r, "sessionID"), "session_id")
	if !ok {
		return
	}

	session, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var progress *temporal.DiscoveryProgress
	if session.Status == domain.SessionStatusRunning && s.deps.Workflows != nil {
		progress, err = s.deps.Workflows.QueryProgress(ctx, temporal.DiscoveryWorkflowID(sessionID))
		if err != nil {
			logger := observability.LoggerFromContext(ctx, s.logger)
			logger.Debug().
				Err(err).
				Str("session_id", sessionID.String()).
				Msg("progress query failed")
			progress = nil
		}
	}

	writeJSON(w, http.StatusOK, domainSessionToResponse(session, progress))
}

// writeDomainError maps domain and temporal errors to HTTP status codes.
// Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "candidate has already been reviewed")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, temporal.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, "workflow not found")
	case errors.Is(err, temporal.ErrWorkflowAlreadyStarted):
		writeError(w, http.StatusConflict, "workflow already started")
	case errors.Is(err, temporal.ErrConnectionFailed), errors.Is(err, temporal.ErrClientClosed):
		writeError(w, http.StatusServiceUnavailable, "workflow service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID writes a 400 response when s is not a UUID. The input is not
// echoed back.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parsePage reads the zero-based page and the page size. The size defaults
// to 20 and is capped at 100.
func parsePage(r *http.Request) (page, size int, err error) {
	q := r.URL.Query()

	size = defaultPageSize
	if v := q.Get("size"); v != "" {
		size, err = strconv.Atoi(v)
		if err != nil || size <= 0 {
			return 0, 0, errors.New("size must be a positive integer")
		}
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	if v := q.Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 0 {
			return 0, 0, errors.New("page must be a non-negative integer")
		}
	}
	return page, size, nil
}
