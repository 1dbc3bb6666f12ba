package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
	"github.com/northstar/funding-discovery/internal/repository"
)

type approveRequest struct {
	ReviewedBy string `json:"reviewedBy" trim:"true" validate:"required,max=255"`
}

type rejectRequest struct {
	ReviewedBy string `json:"reviewedBy" trim:"true" validate:"required,max=255"`
	Reason     string `json:"reason" trim:"true" validate:"required,max=1000"`
}

type blacklistRequest struct {
	BlacklistedBy string `json:"blacklistedBy" trim:"true" validate:"required,max=255"`
	Reason        string `json:"reason" trim:"true" validate:"required,max=1000"`
}

var (
	confidenceFloor   = decimal.Zero
	confidenceCeiling = decimal.NewFromInt(1)
)

// listCandidates handles GET /api/v1/candidates, ordered by confidence.
func (s *Server) listCandidates(w http.ResponseWriter, r *http.Request) {
	page, size, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	filter := repository.CandidateFilter{
		Provider: domain.ProviderID(strings.ToLower(strings.TrimSpace(q.Get("provider")))),
		Limit:    size,
		Offset:   page * size,
	}

	if v := q.Get("status"); v != "" {
		status, ok := domain.ParseCandidateStatus(strings.ToUpper(v))
		if !ok {
			writeError(w, http.StatusBadRequest, "status must be one of PENDING_CRAWL, SKIPPED_LOW_CONFIDENCE, APPROVED, REJECTED")
			return
		}
		filter.Status = status
	}

	if v := q.Get("minConfidence"); v != "" {
		minConfidence, parseErr := decimal.NewFromString(v)
		if parseErr != nil || minConfidence.LessThan(confidenceFloor) || minConfidence.GreaterThan(confidenceCeiling) {
			writeError(w, http.StatusBadRequest, "minConfidence must be a number between 0 and 1")
			return
		}
		filter.MinConfidence = &minConfidence
	}

	candidates, total, err := s.deps.Candidates.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := listCandidatesResponse{
		Candidates: make([]candidateResponse, 0, len(candidates)),
		Page:       page,
		Size:       size,
		TotalCount: total,
		TotalPages: (total + int64(size) - 1) / int64(size),
	}
	for _, c := range candidates {
		resp.Candidates = append(resp.Candidates, domainCandidateToResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getCandidate handles GET /api/v1/candidates/{candidateID}.
func (s *Server) getCandidate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "candidateID"), "candidate_id")
	if !ok {
		return
	}

	c, err := s.deps.Candidates.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainCandidateToResponse(c))
}

// approveCandidate handles PUT /api/v1/candidates/{candidateID}/approve.
// Reviewed candidates answer 409.
func (s *Server) approveCandidate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "candidateID"), "candidate_id")
	if !ok {
		return
	}
	req, err := decodeJSON[approveRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.deps.Candidates.UpdateStatus(r.Context(), id, domain.CandidateStatusApproved, req.ReviewedBy, "")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	logger := observability.LoggerFromContext(r.Context(), s.logger)
	logger.Info().
		Str("candidate_id", id.String()).
		Str("domain", c.DomainName).
		Str("reviewed_by", req.ReviewedBy).
		Msg("candidate approved")
	writeJSON(w, http.StatusOK, domainCandidateToResponse(c))
}

// rejectCandidate handles PUT /api/v1/candidates/{candidateID}/reject.
func (s *Server) rejectCandidate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "candidateID"), "candidate_id")
	if !ok {
		return
	}
	req, err := decodeJSON[rejectRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.deps.Candidates.UpdateStatus(r.Context(), id, domain.CandidateStatusRejected, req.ReviewedBy, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	logger := observability.LoggerFromContext(r.Context(), s.logger)
	logger.Info().
		Str("candidate_id", id.String()).
		Str("domain", c.DomainName).
		Str("reviewed_by", req.ReviewedBy).
		Msg("candidate rejected")
	writeJSON(w, http.StatusOK, domainCandidateToResponse(c))
}

// blacklistDomain handles POST /api/v1/domains/{domainName}/blacklist. An
// unknown domain is registered as blacklisted.
func (s *Server) blacklistDomain(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "domainName")
	if _, err := domain.NormalizeDomain(name); err != nil {
		writeError(w, http.StatusBadRequest, "domain name is invalid")
		return
	}
	req, err := decodeJSON[blacklistRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.deps.Blacklist.Blacklist(r.Context(), name, req.BlacklistedBy, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainDomainToResponse(d))
}

// listBlacklisted handles GET /api/v1/domains/blacklisted.
func (s *Server) listBlacklisted(w http.ResponseWriter, r *http.Request) {
	domains, err := s.deps.Domains.ListBlacklisted(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := listDomainsResponse{Domains: make([]domainResponse, 0, len(domains))}
	for _, d := range domains {
		resp.Domains = append(resp.Domains, domainDomainToResponse(d))
	}
	writeJSON(w, http.StatusOK, resp)
}
