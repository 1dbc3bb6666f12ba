package httpserver

import (
	"time"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/temporal"
)

type startSearchResponse struct {
	SessionID  string `json:"sessionId"`
	RequestID  string `json:"requestId"`
	WorkflowID string `json:"workflowId"`
	Status     string `json:"status"`
}

type providerErrorResponse struct {
	Provider   string    `json:"provider"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	Query      string    `json:"query,omitempty"`
	StatusCode int       `json:"statusCode,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type progressResponse struct {
	Phase             string `json:"phase"`
	TotalResults      int    `json:"totalResults"`
	ProviderErrors    int    `json:"providerErrors"`
	CandidatesCreated int    `json:"candidatesCreated"`
	HighConfidence    int    `json:"highConfidence"`
}

type sessionResponse struct {
	ID                string                  `json:"id"`
	Type              string                  `json:"sessionType"`
	Status            string                  `json:"status"`
	KeywordQuery      string                  `json:"keywordQuery"`
	AIQuery           string                  `json:"aiQuery,omitempty"`
	StartedAt         time.Time               `json:"startedAt"`
	CompletedAt       *time.Time              `json:"completedAt,omitempty"`
	Duration          string                  `json:"duration,omitempty"`
	ProviderResults   map[string]int          `json:"providerResults"`
	TotalResults      int                     `json:"totalResults"`
	NewDomains        int                     `json:"newDomains"`
	DuplicatesSkipped int                     `json:"duplicatesSkipped"`
	SpamFiltered      int                     `json:"spamFiltered"`
	CandidatesCreated int                     `json:"candidatesCreated"`
	ErrorMessages     []string                `json:"errorMessages"`
	ProviderErrors    []providerErrorResponse `json:"providerErrors"`
	Progress          *progressResponse       `json:"progress,omitempty"`
}

type candidateResponse struct {
	ID               string     `json:"id"`
	SessionID        string     `json:"sessionId"`
	DomainID         string     `json:"domainId"`
	Domain           string     `json:"domain"`
	URL              string     `json:"url"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	OrganizationName string     `json:"organizationName,omitempty"`
	ProgramName      string     `json:"programName,omitempty"`
	SearchEngine     string     `json:"searchEngine"`
	Query            string     `json:"query"`
	ConfidenceScore  string     `json:"confidenceScore"`
	Status           string     `json:"status"`
	Reasoning        string     `json:"reasoning,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	ReviewedAt       *time.Time `json:"reviewedAt,omitempty"`
	ReviewedBy       string     `json:"reviewedBy,omitempty"`
	RejectionReason  string     `json:"rejectionReason,omitempty"`
}

type listCandidatesResponse struct {
	Candidates []candidateResponse `json:"candidates"`
	Page       int                 `json:"page"`
	Size       int                 `json:"size"`
	TotalCount int64               `json:"totalCount"`
	TotalPages int64               `json:"totalPages"`
}

type domainResponse struct {
	ID               string     `json:"id"`
	Name             string     `json:"domainName"`
	Status           string     `json:"status"`
	TotalOccurrences int        `json:"totalOccurrences"`
	IsBlacklisted    bool       `json:"isBlacklisted"`
	BlacklistReason  string     `json:"blacklistReason,omitempty"`
	BlacklistedBy    string     `json:"blacklistedBy,omitempty"`
	BlacklistedAt    *time.Time `json:"blacklistedAt,omitempty"`
	FirstSeenAt      time.Time  `json:"firstSeenAt"`
	LastSeenAt       time.Time  `json:"lastSeenAt"`
}

type listDomainsResponse struct {
	Domains []domainResponse `json:"domains"`
}

func domainSessionToResponse(s *domain.DiscoverySession, progress *temporal.DiscoveryProgress) sessionResponse {
	resp := sessionResponse{
		ID:                s.ID.String(),
		Type:              string(s.Type),
		Status:            string(s.Status),
		KeywordQuery:      s.KeywordQuery,
		AIQuery:           s.AIQuery,
		StartedAt:         s.StartedAt,
		CompletedAt:       s.CompletedAt,
		ProviderResults:   make(map[string]int, len(s.ProviderResults)),
		TotalResults:      s.TotalResults,
		NewDomains:        s.NewDomains,
		DuplicatesSkipped: s.DuplicatesSkipped,
		SpamFiltered:      s.SpamFiltered,
		CandidatesCreated: s.CandidatesCreated,
		ErrorMessages:     s.ErrorMessages,
		ProviderErrors:    make([]providerErrorResponse, 0, len(s.ProviderErrors)),
	}
	if resp.ErrorMessages == nil {
		resp.ErrorMessages = []string{}
	}
	for id, n := range s.ProviderResults {
		resp.ProviderResults[string(id)] = n
	}
	for _, e := range s.ProviderErrors {
		resp.ProviderErrors = append(resp.ProviderErrors, providerErrorResponse{
			Provider:   string(e.Provider),
			Kind:       string(e.Kind),
			Message:    e.Message,
			Query:      e.Query,
			StatusCode: e.StatusCode,
			OccurredAt: e.OccurredAt,
		})
	}
	if s.CompletedAt != nil {
		resp.Duration = s.CompletedAt.Sub(s.StartedAt).String()
	}
	if progress != nil {
		resp.Progress = &progressResponse{
			Phase:             progress.Phase,
			TotalResults:      progress.TotalResults,
			ProviderErrors:    progress.ProviderErrors,
			CandidatesCreated: progress.CandidatesCreated,
			HighConfidence:    progress.HighConfidence,
		}
	}
	return resp
}

func domainCandidateToResponse(c *domain.Candidate) candidateResponse {
	return candidateResponse{
		ID:               c.ID.String(),
		SessionID:        c.SessionID.String(),
		DomainID:         c.DomainID.String(),
		Domain:           c.DomainName,
		URL:              c.URL,
		Title:            c.Title,
		Description:      c.Description,
		OrganizationName: c.OrganizationName,
		ProgramName:      c.ProgramName,
		SearchEngine:     string(c.Provider),
		Query:            c.Query,
		ConfidenceScore:  c.ConfidenceScore.StringFixed(2),
		Status:           string(c.Status),
		Reasoning:        c.Reasoning,
		CreatedAt:        c.CreatedAt,
		ReviewedAt:       c.ReviewedAt,
		ReviewedBy:       c.ReviewedBy,
		RejectionReason:  c.RejectionReason,
	}
}

func domainDomainToResponse(d *domain.Domain) domainResponse {
	return domainResponse{
		ID:               d.ID.String(),
		Name:             d.Name,
		Status:           string(d.Status),
		TotalOccurrences: d.TotalOccurrences,
		IsBlacklisted:    d.IsBlacklisted,
		BlacklistReason:  d.BlacklistReason,
		BlacklistedBy:    d.BlacklistedBy,
		BlacklistedAt:    d.BlacklistedAt,
		FirstSeenAt:      d.FirstSeenAt,
		LastSeenAt:       d.LastSeenAt,
	}
}
