package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Domain is the deduplication unit: one row per normalized hostname.
// Quality fields are written only by the scoring stage.
type Domain struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"domain_name"`
	Status             DomainStatus    `json:"status"`
	FirstSeenSessionID *uuid.UUID      `json:"first_seen_session_id,omitempty"`
	FirstSeenAt        time.Time       `json:"first_seen_at"`
	LastSeenAt         time.Time       `json:"last_seen_at"`
	TotalOccurrences   int             `json:"total_occurrences"`
	IsBlacklisted      bool            `json:"is_blacklisted"`
	BlacklistReason    string          `json:"blacklist_reason,omitempty"`
	BlacklistedBy      string          `json:"blacklisted_by,omitempty"`
	BlacklistedAt      *time.Time      `json:"blacklisted_at,omitempty"`
	HighQualityCount   int             `json:"high_quality_count"`
	LowQualityCount    int             `json:"low_quality_count"`
	AverageConfidence  decimal.Decimal `json:"average_confidence"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewDomain creates a freshly discovered domain first seen in sessionID.
func NewDomain(name string, sessionID uuid.UUID) *Domain {
	now := time.Now().UTC()
	sid := sessionID
	return &Domain{
		ID:                 uuid.New(),
		Name:               name,
		Status:             DomainStatusDiscovered,
		FirstSeenSessionID: &sid,
		FirstSeenAt:        now,
		LastSeenAt:         now,
		TotalOccurrences:   1,
		AverageConfidence:  decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Blacklist marks the domain as excluded from all future discovery.
func (d *Domain) Blacklist(by, reason string, at time.Time) {
	d.IsBlacklisted = true
	d.Status = DomainStatusBlacklisted
	d.BlacklistedBy = by
	d.BlacklistReason = reason
	d.BlacklistedAt = &at
	d.UpdatedAt = at
}

// DiscoverySession is one orchestration run across all providers.
// It is terminal once Status leaves RUNNING.
type DiscoverySession struct {
	ID                uuid.UUID          `json:"id"`
	Type              SessionType        `json:"type"`
	Status            SessionStatus      `json:"status"`
	KeywordQuery      string             `json:"keyword_query"`
	AIQuery           string             `json:"ai_query,omitempty"`
	StartedAt         time.Time          `json:"started_at"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
	ProviderResults   map[ProviderID]int `json:"provider_results"`
	TotalResults      int                `json:"total_results"`
	NewDomains        int                `json:"new_domains"`
	DuplicatesSkipped int                `json:"duplicates_skipped"`
	SpamFiltered      int                `json:"spam_filtered"`
	CandidatesCreated int                `json:"candidates_created"`
	ErrorMessages     []string           `json:"error_messages"`
	ProviderErrors    []ProviderError    `json:"provider_errors,omitempty"`
}

// NewDiscoverySession creates a running session.
func NewDiscoverySession(id uuid.UUID, sessionType SessionType, keywordQuery, aiQuery string) *DiscoverySession {
	return &DiscoverySession{
		ID:              id,
		Type:            sessionType,
		Status:          SessionStatusRunning,
		KeywordQuery:    keywordQuery,
		AIQuery:         aiQuery,
		StartedAt:       time.Now().UTC(),
		ProviderResults: make(map[ProviderID]int),
		ErrorMessages:   []string{},
	}
}

// SessionOutcome is the terminal state written by SessionStore.Complete.
type SessionOutcome struct {
	Status            SessionStatus      `json:"status"`
	ProviderResults   map[ProviderID]int `json:"provider_results"`
	TotalResults      int                `json:"total_results"`
	NewDomains        int                `json:"new_domains"`
	DuplicatesSkipped int                `json:"duplicates_skipped"`
	SpamFiltered      int                `json:"spam_filtered"`
	CandidatesCreated int                `json:"candidates_created"`
	ErrorMessages     []string           `json:"error_messages"`
}

// Candidate is a scored search hit queued for crawling or human review.
type Candidate struct {
	ID               uuid.UUID       `json:"id"`
	SessionID        uuid.UUID       `json:"session_id"`
	DomainID         uuid.UUID       `json:"domain_id"`
	DomainName       string          `json:"domain_name"`
	URL              string          `json:"url"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	OrganizationName string          `json:"organization_name"`
	ProgramName      string          `json:"program_name"`
	Provider         ProviderID      `json:"provider"`
	Query            string          `json:"query"`
	ConfidenceScore  decimal.Decimal `json:"confidence_score"`
	Status           CandidateStatus `json:"status"`
	Reasoning        string          `json:"reasoning"`
	CreatedAt        time.Time       `json:"created_at"`
	ReviewedAt       *time.Time      `json:"reviewed_at,omitempty"`
	ReviewedBy       string          `json:"reviewed_by,omitempty"`
	RejectionReason  string          `json:"rejection_reason,omitempty"`
}

// IsHighConfidence reports whether the candidate is queued for crawling.
func (c *Candidate) IsHighConfidence() bool {
	return c.Status == CandidateStatusPendingCrawl
}

// ProcessingStatistics are the per-run counters of the result pipeline.
// Every input result increments TotalResults and exactly one outcome counter.
type ProcessingStatistics struct {
	TotalResults           int `json:"total_results"`
	SpamFiltered           int `json:"spam_filtered"`
	BlacklistedSkipped     int `json:"blacklisted_skipped"`
	DuplicatesSkipped      int `json:"duplicates_skipped"`
	InvalidURLsSkipped     int `json:"invalid_urls_skipped"`
	HighConfidenceCreated  int `json:"high_confidence_created"`
	LowConfidenceCreated   int `json:"low_confidence_created"`
	TotalCandidatesCreated int `json:"total_candidates_created"`
	PersistenceFailures    int `json:"persistence_failures"`
	NewDomains             int `json:"new_domains"`
}

// Accounted returns the number of results that reached a terminal outcome.
// It equals TotalResults after a full pipeline pass.
func (s ProcessingStatistics) Accounted() int {
	return s.SpamFiltered + s.BlacklistedSkipped + s.DuplicatesSkipped +
		s.InvalidURLsSkipped + s.TotalCandidatesCreated + s.PersistenceFailures
}

// SpamAnalysisResult is the anti-spam verdict for one result. It is logged
// and counted, never stored on the Domain.
type SpamAnalysisResult struct {
	IsSpam           bool            `json:"is_spam"`
	PrimaryIndicator SpamIndicator   `json:"primary_indicator,omitempty"`
	RejectionReason  string          `json:"rejection_reason,omitempty"`
	Confidence       decimal.Decimal `json:"confidence"`
	Indicators       []SpamIndicator `json:"indicators,omitempty"`
}

// JudgeScore is one judge's contribution to a confidence score.
type JudgeScore struct {
	JudgeName   string          `json:"judge_name"`
	Score       decimal.Decimal `json:"score"`
	Weight      decimal.Decimal `json:"weight"`
	Explanation string          `json:"explanation"`
}

// MetadataJudgment is the scoring verdict for one result.
type MetadataJudgment struct {
	DomainName       string          `json:"domain_name"`
	ConfidenceScore  decimal.Decimal `json:"confidence_score"`
	ShouldCrawl      bool            `json:"should_crawl"`
	JudgeScores      []JudgeScore    `json:"judge_scores"`
	OrganizationName string          `json:"organization_name"`
	ProgramName      string          `json:"program_name"`
	Reasoning        string          `json:"reasoning"`
}
