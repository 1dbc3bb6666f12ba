// Package domain provides the domain models of the funding discovery service.
package domain

// ProviderID identifies a web search provider.
type ProviderID string

const (
	ProviderBrave      ProviderID = "brave"
	ProviderSearXNG    ProviderID = "searxng"
	ProviderSerper     ProviderID = "serper"
	ProviderTavily     ProviderID = "tavily"
	ProviderPerplexica ProviderID = "perplexica"
)

// DomainStatus represents the lifecycle of a discovered domain.
// These values must match the domains.status check constraint.
type DomainStatus string

const (
	DomainStatusDiscovered           DomainStatus = "DISCOVERED"
	DomainStatusPendingCrawl         DomainStatus = "PENDING_CRAWL"
	DomainStatusBlacklisted          DomainStatus = "BLACKLISTED"
	DomainStatusProcessedHighQuality DomainStatus = "PROCESSED_HIGH_QUALITY"
	DomainStatusProcessedLowQuality  DomainStatus = "PROCESSED_LOW_QUALITY"
)

// SessionType distinguishes operator-triggered runs from the nightly schedule.
type SessionType string

const (
	SessionTypeManual    SessionType = "MANUAL"
	SessionTypeScheduled SessionType = "SCHEDULED"
)

// SessionStatus represents the lifecycle of a discovery session.
type SessionStatus string

const (
	SessionStatusRunning        SessionStatus = "RUNNING"
	SessionStatusCompleted      SessionStatus = "COMPLETED"
	SessionStatusPartialSuccess SessionStatus = "PARTIAL_SUCCESS"
	SessionStatusFailed         SessionStatus = "FAILED"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusPartialSuccess, SessionStatusFailed:
		return true
	default:
		return false
	}
}

// CandidateStatus represents the review state of a candidate.
// These values must match the funding_candidates.status check constraint.
type CandidateStatus string

const (
	CandidateStatusPendingCrawl         CandidateStatus = "PENDING_CRAWL"
	CandidateStatusSkippedLowConfidence CandidateStatus = "SKIPPED_LOW_CONFIDENCE"
	CandidateStatusApproved             CandidateStatus = "APPROVED"
	CandidateStatusRejected             CandidateStatus = "REJECTED"
)

// IsReviewed returns true once a human has approved or rejected the candidate.
func (s CandidateStatus) IsReviewed() bool {
	return s == CandidateStatusApproved || s == CandidateStatusRejected
}

// CanTransitionTo reports whether a reviewer may move a candidate from s to target.
// Only unreviewed candidates can be approved or rejected.
func (s CandidateStatus) CanTransitionTo(target CandidateStatus) bool {
	if !target.IsReviewed() {
		return false
	}
	return !s.IsReviewed()
}

// ParseCandidateStatus validates a status string from an API filter.
func ParseCandidateStatus(s string) (CandidateStatus, bool) {
	switch st := CandidateStatus(s); st {
	case CandidateStatusPendingCrawl, CandidateStatusSkippedLowConfidence,
		CandidateStatusApproved, CandidateStatusRejected:
		return st, true
	default:
		return "", false
	}
}

// SpamIndicator names the detector that flagged a result.
type SpamIndicator string

const (
	SpamIndicatorNone                   SpamIndicator = ""
	SpamIndicatorKeywordStuffing        SpamIndicator = "KEYWORD_STUFFING"
	SpamIndicatorDomainMetadataMismatch SpamIndicator = "DOMAIN_METADATA_MISMATCH"
	SpamIndicatorUnnaturalKeywordList   SpamIndicator = "UNNATURAL_KEYWORD_LIST"
	SpamIndicatorCrossCategory          SpamIndicator = "CROSS_CATEGORY_SPAM"
)
