package domain

import (
	"time"

	"github.com/google/uuid"
)

// Search pipeline stages reported on workflow error events.
const (
	StageSessionCreate  = "session_create"
	StageSearch         = "search"
	StageProcessing     = "processing"
	StageSessionFinish  = "session_complete"
	StageRequestConsume = "request_consume"
)

// SearchRequestEvent asks the service to run one discovery session.
// Consumed from the search-requests topic.
type SearchRequestEvent struct {
	RequestID          uuid.UUID   `json:"requestId"`
	SessionID          uuid.UUID   `json:"sessionId"`
	KeywordQuery       string      `json:"keywordQuery"`
	AIQuery            string      `json:"aiQuery,omitempty"`
	MaxResultsPerQuery int         `json:"maxResultsPerQuery"`
	SessionType        SessionType `json:"sessionType"`
	RequestedAt        time.Time   `json:"requestedAt"`
}

// SearchResultEvent is one raw provider hit, published to search-results-raw.
type SearchResultEvent struct {
	RequestID    uuid.UUID  `json:"requestId"`
	SessionID    uuid.UUID  `json:"sessionId"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	SearchEngine ProviderID `json:"searchEngine"`
	Query        string     `json:"query"`
	Timestamp    time.Time  `json:"timestamp"`
}

// NewSearchResultEvent converts a result into its raw event.
func NewSearchResultEvent(requestID, sessionID uuid.UUID, r SearchResult) SearchResultEvent {
	return SearchResultEvent{
		RequestID:    requestID,
		SessionID:    sessionID,
		URL:          r.URL,
		Title:        r.Title,
		Description:  r.Description,
		SearchEngine: r.Provider,
		Query:        r.Query,
		Timestamp:    r.DiscoveredAt,
	}
}

// ValidatedResultEvent is a result that became a candidate, published to search-results-validated.
type ValidatedResultEvent struct {
	SearchResultEvent
	Domain          string          `json:"domain"`
	DomainID        uuid.UUID       `json:"domainId"`
	CandidateID     uuid.UUID       `json:"candidateId"`
	ConfidenceScore string          `json:"confidenceScore"`
	CandidateStatus CandidateStatus `json:"candidateStatus"`
}

// NewValidatedResultEvent converts a persisted candidate into its validated event.
func NewValidatedResultEvent(requestID uuid.UUID, c *Candidate) ValidatedResultEvent {
	return ValidatedResultEvent{
		SearchResultEvent: SearchResultEvent{
			RequestID:    requestID,
			SessionID:    c.SessionID,
			URL:          c.URL,
			Title:        c.Title,
			Description:  c.Description,
			SearchEngine: c.Provider,
			Query:        c.Query,
			Timestamp:    c.CreatedAt,
		},
		Domain:          c.DomainName,
		DomainID:        c.DomainID,
		CandidateID:     c.ID,
		ConfidenceScore: c.ConfidenceScore.StringFixed(2),
		CandidateStatus: c.Status,
	}
}

// WorkflowErrorEvent reports a failed pipeline stage, published to workflow-errors.
type WorkflowErrorEvent struct {
	ErrorID      uuid.UUID         `json:"errorId"`
	RequestID    uuid.UUID         `json:"requestId"`
	SessionID    uuid.UUID         `json:"sessionId"`
	Stage        string            `json:"stage"`
	ErrorType    string            `json:"errorType"`
	ErrorMessage string            `json:"errorMessage"`
	RetryCount   int               `json:"retryCount"`
	Timestamp    time.Time         `json:"timestamp"`
	Context      map[string]string `json:"context,omitempty"`
}

// NewWorkflowErrorEvent creates an error event for stage.
func NewWorkflowErrorEvent(requestID, sessionID uuid.UUID, stage, errorType, message string) WorkflowErrorEvent {
	return WorkflowErrorEvent{
		ErrorID:      uuid.New(),
		RequestID:    requestID,
		SessionID:    sessionID,
		Stage:        stage,
		ErrorType:    errorType,
		ErrorMessage: message,
		Timestamp:    time.Now().UTC(),
	}
}
