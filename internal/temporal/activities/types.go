// Package activities provides the Temporal activities of a discovery run.
//
// Inputs and outputs cross the Temporal serialization boundary, so every
// field is exported and JSON-encodable.
package activities

import (
	"github.com/google/uuid"

	"github.com/northstar/funding-discovery/internal/domain"
)

// CreateSessionInput creates a RUNNING session.
type CreateSessionInput struct {
	SessionID    uuid.UUID
	SessionType  domain.SessionType
	KeywordQuery string
	AIQuery      string
}

// SearchProvidersInput fans one query pair out to every provider.
type SearchProvidersInput struct {
	RequestID    uuid.UUID
	SessionID    uuid.UUID
	KeywordQuery string
	AIQuery      string

	// MaxResultsPerQuery of zero uses the activity's configured default.
	MaxResultsPerQuery int
}

// SearchProvidersOutput is the combined provider outcome.
type SearchProvidersOutput struct {
	Results         []domain.SearchResult
	ProviderResults map[domain.ProviderID]int
	ProviderErrors  []domain.ProviderError
	Status          domain.SessionStatus
}

// ErrorMessages renders one line per provider error.
func (o SearchProvidersOutput) ErrorMessages() []string {
	msgs := make([]string, 0, len(o.ProviderErrors))
	for _, e := range o.ProviderErrors {
		msgs = append(msgs, e.Error())
	}
	return msgs
}

// ProcessResultsInput runs the result pipeline over one session's hits.
type ProcessResultsInput struct {
	RequestID uuid.UUID
	SessionID uuid.UUID
	Results   []domain.SearchResult
}

// ProcessResultsOutput carries the pipeline counters.
type ProcessResultsOutput struct {
	Statistics domain.ProcessingStatistics
}

// CompleteSessionInput writes a session's terminal state.
type CompleteSessionInput struct {
	SessionID   uuid.UUID
	SessionType domain.SessionType
	Outcome     domain.SessionOutcome

	// DurationSeconds is measured by the workflow clock.
	DurationSeconds float64
}

// PublishWorkflowErrorInput reports a failed stage.
type PublishWorkflowErrorInput struct {
	RequestID uuid.UUID
	SessionID uuid.UUID
	Stage     string
	ErrorType string
	Message   string
}
