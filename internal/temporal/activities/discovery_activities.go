package activities

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
	"github.com/northstar/funding-discovery/internal/providers"
)

// Application error types set on non-retryable activity failures.
const (
	ErrTypeInvalidInput = "invalid_input"
	ErrTypeInvalidState = "invalid_state"
)

// SessionStore is the part of the session repository the activities use.
type SessionStore interface {
	Create(ctx context.Context, s *domain.DiscoverySession) error
	Update(ctx context.Context, s *domain.DiscoverySession) error
	Complete(ctx context.Context, id uuid.UUID, outcome domain.SessionOutcome) error
	AddProviderErrors(ctx context.Context, sessionID uuid.UUID, errs []domain.ProviderError) error
}

// Searcher fans a query out to every enabled provider.
type Searcher interface {
	ExecuteAll(ctx context.Context, keywordQuery, aiQuery string, maxResults int, sessionID uuid.UUID) providers.ExecutionResult
}

// ResultProcessor runs the result pipeline, calling observe for every
// persisted candidate.
type ResultProcessor interface {
	ProcessWithObserver(ctx context.Context, sessionID uuid.UUID, results []domain.SearchResult, observe func(*domain.Candidate)) domain.ProcessingStatistics
}

// EventPublisher publishes discovery events. Implementations are best-effort
// and never return errors.
type EventPublisher interface {
	PublishRawResults(ctx context.Context, requestID, sessionID uuid.UUID, results []domain.SearchResult) int
	PublishValidated(ctx context.Context, requestID uuid.UUID, candidates []*domain.Candidate) int
	PublishWorkflowError(ctx context.Context, event domain.WorkflowErrorEvent) bool
}

// DiscoveryActivities are the activities of DiscoveryWorkflow. Methods on
// this struct are registered with the worker.
type DiscoveryActivities struct {
	sessions          SessionStore
	searcher          Searcher
	processor         ResultProcessor
	publisher         EventPublisher
	metrics           *observability.Metrics
	defaultMaxResults int
}

// NewDiscoveryActivities wires the activities. publisher and metrics may be
// nil: events and metrics are then skipped.
func NewDiscoveryActivities(
	sessions SessionStore,
	searcher Searcher,
	processor ResultProcessor,
	publisher EventPublisher,
	metrics *observability.Metrics,
	defaultMaxResults int,
) *DiscoveryActivities {
	return &DiscoveryActivities{
		sessions:          sessions,
		searcher:          searcher,
		processor:         processor,
		publisher:         publisher,
		metrics:           metrics,
		defaultMaxResults: defaultMaxResults,
	}
}

// CreateSession inserts the RUNNING session row. Retrying it is safe.
func (a *DiscoveryActivities) CreateSession(ctx context.Context, input CreateSessionInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("creating discovery session",
		"sessionID", input.SessionID,
		"sessionType", input.SessionType,
	)

	s := domain.NewDiscoverySession(input.SessionID, input.SessionType, input.KeywordQuery, input.AIQuery)
	if err := a.sessions.Create(ctx, s); err != nil {
		return classify(fmt.Errorf("create session %s: %w", input.SessionID, err))
	}

	if a.metrics != nil && activity.GetInfo(ctx).Attempt == 1 {
		a.metrics.RecordSessionStarted(string(input.SessionType))
	}
	return nil
}

// SearchProviders runs every provider for the session. Provider failures are
// part of the output, never an activity error. Persisting provider errors and
// interim counters is best-effort: the terminal write in CompleteSession
// carries the same information.
func (a *DiscoveryActivities) SearchProviders(ctx context.Context, input SearchProvidersInput) (*SearchProvidersOutput, error) {
	logger := activity.GetLogger(ctx)

	maxResults := input.MaxResultsPerQuery
	if maxResults <= 0 {
		maxResults = a.defaultMaxResults
	}

	logger.Info("searching providers",
		"sessionID", input.SessionID,
		"maxResults", maxResults,
		"hasAIQuery", input.AIQuery != "",
	)

	exec := a.searcher.ExecuteAll(ctx, input.KeywordQuery, input.AIQuery, maxResults, input.SessionID)
	out := &SearchProvidersOutput{
		Results:         exec.Results,
		ProviderResults: exec.ResultCounts(),
		ProviderErrors:  exec.Errors,
		Status:          exec.Status,
	}
	if out.Results == nil {
		out.Results = []domain.SearchResult{}
	}

	if len(out.ProviderErrors) > 0 {
		if err := a.sessions.AddProviderErrors(ctx, input.SessionID, out.ProviderErrors); err != nil {
			logger.Warn("failed to record provider errors", "sessionID", input.SessionID, "error", err)
		}
	}

	snapshot := domain.NewDiscoverySession(input.SessionID, "", input.KeywordQuery, input.AIQuery)
	snapshot.ProviderResults = out.ProviderResults
	snapshot.TotalResults = len(out.Results)
	snapshot.ErrorMessages = out.ErrorMessages()
	if err := a.sessions.Update(ctx, snapshot); err != nil {
		logger.Warn("failed to update session counters", "sessionID", input.SessionID, "error", err)
	}

	if a.publisher != nil && len(out.Results) > 0 {
		a.publisher.PublishRawResults(ctx, input.RequestID, input.SessionID, out.Results)
	}

	logger.Info("provider search finished",
		"sessionID", input.SessionID,
		"status", out.Status,
		"results", len(out.Results),
		"providerErrors", len(out.ProviderErrors),
	)
	return out, nil
}

// ProcessResults runs the result pipeline and publishes one validated event
// per persisted candidate.
func (a *DiscoveryActivities) ProcessResults(ctx context.Context, input ProcessResultsInput) (*ProcessResultsOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("processing results", "sessionID", input.SessionID, "results", len(input.Results))

	var created []*domain.Candidate
	stats := a.processor.ProcessWithObserver(ctx, input.SessionID, input.Results, func(c *domain.Candidate) {
		created = append(created, c)
	})

	if a.publisher != nil && len(created) > 0 {
		a.publisher.PublishValidated(ctx, input.RequestID, created)
	}

	logger.Info("results processed",
		"sessionID", input.SessionID,
		"candidates", stats.TotalCandidatesCreated,
		"highConfidence", stats.HighConfidenceCreated,
		"spam", stats.SpamFiltered,
		"duplicates", stats.DuplicatesSkipped,
		"persistenceFailures", stats.PersistenceFailures,
	)
	return &ProcessResultsOutput{Statistics: stats}, nil
}

// CompleteSession writes the terminal status and counters.
func (a *DiscoveryActivities) CompleteSession(ctx context.Context, input CompleteSessionInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("completing discovery session",
		"sessionID", input.SessionID,
		"status", input.Outcome.Status,
	)

	outcome := input.Outcome
	if outcome.ErrorMessages == nil {
		outcome.ErrorMessages = []string{}
	}
	if err := a.sessions.Complete(ctx, input.SessionID, outcome); err != nil {
		logger.Error("failed to complete session", "sessionID", input.SessionID, "error", err)
		return classify(fmt.Errorf("complete session %s: %w", input.SessionID, err))
	}

	if a.metrics != nil {
		a.metrics.RecordSessionFinished(string(outcome.Status), input.DurationSeconds)
	}
	return nil
}

// PublishWorkflowError publishes a workflow-errors event. It never fails.
func (a *DiscoveryActivities) PublishWorkflowError(ctx context.Context, input PublishWorkflowErrorInput) error {
	if a.publisher == nil {
		return nil
	}
	event := domain.NewWorkflowErrorEvent(input.RequestID, input.SessionID, input.Stage, input.ErrorType, input.Message)
	event.RetryCount = int(activity.GetInfo(ctx).Attempt) - 1
	if !a.publisher.PublishWorkflowError(ctx, event) {
		activity.GetLogger(ctx).Warn("workflow error event not delivered",
			"sessionID", input.SessionID,
			"stage", input.Stage,
		)
	}
	return nil
}

// classify marks errors that a retry cannot fix as non-retryable.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	case errors.Is(err, domain.ErrInvalidStatusTransition), errors.Is(err, domain.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidState, err)
	default:
		return err
	}
}
