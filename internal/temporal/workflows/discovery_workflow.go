// Package workflows defines the discovery workflow.
package workflows

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/northstar/funding-discovery/internal/domain"
	fdtemporal "github.com/northstar/funding-discovery/internal/temporal"
	"github.com/northstar/funding-discovery/internal/temporal/activities"
)

// QueryProgress is re-exported for callers that only import workflows.
const QueryProgress = fdtemporal.QueryProgress

const (
	sessionActivityTimeout = 30 * time.Second
	searchActivityTimeout  = 10 * time.Minute
	processActivityTimeout = 15 * time.Minute
	eventActivityTimeout   = 30 * time.Second
)

// Workflow phases reported by the progress query.
const (
	PhaseInitializing = "initializing"
	PhaseSearching    = "searching"
	PhaseProcessing   = "processing"
	PhaseCompleting   = "completing"
	PhaseCompleted    = "completed"
	PhaseFailed       = "failed"
)

// Error types on workflow-errors events.
const (
	errorTypeCancelled = "CANCELLED"
	errorTypeTimeout   = "TIMEOUT"
	errorTypeActivity  = "ACTIVITY_FAILURE"
)

// DiscoveryInput is the workflow input.
type DiscoveryInput = fdtemporal.DiscoveryInput

// DiscoveryResult is the workflow result.
type DiscoveryResult struct {
	SessionID      uuid.UUID
	Status         domain.SessionStatus
	Statistics     domain.ProcessingStatistics
	ProviderErrors int
	Duration       float64
}

// DiscoveryWorkflow runs one discovery session: create the session, fan the
// queries out to all providers, run the result pipeline and write the
// terminal state. A session whose providers all fail is completed as FAILED
// without processing. Cron runs arrive without a session ID and get a fresh
// one per run.
func DiscoveryWorkflow(ctx workflow.Context, input DiscoveryInput) (*DiscoveryResult, error) {
	logger := workflow.GetLogger(ctx)
	startTime := workflow.Now(ctx)

	if input.SessionID == uuid.Nil || input.RequestID == uuid.Nil {
		var ids [2]uuid.UUID
		encoded := workflow.SideEffect(ctx, func(workflow.Context) interface{} {
			return [2]uuid.UUID{uuid.New(), uuid.New()}
		})
		if err := encoded.Get(&ids); err != nil {
			return nil, fmt.Errorf("assign session id: %w", err)
		}
		if input.SessionID == uuid.Nil {
			input.SessionID = ids[0]
		}
		if input.RequestID == uuid.Nil {
			input.RequestID = ids[1]
		}
	}
	if input.SessionType == "" {
		input.SessionType = domain.SessionTypeManual
	}

	progress := &fdtemporal.DiscoveryProgress{
		SessionID: input.SessionID,
		Phase:     PhaseInitializing,
		Status:    domain.SessionStatusRunning,
	}
	if err := workflow.SetQueryHandler(ctx, QueryProgress, func() (*fdtemporal.DiscoveryProgress, error) {
		return progress, nil
	}); err != nil {
		return nil, fmt.Errorf("register query handler: %w", err)
	}

	var act *activities.DiscoveryActivities

	sessionCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: sessionActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	})
	// Providers retry inside the resilience layer and every call is charged
	// against a quota, so the search and processing activities run once.
	searchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: searchActivityTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	processCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: processActivityTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	sessionCreated := false
	var errorMessages []string
	providerResults := map[domain.ProviderID]int{}

	handleFailure := func(stage string, originalErr error) (*DiscoveryResult, error) {
		logger.Error("discovery workflow failed", "sessionID", input.SessionID, "stage", stage, "error", originalErr)
		progress.Phase = PhaseFailed
		progress.Status = domain.SessionStatusFailed

		// A cancelled workflow context would cancel the cleanup too.
		cleanupCtx, _ := workflow.NewDisconnectedContext(ctx)
		failCtx := workflow.WithActivityOptions(cleanupCtx, workflow.ActivityOptions{
			StartToCloseTimeout: eventActivityTimeout,
			RetryPolicy: &temporal.RetryPolicy{
				InitialInterval:    500 * time.Millisecond,
				BackoffCoefficient: 2.0,
				MaximumInterval:    10 * time.Second,
				MaximumAttempts:    5,
			},
		})

		if sessionCreated {
			_ = workflow.ExecuteActivity(failCtx, act.CompleteSession, activities.CompleteSessionInput{
				SessionID:   input.SessionID,
				SessionType: input.SessionType,
				Outcome: domain.SessionOutcome{
					Status:          domain.SessionStatusFailed,
					ProviderResults: providerResults,
					ErrorMessages:   append(errorMessages, fmt.Sprintf("%s: %v", stage, originalErr)),
				},
				DurationSeconds: workflow.Now(ctx).Sub(startTime).Seconds(),
			}).Get(cleanupCtx, nil)
		}

		_ = workflow.ExecuteActivity(failCtx, act.PublishWorkflowError, activities.PublishWorkflowErrorInput{
			RequestID: input.RequestID,
			SessionID: input.SessionID,
			Stage:     stage,
			ErrorType: errorType(originalErr),
			Message:   originalErr.Error(),
		}).Get(cleanupCtx, nil)

		return nil, originalErr
	}

	err := workflow.ExecuteActivity(sessionCtx, act.CreateSession, activities.CreateSessionInput{
		SessionID:    input.SessionID,
		SessionType:  input.SessionType,
		KeywordQuery: input.KeywordQuery,
		AIQuery:      input.AIQuery,
	}).Get(ctx, nil)
	if err != nil {
		return handleFailure(domain.StageSessionCreate, fmt.Errorf("create session: %w", err))
	}
	sessionCreated = true

	progress.Phase = PhaseSearching
	var search activities.SearchProvidersOutput
	err = workflow.ExecuteActivity(searchCtx, act.SearchProviders, activities.SearchProvidersInput{
		RequestID:          input.RequestID,
		SessionID:          input.SessionID,
		KeywordQuery:       input.KeywordQuery,
		AIQuery:            input.AIQuery,
		MaxResultsPerQuery: input.MaxResultsPerQuery,
	}).Get(ctx, &search)
	if err != nil {
		return handleFailure(domain.StageSearch, fmt.Errorf("search providers: %w", err))
	}

	if search.ProviderResults != nil {
		providerResults = search.ProviderResults
	}
	errorMessages = search.ErrorMessages()
	progress.TotalResults = len(search.Results)
	progress.ProviderErrors = len(search.ProviderErrors)
	logger.Info("provider search finished",
		"sessionID", input.SessionID,
		"status", search.Status,
		"providers", SortedMapKeys(providerResults),
		"results", len(search.Results),
	)

	result := &DiscoveryResult{
		SessionID:      input.SessionID,
		ProviderErrors: len(search.ProviderErrors),
	}

	outcome := domain.SessionOutcome{
		Status:          search.Status,
		ProviderResults: providerResults,
		TotalResults:    len(search.Results),
		ErrorMessages:   errorMessages,
	}

	if search.Status != domain.SessionStatusFailed {
		progress.Phase = PhaseProcessing
		var processed activities.ProcessResultsOutput
		err = workflow.ExecuteActivity(processCtx, act.ProcessResults, activities.ProcessResultsInput{
			RequestID: input.RequestID,
			SessionID: input.SessionID,
			Results:   search.Results,
		}).Get(ctx, &processed)
		if err != nil {
			return handleFailure(domain.StageProcessing, fmt.Errorf("process results: %w", err))
		}

		stats := processed.Statistics
		result.Statistics = stats
		progress.CandidatesCreated = stats.TotalCandidatesCreated
		progress.HighConfidence = stats.HighConfidenceCreated

		outcome.NewDomains = stats.NewDomains
		outcome.DuplicatesSkipped = stats.DuplicatesSkipped
		outcome.SpamFiltered = stats.SpamFiltered
		outcome.CandidatesCreated = stats.TotalCandidatesCreated
	}

	progress.Phase = PhaseCompleting
	duration := workflow.Now(ctx).Sub(startTime).Seconds()
	err = workflow.ExecuteActivity(sessionCtx, act.CompleteSession, activities.CompleteSessionInput{
		SessionID:       input.SessionID,
		SessionType:     input.SessionType,
		Outcome:         outcome,
		DurationSeconds: duration,
	}).Get(ctx, nil)
	if err != nil {
		return handleFailure(domain.StageSessionFinish, fmt.Errorf("complete session: %w", err))
	}

	progress.Phase = PhaseCompleted
	progress.Status = outcome.Status
	result.Status = outcome.Status
	result.Duration = duration

	logger.Info("discovery session finished",
		"sessionID", input.SessionID,
		"status", outcome.Status,
		"candidates", outcome.CandidatesCreated,
		"duration", duration,
	)
	return result, nil
}

func errorType(err error) string {
	var canceled *temporal.CanceledError
	var timeout *temporal.TimeoutError
	switch {
	case errors.As(err, &canceled):
		return errorTypeCancelled
	case errors.As(err, &timeout):
		return errorTypeTimeout
	default:
		return errorTypeActivity
	}
}
