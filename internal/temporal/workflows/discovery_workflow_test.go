package workflows

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/northstar/funding-discovery/internal/domain"
	fdtemporal "github.com/northstar/funding-discovery/internal/temporal"
	"github.com/northstar/funding-discovery/internal/temporal/activities"
)

func newTestEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *activities.DiscoveryActivities) {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	act := &activities.DiscoveryActivities{}
	env.RegisterActivity(act)
	return env, act
}

func searchOutput(status domain.SessionStatus, n int) *activities.SearchProvidersOutput {
	out := &activities.SearchProvidersOutput{
		Results:         []domain.SearchResult{},
		ProviderResults: map[domain.ProviderID]int{domain.ProviderBrave: n},
		Status:          status,
	}
	for i := 0; i < n; i++ {
		out.Results = append(out.Results, domain.NewSearchResult(domain.ProviderBrave, "grants",
			"https://sofia-foundation.bg/p/"+uuid.NewString(), "Grant", "Education grant", i+1))
	}
	return out
}

func TestDiscoveryWorkflow_Success(t *testing.T) {
	env, act := newTestEnv(t)
	sessionID := uuid.New()

	env.OnActivity(act.CreateSession, mock.Anything, mock.MatchedBy(func(in activities.CreateSessionInput) bool {
		return in.SessionID == sessionID && in.SessionType == domain.SessionTypeManual
	})).Return(nil)
	env.OnActivity(act.SearchProviders, mock.Anything, mock.Anything).
		Return(searchOutput(domain.SessionStatusCompleted, 3), nil)
	env.OnActivity(act.ProcessResults, mock.Anything, mock.MatchedBy(func(in activities.ProcessResultsInput) bool {
		return len(in.Results) == 3
	})).Return(&activities.ProcessResultsOutput{Statistics: domain.ProcessingStatistics{
		TotalResults:           3,
		SpamFiltered:           1,
		HighConfidenceCreated:  1,
		LowConfidenceCreated:   1,
		TotalCandidatesCreated: 2,
		NewDomains:             2,
	}}, nil)

	var completed activities.CompleteSessionInput
	env.OnActivity(act.CompleteSession, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { completed = args.Get(1).(activities.CompleteSessionInput) }).
		Return(nil)

	env.ExecuteWorkflow(DiscoveryWorkflow, DiscoveryInput{
		RequestID:    uuid.New(),
		SessionID:    sessionID,
		KeywordQuery: "bulgaria education grants",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result DiscoveryResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, sessionID, result.SessionID)
	assert.Equal(t, domain.SessionStatusCompleted, result.Status)
	assert.Equal(t, 2, result.Statistics.TotalCandidatesCreated)

	assert.Equal(t, domain.SessionStatusCompleted, completed.Outcome.Status)
	assert.Equal(t, 3, completed.Outcome.TotalResults)
	assert.Equal(t, 2, completed.Outcome.CandidatesCreated)
	assert.Equal(t, 1, completed.Outcome.SpamFiltered)
	assert.Equal(t, 2, completed.Outcome.NewDomains)

	encoded, err := env.QueryWorkflow(QueryProgress)
	require.NoError(t, err)
	var progress fdtemporal.DiscoveryProgress
	require.NoError(t, encoded.Get(&progress))
	assert.Equal(t, PhaseCompleted, progress.Phase)
	assert.Equal(t, 3, progress.TotalResults)
	assert.Equal(t, 1, progress.HighConfidence)
}

func TestDiscoveryWorkflow_AllProvidersFailed(t *testing.T) {
	env, act := newTestEnv(t)

	search := searchOutput(domain.SessionStatusFailed, 0)
	search.ProviderErrors = []domain.ProviderError{
		*domain.NewProviderError(domain.ProviderBrave, domain.ErrorKindTimeout, "deadline exceeded", nil),
	}

	env.OnActivity(act.CreateSession, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(act.SearchProviders, mock.Anything, mock.Anything).Return(search, nil)

	var completed activities.CompleteSessionInput
	env.OnActivity(act.CompleteSession, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { completed = args.Get(1).(activities.CompleteSessionInput) }).
		Return(nil)

	env.ExecuteWorkflow(DiscoveryWorkflow, DiscoveryInput{SessionID: uuid.New(), KeywordQuery: "grants"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result DiscoveryResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, domain.SessionStatusFailed, result.Status)
	assert.Equal(t, 1, result.ProviderErrors)

	assert.Equal(t, domain.SessionStatusFailed, completed.Outcome.Status)
	require.Len(t, completed.Outcome.ErrorMessages, 1)
	assert.Contains(t, completed.Outcome.ErrorMessages[0], "brave TIMEOUT")
	env.AssertNotCalled(t, "ProcessResults", mock.Anything, mock.Anything)
}

func TestDiscoveryWorkflow_ProcessingFailure(t *testing.T) {
	env, act := newTestEnv(t)
	sessionID := uuid.New()

	env.OnActivity(act.CreateSession, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(act.SearchProviders, mock.Anything, mock.Anything).
		Return(searchOutput(domain.SessionStatusPartialSuccess, 2), nil)
	env.OnActivity(act.ProcessResults, mock.Anything, mock.Anything).
		Return(nil, errors.New("database unavailable"))

	var completed activities.CompleteSessionInput
	env.OnActivity(act.CompleteSession, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { completed = args.Get(1).(activities.CompleteSessionInput) }).
		Return(nil)

	var published activities.PublishWorkflowErrorInput
	env.OnActivity(act.PublishWorkflowError, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(1).(activities.PublishWorkflowErrorInput) }).
		Return(nil)

	env.ExecuteWorkflow(DiscoveryWorkflow, DiscoveryInput{SessionID: sessionID, KeywordQuery: "grants"})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")

	assert.Equal(t, domain.SessionStatusFailed, completed.Outcome.Status)
	assert.Equal(t, 2, completed.Outcome.ProviderResults[domain.ProviderBrave])
	assert.Equal(t, sessionID, published.SessionID)
	assert.Equal(t, domain.StageProcessing, published.Stage)
	assert.Equal(t, errorTypeActivity, published.ErrorType)
}

func TestDiscoveryWorkflow_CreateSessionFailure(t *testing.T) {
	env, act := newTestEnv(t)

	env.OnActivity(act.CreateSession, mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	env.OnActivity(act.PublishWorkflowError, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DiscoveryWorkflow, DiscoveryInput{SessionID: uuid.New(), KeywordQuery: "grants"})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	env.AssertNotCalled(t, "CompleteSession", mock.Anything, mock.Anything)
	env.AssertCalled(t, "PublishWorkflowError", mock.Anything, mock.Anything)
}

func TestDiscoveryWorkflow_AssignsIDsForCronRuns(t *testing.T) {
	env, act := newTestEnv(t)

	var created activities.CreateSessionInput
	env.OnActivity(act.CreateSession, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { created = args.Get(1).(activities.CreateSessionInput) }).
		Return(nil)
	env.OnActivity(act.SearchProviders, mock.Anything, mock.Anything).
		Return(searchOutput(domain.SessionStatusCompleted, 0), nil)
	env.OnActivity(act.ProcessResults, mock.Anything, mock.Anything).
		Return(&activities.ProcessResultsOutput{}, nil)
	env.OnActivity(act.CompleteSession, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DiscoveryWorkflow, DiscoveryInput{
		SessionType:  domain.SessionTypeScheduled,
		KeywordQuery: "education grants",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.NotEqual(t, uuid.Nil, created.SessionID)
	assert.Equal(t, domain.SessionTypeScheduled, created.SessionType)
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, errorTypeActivity, errorType(errors.New("boom")))
}
