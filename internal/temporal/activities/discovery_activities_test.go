package activities

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
	"github.com/northstar/funding-discovery/internal/providers"
)

type mockSessionStore struct {
	mock.Mock
}

func (m *mockSessionStore) Create(ctx context.Context, s *domain.DiscoverySession) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockSessionStore) Update(ctx context.Context, s *domain.DiscoverySession) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockSessionStore) Complete(ctx context.Context, id uuid.UUID, outcome domain.SessionOutcome) error {
	return m.Called(ctx, id, outcome).Error(0)
}

func (m *mockSessionStore) AddProviderErrors(ctx context.Context, sessionID uuid.UUID, errs []domain.ProviderError) error {
	return m.Called(ctx, sessionID, errs).Error(0)
}

type stubSearcher struct {
	result     providers.ExecutionResult
	maxResults int
}

func (s *stubSearcher) ExecuteAll(_ context.Context, _, _ string, maxResults int, _ uuid.UUID) providers.ExecutionResult {
	s.maxResults = maxResults
	return s.result
}

type stubProcessor struct {
	created []*domain.Candidate
	stats   domain.ProcessingStatistics
}

func (p *stubProcessor) ProcessWithObserver(_ context.Context, _ uuid.UUID, _ []domain.SearchResult, observe func(*domain.Candidate)) domain.ProcessingStatistics {
	for _, c := range p.created {
		observe(c)
	}
	return p.stats
}

type recordingPublisher struct {
	raw       int
	validated []*domain.Candidate
	errors    []domain.WorkflowErrorEvent
}

func (p *recordingPublisher) PublishRawResults(_ context.Context, _, _ uuid.UUID, results []domain.SearchResult) int {
	p.raw += len(results)
	return len(results)
}

func (p *recordingPublisher) PublishValidated(_ context.Context, _ uuid.UUID, candidates []*domain.Candidate) int {
	p.validated = append(p.validated, candidates...)
	return len(candidates)
}

func (p *recordingPublisher) PublishWorkflowError(_ context.Context, event domain.WorkflowErrorEvent) bool {
	p.errors = append(p.errors, event)
	return true
}

func TestCreateSession(t *testing.T) {
	var suite testsuite.WorkflowTestSuite

	t.Run("creates running session and counts it", func(t *testing.T) {
		env := suite.NewTestActivityEnvironment()
		store := &mockSessionStore{}
		metrics := observability.NewMetrics("test_activities_create")

		sessionID := uuid.New()
		store.On("Create", mock.Anything, mock.MatchedBy(func(s *domain.DiscoverySession) bool {
			return s.ID == sessionID && s.Status == domain.SessionStatusRunning && s.Type == domain.SessionTypeScheduled
		})).Return(nil)

		act := NewDiscoveryActivities(store, nil, nil, nil, metrics, 25)
		env.RegisterActivity(act.CreateSession)

		_, err := env.ExecuteActivity(act.CreateSession, CreateSessionInput{
			SessionID:    sessionID,
			SessionType:  domain.SessionTypeScheduled,
			KeywordQuery: "bulgaria education grants",
		})
		require.NoError(t, err)
		store.AssertExpectations(t)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsStarted.WithLabelValues("SCHEDULED")))
	})

	t.Run("invalid input is not retried", func(t *testing.T) {
		env := suite.NewTestActivityEnvironment()
		store := &mockSessionStore{}
		store.On("Create", mock.Anything, mock.Anything).
			Return(domain.NewValidationError("keyword_query", "keyword query is required"))

		act := NewDiscoveryActivities(store, nil, nil, nil, nil, 25)
		env.RegisterActivity(act.CreateSession)

		_, err := env.ExecuteActivity(act.CreateSession, CreateSessionInput{SessionID: uuid.New()})
		require.Error(t, err)

		var appErr *temporal.ApplicationError
		require.True(t, errors.As(err, &appErr))
		assert.True(t, appErr.NonRetryable())
		assert.Equal(t, ErrTypeInvalidInput, appErr.Type())
	})
}

func TestSearchProviders(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	sessionID := uuid.New()

	results := []domain.SearchResult{
		domain.NewSearchResult(domain.ProviderBrave, "grants", "https://sofia-foundation.bg/grants", "Grants", "Education grants", 1),
		domain.NewSearchResult(domain.ProviderBrave, "grants", "https://ngo.bg/funding", "Funding", "Funding for NGOs", 2),
	}
	serperErr := *domain.NewProviderError(domain.ProviderSerper, domain.ErrorKindAuth, "missing api key", nil)

	t.Run("records errors and publishes raw results", func(t *testing.T) {
		env := suite.NewTestActivityEnvironment()
		store := &mockSessionStore{}
		store.On("AddProviderErrors", mock.Anything, sessionID, mock.Anything).Return(nil)
		store.On("Update", mock.Anything, mock.MatchedBy(func(s *domain.DiscoverySession) bool {
			return s.TotalResults == 2 && len(s.ErrorMessages) == 1 && s.ProviderResults[domain.ProviderBrave] == 2
		})).Return(nil)

		searcher := &stubSearcher{result: providers.ExecutionResult{
			Results: results,
			Errors:  []domain.ProviderError{serperErr},
			Stats: map[domain.ProviderID]providers.ProviderStats{
				domain.ProviderBrave:  {Query: "grants", ResultCount: 2, Success: true},
				domain.ProviderSerper: {Query: "grants"},
			},
			Status: domain.SessionStatusPartialSuccess,
		}}
		pub := &recordingPublisher{}

		act := NewDiscoveryActivities(store, searcher, nil, pub, nil, 25)
		env.RegisterActivity(act.SearchProviders)

		val, err := env.ExecuteActivity(act.SearchProviders, SearchProvidersInput{
			RequestID:    uuid.New(),
			SessionID:    sessionID,
			KeywordQuery: "grants",
		})
		require.NoError(t, err)

		var out SearchProvidersOutput
		require.NoError(t, val.Get(&out))
		assert.Equal(t, domain.SessionStatusPartialSuccess, out.Status)
		assert.Len(t, out.Results, 2)
		require.Len(t, out.ProviderErrors, 1)
		assert.Equal(t, domain.ErrorKindAuth, out.ProviderErrors[0].Kind)
		assert.Equal(t, 25, searcher.maxResults)
		assert.Equal(t, 2, pub.raw)
		store.AssertExpectations(t)
	})

	t.Run("store failures do not fail the search", func(t *testing.T) {
		env := suite.NewTestActivityEnvironment()
		store := &mockSessionStore{}
		store.On("AddProviderErrors", mock.Anything, sessionID, mock.Anything).Return(errors.New("connection refused"))
		store.On("Update", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

		searcher := &stubSearcher{result: providers.ExecutionResult{
			Errors: []domain.ProviderError{serperErr},
			Status: domain.SessionStatusFailed,
		}}

		act := NewDiscoveryActivities(store, searcher, nil, nil, nil, 25)
		env.RegisterActivity(act.SearchProviders)

		val, err := env.ExecuteActivity(act.SearchProviders, SearchProvidersInput{
			SessionID:          sessionID,
			KeywordQuery:       "grants",
			MaxResultsPerQuery: 50,
		})
		require.NoError(t, err)

		var out SearchProvidersOutput
		require.NoError(t, val.Get(&out))
		assert.Equal(t, domain.SessionStatusFailed, out.Status)
		assert.Empty(t, out.Results)
		assert.Equal(t, 50, searcher.maxResults)
	})
}

func TestProcessResults(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()

	sessionID := uuid.New()
	candidate := &domain.Candidate{
		ID:              uuid.New(),
		SessionID:       sessionID,
		DomainName:      "sofia-foundation.bg",
		URL:             "https://sofia-foundation.bg/grants",
		Provider:        domain.ProviderBrave,
		ConfidenceScore: decimal.RequireFromString("0.80"),
		Status:          domain.CandidateStatusPendingCrawl,
		CreatedAt:       time.Now().UTC(),
	}
	processor := &stubProcessor{
		created: []*domain.Candidate{candidate},
		stats: domain.ProcessingStatistics{
			TotalResults:           3,
			SpamFiltered:           1,
			DuplicatesSkipped:      1,
			HighConfidenceCreated:  1,
			TotalCandidatesCreated: 1,
			NewDomains:             1,
		},
	}
	pub := &recordingPublisher{}

	act := NewDiscoveryActivities(&mockSessionStore{}, nil, processor, pub, nil, 25)
	env.RegisterActivity(act.ProcessResults)

	val, err := env.ExecuteActivity(act.ProcessResults, ProcessResultsInput{
		RequestID: uuid.New(),
		SessionID: sessionID,
		Results:   []domain.SearchResult{},
	})
	require.NoError(t, err)

	var out ProcessResultsOutput
	require.NoError(t, val.Get(&out))
	assert.Equal(t, 3, out.Statistics.TotalResults)
	assert.Equal(t, out.Statistics.TotalResults, out.Statistics.Accounted())
	require.Len(t, pub.validated, 1)
	assert.Equal(t, candidate.ID, pub.validated[0].ID)
}

func TestCompleteSession(t *testing.T) {
	var suite testsuite.WorkflowTestSuite

	t.Run("writes outcome and records duration", func(t *testing.T) {
		env := suite.NewTestActivityEnvironment()
		store := &mockSessionStore{}
		metrics := observability.NewMetrics("test_activities_complete")

		sessionID := uuid.New()
		store.On("Complete", mock.Anything, sessionID, mock.MatchedBy(func(o domain.SessionOutcome) bool {
			return o.Status == domain.SessionStatusCompleted && o.ErrorMessages != nil
		})).Return(nil)

		act := NewDiscoveryActivities(store, nil, nil, nil, metrics, 25)
		env.RegisterActivity(act.CompleteSession)

		_, err := env.ExecuteActivity(act.CompleteSession, CompleteSessionInput{
			SessionID:       sessionID,
			Outcome:         domain.SessionOutcome{Status: domain.SessionStatusCompleted, TotalResults: 12},
			DurationSeconds: 42,
		})
		require.NoError(t, err)
		store.AssertExpectations(t)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsFinished.WithLabelValues("COMPLETED")))
	})

	t.Run("conflicting terminal status is not retried", func(t *testing.T) {
		env := suite.NewTestActivityEnvironment()
		store := &mockSessionStore{}
		store.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return(domain.ErrInvalidStatusTransition)

		act := NewDiscoveryActivities(store, nil, nil, nil, nil, 25)
		env.RegisterActivity(act.CompleteSession)

		_, err := env.ExecuteActivity(act.CompleteSession, CompleteSessionInput{
			SessionID: uuid.New(),
			Outcome:   domain.SessionOutcome{Status: domain.SessionStatusFailed},
		})
		var appErr *temporal.ApplicationError
		require.True(t, errors.As(err, &appErr))
		assert.True(t, appErr.NonRetryable())
		assert.Equal(t, ErrTypeInvalidState, appErr.Type())
	})
}

func TestPublishWorkflowError(t *testing.T) {
	var suite testsuite.WorkflowTestSuite

	t.Run("publishes event", func(t *testing.T) {
		env := suite.NewTestActivityEnvironment()
		pub := &recordingPublisher{}
		act := NewDiscoveryActivities(&mockSessionStore{}, nil, nil, pub, nil, 25)
		env.RegisterActivity(act.PublishWorkflowError)

		sessionID := uuid.New()
		_, err := env.ExecuteActivity(act.PublishWorkflowError, PublishWorkflowErrorInput{
			SessionID: sessionID,
			Stage:     domain.StageProcessing,
			ErrorType: "ActivityError",
			Message:   "database unavailable",
		})
		require.NoError(t, err)
		require.Len(t, pub.errors, 1)
		assert.Equal(t, sessionID, pub.errors[0].SessionID)
		assert.Equal(t, domain.StageProcessing, pub.errors[0].Stage)
		assert.Equal(t, 0, pub.errors[0].RetryCount)
	})

	t.Run("no publisher", func(t *testing.T) {
		env := suite.NewTestActivityEnvironment()
		act := NewDiscoveryActivities(&mockSessionStore{}, nil, nil, nil, nil, 25)
		env.RegisterActivity(act.PublishWorkflowError)

		_, err := env.ExecuteActivity(act.PublishWorkflowError, PublishWorkflowErrorInput{SessionID: uuid.New()})
		assert.NoError(t, err)
	})
}
