package providers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
	"github.com/northstar/funding-discovery/internal/resilience"
)

type mockAdapter struct {
	id       domain.ProviderID
	keyword  bool
	ai       bool
	searchFn func(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error)

	mu      sync.Mutex
	queries []string
}

func (m *mockAdapter) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	return m.searchFn(ctx, query, maxResults)
}

func (m *mockAdapter) ProviderID() domain.ProviderID { return m.id }
func (m *mockAdapter) SupportsKeywordQueries() bool  { return m.keyword }
func (m *mockAdapter) SupportsAIQueries() bool       { return m.ai }
func (m *mockAdapter) CurrentUsage() int             { return 0 }
func (m *mockAdapter) RateLimit() int                { return 0 }

func returning(id domain.ProviderID, urls ...string) func(context.Context, string, int) ([]domain.SearchResult, error) {
	return func(_ context.Context, query string, _ int) ([]domain.SearchResult, error) {
		out := make([]domain.SearchResult, 0, len(urls))
		for i, u := range urls {
			out = append(out, domain.NewSearchResult(id, query, u, "t", "d", i+1))
		}
		return out, nil
	}
}

func failing(id domain.ProviderID, kind domain.ErrorKind) func(context.Context, string, int) ([]domain.SearchResult, error) {
	return func(context.Context, string, int) ([]domain.SearchResult, error) {
		return nil, domain.NewProviderError(id, kind, "boom", nil)
	}
}

func hanging(ctx context.Context, _ string, _ int) ([]domain.SearchResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingUsage struct {
	mu      sync.Mutex
	records []UsageRecord
}

func (r *recordingUsage) RecordUsage(_ context.Context, rec UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingUsage) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// blockingUsage stalls every write until its context ends or the test releases it.
type blockingUsage struct {
	released chan struct{}
}

func (b *blockingUsage) RecordUsage(ctx context.Context, _ UsageRecord) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.released:
		return nil
	}
}

func newOrchestrator(cfg OrchestratorConfig, usage UsageRecorder, adapters ...Adapter) *Orchestrator {
	reg := NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}
	return NewOrchestrator(reg, cfg, usage, zerolog.Nop(), nil)
}

func TestOrchestrator_AllSucceed(t *testing.T) {
	brave := &mockAdapter{id: domain.ProviderBrave, keyword: true, searchFn: returning(domain.ProviderBrave, "https://a.org", "https://b.org")}
	tavily := &mockAdapter{id: domain.ProviderTavily, keyword: true, ai: true, searchFn: returning(domain.ProviderTavily, "https://a.org")}
	usage := &recordingUsage{}

	o := newOrchestrator(OrchestratorConfig{}, usage, brave, tavily)
	res := o.ExecuteAll(context.Background(), "bulgaria grants", "Which NGOs fund schools in Bulgaria?", 10, uuid.New())

	assert.Equal(t, domain.SessionStatusCompleted, res.Status)
	assert.Len(t, res.Results, 3, "results are not deduplicated")
	assert.Empty(t, res.Errors)
	assert.Equal(t, map[domain.ProviderID]int{domain.ProviderBrave: 2, domain.ProviderTavily: 1}, res.ResultCounts())

	assert.Equal(t, []string{"bulgaria grants"}, brave.queries)
	assert.Equal(t, []string{"Which NGOs fund schools in Bulgaria?"}, tavily.queries)
	assert.Eventually(t, func() bool { return usage.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestOrchestrator_SlowUsageLedgerKeepsResults(t *testing.T) {
	brave := &mockAdapter{id: domain.ProviderBrave, keyword: true, searchFn: returning(domain.ProviderBrave, "https://a.org", "https://b.org")}
	stalled := &blockingUsage{released: make(chan struct{})}
	defer close(stalled.released)

	o := newOrchestrator(OrchestratorConfig{TotalTimeout: 200 * time.Millisecond}, stalled, brave)
	start := time.Now()
	res := o.ExecuteAll(context.Background(), "q", "", 10, uuid.New())

	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, domain.SessionStatusCompleted, res.Status)
	assert.Len(t, res.Results, 2)
	assert.Empty(t, res.Errors)
}

func TestOrchestrator_AIProviderFallsBackToKeywordQuery(t *testing.T) {
	tavily := &mockAdapter{id: domain.ProviderTavily, keyword: true, ai: true, searchFn: returning(domain.ProviderTavily)}

	o := newOrchestrator(OrchestratorConfig{}, nil, tavily)
	res := o.ExecuteAll(context.Background(), "bulgaria grants", "", 10, uuid.New())

	assert.Equal(t, domain.SessionStatusCompleted, res.Status)
	assert.Equal(t, []string{"bulgaria grants"}, tavily.queries)
	assert.NotNil(t, res.Results)
}

func TestOrchestrator_PartialSuccess(t *testing.T) {
	brave := &mockAdapter{id: domain.ProviderBrave, keyword: true, searchFn: returning(domain.ProviderBrave, "https://a.org")}
	serper := &mockAdapter{id: domain.ProviderSerper, keyword: true, searchFn: failing(domain.ProviderSerper, domain.ErrorKindAuth)}

	o := newOrchestrator(OrchestratorConfig{}, nil, brave, serper)
	res := o.ExecuteAll(context.Background(), "q", "", 10, uuid.New())

	assert.Equal(t, domain.SessionStatusPartialSuccess, res.Status)
	assert.Len(t, res.Results, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, domain.ProviderSerper, res.Errors[0].Provider)
	assert.Equal(t, domain.ErrorKindAuth, res.Errors[0].Kind)
	assert.False(t, res.Stats[domain.ProviderSerper].Success)
}

func TestOrchestrator_AllFail(t *testing.T) {
	brave := &mockAdapter{id: domain.ProviderBrave, keyword: true, searchFn: failing(domain.ProviderBrave, domain.ErrorKindTransient)}
	serper := &mockAdapter{id: domain.ProviderSerper, keyword: true, searchFn: func(context.Context, string, int) ([]domain.SearchResult, error) {
		return nil, errors.New("connection refused")
	}}

	o := newOrchestrator(OrchestratorConfig{}, nil, brave, serper)
	res := o.ExecuteAll(context.Background(), "q", "", 10, uuid.New())

	assert.Equal(t, domain.SessionStatusFailed, res.Status)
	assert.Empty(t, res.Results)
	require.Len(t, res.Errors, 2)
	for _, pe := range res.Errors {
		assert.Equal(t, domain.ErrorKindTransient, pe.Kind)
	}
}

func TestOrchestrator_NoProviders(t *testing.T) {
	o := newOrchestrator(OrchestratorConfig{}, nil)
	res := o.ExecuteAll(context.Background(), "q", "", 10, uuid.New())
	assert.Equal(t, domain.SessionStatusFailed, res.Status)
}

func TestOrchestrator_TotalTimeoutAbandonsSlowProviders(t *testing.T) {
	brave := &mockAdapter{id: domain.ProviderBrave, keyword: true, searchFn: returning(domain.ProviderBrave, "https://a.org")}
	slow := &mockAdapter{id: domain.ProviderPerplexica, keyword: true, searchFn: func(ctx context.Context, q string, n int) ([]domain.SearchResult, error) {
		time.Sleep(2 * time.Second)
		return nil, nil
	}}

	o := newOrchestrator(OrchestratorConfig{
		TotalTimeout:     100 * time.Millisecond,
		ProviderTimeouts: map[domain.ProviderID]time.Duration{domain.ProviderPerplexica: 15 * time.Second},
	}, nil, brave, slow)

	start := time.Now()
	res := o.ExecuteAll(context.Background(), "q", "", 10, uuid.New())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, domain.SessionStatusPartialSuccess, res.Status)
	assert.Len(t, res.Results, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, domain.ProviderPerplexica, res.Errors[0].Provider)
	assert.Equal(t, domain.ErrorKindTimeout, res.Errors[0].Kind)
}

func TestOrchestrator_ProviderTimeout(t *testing.T) {
	brave := &mockAdapter{id: domain.ProviderBrave, keyword: true, searchFn: hanging}

	o := newOrchestrator(OrchestratorConfig{
		ProviderTimeouts: map[domain.ProviderID]time.Duration{domain.ProviderBrave: 30 * time.Millisecond},
	}, nil, brave)
	res := o.ExecuteAll(context.Background(), "q", "", 10, uuid.New())

	assert.Equal(t, domain.SessionStatusFailed, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, domain.ErrorKindTimeout, res.Errors[0].Kind)
}

func TestOrchestrator_GuardedAdapterOpenCircuit(t *testing.T) {
	calls := 0
	inner := &mockAdapter{id: domain.ProviderSerper, keyword: true, searchFn: func(context.Context, string, int) ([]domain.SearchResult, error) {
		calls++
		return nil, domain.NewProviderError(domain.ProviderSerper, domain.ErrorKindTransient, "502", nil)
	}}
	guard := resilience.NewGuard(resilience.GuardConfig{
		Provider: domain.ProviderSerper,
		Retry:    resilience.RetryConfig{MaxAttempts: 1},
		Logger:   zerolog.Nop(),
		Metrics:  observability.NewMetrics("test_orchestrator_guarded"),
	})
	guarded := WithGuard(inner, guard)

	o := newOrchestrator(OrchestratorConfig{}, nil, guarded)
	for i := 0; i < 5; i++ {
		o.ExecuteAll(context.Background(), "q", "", 10, uuid.New())
	}
	require.Equal(t, 5, calls)

	res := o.ExecuteAll(context.Background(), "q", "", 10, uuid.New())
	assert.Equal(t, 5, calls, "open circuit must not reach the adapter")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "q", res.Errors[0].Query)
	assert.Equal(t, domain.ErrorKindTransient, res.Errors[0].Kind)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&mockAdapter{id: domain.ProviderTavily})
	reg.Register(&mockAdapter{id: domain.ProviderBrave})
	reg.Register(&mockAdapter{id: domain.ProviderBrave})

	assert.Equal(t, 2, reg.Len())
	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, domain.ProviderBrave, all[0].ProviderID())
	assert.Nil(t, reg.Get(domain.ProviderSerper))
}

func TestUsageTracker(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	u := NewUsageTracker(domain.ProviderBrave, 2)
	u.now = func() time.Time { return now }

	require.NoError(t, u.Acquire())
	require.NoError(t, u.Acquire())
	err := u.Acquire()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateLimit))
	assert.Equal(t, 2, u.Current())

	now = now.Add(24*time.Hour + time.Second)
	assert.Equal(t, 0, u.Current())
	assert.NoError(t, u.Acquire())

	unlimited := NewUsageTracker(domain.ProviderSearXNG, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Acquire())
	}
}

func TestUsageTracker_Restore(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	u := NewUsageTracker(domain.ProviderSerper, 3)
	u.now = func() time.Time { return now }

	u.Restore([]time.Time{
		now.Add(-time.Hour),
		now.Add(-25 * time.Hour),
		now.Add(-2 * time.Hour),
	})
	assert.Equal(t, 2, u.Current())

	require.NoError(t, u.Acquire())
	assert.Error(t, u.Acquire())
}
