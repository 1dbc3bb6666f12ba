package providers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
	"github.com/northstar/funding-discovery/internal/resilience"
)

const (
	// DefaultTotalTimeout caps one ExecuteAll call.
	DefaultTotalTimeout = 10 * time.Second

	// DefaultProviderTimeout caps one provider when no specific timeout is set.
	DefaultProviderTimeout = 5 * time.Second

	usageRecordTimeout = 2 * time.Second
)

// UsageRecord is one provider call, written to the usage ledger.
type UsageRecord struct {
	Provider    domain.ProviderID
	SessionID   uuid.UUID
	Query       string
	ResultCount int
	Success     bool
	ErrorKind   domain.ErrorKind
	Duration    time.Duration
	CalledAt    time.Time
}

// UsageRecorder persists provider calls. Failures are logged, never returned.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec UsageRecord) error
}

// ProviderStats summarizes one provider's part in an ExecuteAll call.
type ProviderStats struct {
	Query       string        `json:"query"`
	ResultCount int           `json:"result_count"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`
}

// ExecutionResult is the combined outcome of all providers.
type ExecutionResult struct {
	// Results are the hits of every successful provider, not deduplicated.
	Results []domain.SearchResult
	// Errors holds one entry per failed provider.
	Errors []domain.ProviderError
	// Stats is keyed by provider.
	Stats map[domain.ProviderID]ProviderStats
	// Status is COMPLETED, PARTIAL_SUCCESS or FAILED.
	Status domain.SessionStatus
}

// ResultCounts returns the number of results per provider.
func (r ExecutionResult) ResultCounts() map[domain.ProviderID]int {
	out := make(map[domain.ProviderID]int, len(r.Stats))
	for id, s := range r.Stats {
		out[id] = s.ResultCount
	}
	return out
}

// OrchestratorConfig configures the Orchestrator.
type OrchestratorConfig struct {
	TotalTimeout     time.Duration
	ProviderTimeouts map[domain.ProviderID]time.Duration
}

// Orchestrator fans a search out to every registered provider.
type Orchestrator struct {
	registry *Registry
	config   OrchestratorConfig
	usage    UsageRecorder
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewOrchestrator creates an Orchestrator. usage and metrics may be nil.
func NewOrchestrator(registry *Registry, cfg OrchestratorConfig, usage UsageRecorder, logger zerolog.Logger, metrics *observability.Metrics) *Orchestrator {
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = DefaultTotalTimeout
	}
	return &Orchestrator{
		registry: registry,
		config:   cfg,
		usage:    usage,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		metrics:  metrics,
	}
}

type providerOutcome struct {
	provider domain.ProviderID
	query    string
	results  []domain.SearchResult
	err      error
	duration time.Duration
}

// ExecuteAll runs one task per provider: providers that accept AI queries get
// aiQuery when it is set, the rest get keywordQuery. A provider failure never
// fails the call. Providers still running when the total timeout expires are
// abandoned and reported with a TIMEOUT error.
func (o *Orchestrator) ExecuteAll(ctx context.Context, keywordQuery, aiQuery string, maxResults int, sessionID uuid.UUID) ExecutionResult {
	result := ExecutionResult{
		Results: []domain.SearchResult{},
		Errors:  []domain.ProviderError{},
		Stats:   make(map[domain.ProviderID]ProviderStats),
	}

	type task struct {
		adapter Adapter
		query   string
	}
	var tasks []task
	for _, a := range o.registry.All() {
		query := selectQuery(a, keywordQuery, aiQuery)
		if query == "" {
			continue
		}
		tasks = append(tasks, task{adapter: a, query: query})
	}

	if len(tasks) == 0 {
		o.logger.Warn().Str("session_id", sessionID.String()).Msg("no provider can run this search")
		result.Status = domain.SessionStatusFailed
		return result
	}

	totalCtx, cancel := context.WithTimeout(ctx, o.config.TotalTimeout)
	defer cancel()

	// Buffered so abandoned providers can still deliver and exit.
	outcomes := make(chan providerOutcome, len(tasks))
	for _, t := range tasks {
		go func(a Adapter, query string) {
			pctx, pcancel := context.WithTimeout(totalCtx, o.providerTimeout(a.ProviderID()))
			defer pcancel()

			start := time.Now()
			results, err := a.Search(pctx, query, maxResults)
			out := providerOutcome{
				provider: a.ProviderID(),
				query:    query,
				results:  results,
				err:      err,
				duration: time.Since(start),
			}
			outcomes <- out
			// The ledger write runs after delivery so a slow store never
			// pushes a finished provider past the total timeout.
			o.recordUsage(ctx, sessionID, out)
		}(t.adapter, t.query)
	}

	pending := make(map[domain.ProviderID]string, len(tasks))
	for _, t := range tasks {
		pending[t.adapter.ProviderID()] = t.query
	}

	successes := 0
collect:
	for len(pending) > 0 {
		select {
		case out := <-outcomes:
			delete(pending, out.provider)
			if o.accept(&result, out, sessionID) {
				successes++
			}
		case <-totalCtx.Done():
			break collect
		}
	}

	for provider, query := range pending {
		pe := domain.NewProviderError(provider, domain.ErrorKindTimeout, "total search timeout exceeded", totalCtx.Err()).WithQuery(query)
		result.Errors = append(result.Errors, *pe)
		result.Stats[provider] = ProviderStats{Query: query, Duration: o.config.TotalTimeout}
		if o.metrics != nil {
			o.metrics.RecordProviderFailure(string(provider), string(domain.ErrorKindTimeout), o.config.TotalTimeout.Seconds())
		}
		o.logger.Warn().Str("provider", string(provider)).Msg("provider abandoned at total timeout")
	}

	switch {
	case successes == 0:
		result.Status = domain.SessionStatusFailed
	case len(result.Errors) > 0:
		result.Status = domain.SessionStatusPartialSuccess
	default:
		result.Status = domain.SessionStatusCompleted
	}

	o.logger.Info().
		Str("session_id", sessionID.String()).
		Int("providers", len(tasks)).
		Int("succeeded", successes).
		Int("results", len(result.Results)).
		Str("status", string(result.Status)).
		Msg("search fan-out finished")
	return result
}

// accept folds one provider outcome into result and reports whether it succeeded.
func (o *Orchestrator) accept(result *ExecutionResult, out providerOutcome, sessionID uuid.UUID) bool {
	logger := observability.WithProviderContext(o.logger, string(out.provider), out.query)

	if out.err != nil {
		pe, ok := domain.AsProviderError(out.err)
		if !ok {
			pe = domain.NewProviderError(out.provider, resilience.Classify(out.err), out.err.Error(), out.err).WithQuery(out.query)
		}
		result.Errors = append(result.Errors, *pe)
		result.Stats[out.provider] = ProviderStats{Query: out.query, Duration: out.duration}
		if o.metrics != nil {
			o.metrics.RecordProviderFailure(string(out.provider), string(pe.Kind), out.duration.Seconds())
		}
		logger.Warn().Err(out.err).Str("kind", string(pe.Kind)).Str("session_id", sessionID.String()).Msg("provider search failed")
		return false
	}

	result.Results = append(result.Results, out.results...)
	result.Stats[out.provider] = ProviderStats{
		Query:       out.query,
		ResultCount: len(out.results),
		Duration:    out.duration,
		Success:     true,
	}
	if o.metrics != nil {
		o.metrics.RecordProviderSuccess(string(out.provider), len(out.results), out.duration.Seconds())
	}
	logger.Debug().Int("results", len(out.results)).Dur("duration", out.duration).Msg("provider search succeeded")
	return true
}

func (o *Orchestrator) recordUsage(ctx context.Context, sessionID uuid.UUID, out providerOutcome) {
	if o.usage == nil {
		return
	}
	rec := UsageRecord{
		Provider:    out.provider,
		SessionID:   sessionID,
		Query:       out.query,
		ResultCount: len(out.results),
		Success:     out.err == nil,
		ErrorKind:   resilience.Classify(out.err),
		Duration:    out.duration,
		CalledAt:    time.Now().UTC(),
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), usageRecordTimeout)
	defer cancel()
	if err := o.usage.RecordUsage(rctx, rec); err != nil {
		o.logger.Warn().Err(err).Str("provider", string(out.provider)).Msg("failed to record provider usage")
	}
}

func (o *Orchestrator) providerTimeout(id domain.ProviderID) time.Duration {
	if d, ok := o.config.ProviderTimeouts[id]; ok && d > 0 {
		return d
	}
	return DefaultProviderTimeout
}

func selectQuery(a Adapter, keywordQuery, aiQuery string) string {
	if a.SupportsAIQueries() && aiQuery != "" {
		return aiQuery
	}
	if a.SupportsKeywordQueries() {
		return keywordQuery
	}
	return ""
}
