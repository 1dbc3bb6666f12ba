package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the funding discovery service.
// Metrics are organized by subsystem: sessions, providers, resilience, the
// result pipeline and the event bus. All collectors are registered via promauto
// with the default Prometheus registry.
type Metrics struct {
	// SessionsStarted counts discovery sessions, labeled by session type.
	SessionsStarted *prometheus.CounterVec

	// SessionsFinished counts sessions reaching a terminal status, labeled by status.
	SessionsFinished *prometheus.CounterVec

	// SessionDuration observes the end-to-end duration of sessions in seconds.
	SessionDuration prometheus.Histogram

	// ProviderRequests counts search calls, labeled by provider.
	ProviderRequests *prometheus.CounterVec

	// ProviderErrors counts failed search calls, labeled by provider and error kind.
	ProviderErrors *prometheus.CounterVec

	// ProviderDuration observes search call duration in seconds, labeled by provider.
	ProviderDuration *prometheus.HistogramVec

	// ProviderResults observes the number of results per successful call, labeled by provider.
	ProviderResults *prometheus.HistogramVec

	// CircuitBreakerState reports breaker state per provider (0 closed, 1 open, 2 half-open).
	CircuitBreakerState *prometheus.GaugeVec

	// RetryAttempts counts retries issued by the resilience layer, labeled by provider.
	RetryAttempts *prometheus.CounterVec

	// ResultsProcessed counts pipeline outcomes, labeled by outcome
	// (spam, duplicate, blacklisted, invalid_url, high_confidence, low_confidence, persist_failed).
	ResultsProcessed *prometheus.CounterVec

	// ConfidenceScores observes the distribution of computed confidence scores.
	ConfidenceScores prometheus.Histogram

	// EventsPublished counts Kafka events, labeled by topic and result (ok, error).
	EventsPublished *prometheus.CounterVec

	// SearchRequestsConsumed counts search request events, labeled by result (started, invalid, decode_failed, start_failed).
	SearchRequestsConsumed *prometheus.CounterVec

	// HTTPRequests counts review API requests, labeled by method, route pattern and status code.
	HTTPRequests *prometheus.CounterVec

	// HTTPDuration observes review API latency in seconds, labeled by method and route pattern.
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Sessions
		SessionsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of discovery sessions started",
		}, []string{"type"}),
		SessionsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Total number of discovery sessions finished by terminal status",
		}, []string{"status"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of discovery sessions in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),

		// Providers
		ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of search provider calls",
		}, []string{"provider"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Total number of failed search provider calls",
		}, []string{"provider", "kind"}),
		ProviderDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of search provider calls in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 7, 10, 15},
		}, []string{"provider"}),
		ProviderResults: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_results",
			Help:      "Number of results returned per successful provider call",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		}, []string{"provider"}),

		// Resilience
		CircuitBreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per provider (0 closed, 1 open, 2 half-open)",
		}, []string{"provider"}),
		RetryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Total number of retried provider calls",
		}, []string{"provider"}),

		// Pipeline
		ResultsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_processed_total",
			Help:      "Total number of search results processed by outcome",
		}, []string{"outcome"}),
		ConfidenceScores: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confidence_score",
			Help:      "Distribution of candidate confidence scores",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),

		// Events
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of Kafka events published",
		}, []string{"topic", "result"}),
		SearchRequestsConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_consumed_total",
			Help:      "Total number of search request events consumed",
		}, []string{"result"}),

		// HTTP
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of review API requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of review API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordSessionStarted records that a discovery session has started.
func (m *Metrics) RecordSessionStarted(sessionType string) {
	m.SessionsStarted.WithLabelValues(sessionType).Inc()
}

// RecordSessionFinished records a session reaching a terminal status.
func (m *Metrics) RecordSessionFinished(status string, durationSeconds float64) {
	m.SessionsFinished.WithLabelValues(status).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordProviderSuccess records a successful provider call.
func (m *Metrics) RecordProviderSuccess(provider string, resultCount int, durationSeconds float64) {
	m.ProviderRequests.WithLabelValues(provider).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(durationSeconds)
	m.ProviderResults.WithLabelValues(provider).Observe(float64(resultCount))
}

// RecordProviderFailure records a failed provider call.
func (m *Metrics) RecordProviderFailure(provider, kind string, durationSeconds float64) {
	m.ProviderRequests.WithLabelValues(provider).Inc()
	m.ProviderErrors.WithLabelValues(provider, kind).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordBreakerState records the breaker state of a provider.
func (m *Metrics) RecordBreakerState(provider string, state int) {
	m.CircuitBreakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordRetry records one retried provider call.
func (m *Metrics) RecordRetry(provider string) {
	m.RetryAttempts.WithLabelValues(provider).Inc()
}

// RecordResultOutcome records one pipeline outcome.
func (m *Metrics) RecordResultOutcome(outcome string) {
	m.ResultsProcessed.WithLabelValues(outcome).Inc()
}

// RecordConfidence records a computed confidence score.
func (m *Metrics) RecordConfidence(score float64) {
	m.ConfidenceScores.Observe(score)
}

// RecordEventPublished records a Kafka publish attempt.
func (m *Metrics) RecordEventPublished(topic string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(topic, result).Inc()
}

// RecordSearchRequestConsumed records the handling result of a search request event.
func (m *Metrics) RecordSearchRequestConsumed(result string) {
	m.SearchRequestsConsumed.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records one served API request. route is the chi route
// pattern, never the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
