package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var testTopics = Topics{
	SearchRequests:   "search-requests",
	RawResults:       "search-results-raw",
	ValidatedResults: "search-results-validated",
	WorkflowErrors:   "workflow-errors",
}

func TestPublisher_PublishRawResults(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, testTopics, zerolog.Nop(), nil)

	requestID, sessionID := uuid.New(), uuid.New()
	results := []domain.SearchResult{
		domain.NewSearchResult(domain.ProviderBrave, "bulgaria grants", "https://bulgaria-grants.org/", "Grants", "Grants in Bulgaria", 1),
		domain.NewSearchResult(domain.ProviderTavily, "bulgaria grants", "https://sofia-foundation.bg/", "Scholarships", "Scholarships", 1),
	}

	n := p.PublishRawResults(context.Background(), requestID, sessionID, results)
	assert.Equal(t, 2, n)
	require.Len(t, w.msgs, 2)

	for _, msg := range w.msgs {
		assert.Equal(t, "search-results-raw", msg.Topic)
		assert.Equal(t, sessionID.String(), string(msg.Key))
	}

	var event domain.SearchResultEvent
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &event))
	assert.Equal(t, requestID, event.RequestID)
	assert.Equal(t, domain.ProviderTavily, event.SearchEngine)
	assert.Equal(t, "https://sofia-foundation.bg/", event.URL)
}

func TestPublisher_PublishValidated(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, testTopics, zerolog.Nop(), nil)

	c := &domain.Candidate{
		ID:              uuid.New(),
		SessionID:       uuid.New(),
		DomainID:        uuid.New(),
		DomainName:      "sofia-foundation.bg",
		URL:             "https://sofia-foundation.bg/scholarships",
		Provider:        domain.ProviderBrave,
		ConfidenceScore: decimal.RequireFromString("0.7"),
		Status:          domain.CandidateStatusPendingCrawl,
		CreatedAt:       time.Now().UTC(),
	}

	assert.Equal(t, 0, p.PublishValidated(context.Background(), uuid.New(), nil))
	assert.Equal(t, 1, p.PublishValidated(context.Background(), uuid.New(), []*domain.Candidate{c}))
	require.Len(t, w.msgs, 1)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &raw))
	assert.Equal(t, "sofia-foundation.bg", raw["domain"])
	assert.Equal(t, "0.70", raw["confidenceScore"])
	assert.Equal(t, "PENDING_CRAWL", raw["candidateStatus"])
	assert.Equal(t, c.SessionID.String(), string(w.msgs[0].Key))
}

func TestPublisher_FailureIsCountedNotReturned(t *testing.T) {
	w := &fakeWriter{err: errors.New("kafka: leader not available")}
	metrics := observability.NewMetrics("test_events_publisher")
	p := newPublisher(w, testTopics, zerolog.Nop(), metrics)

	event := domain.NewWorkflowErrorEvent(uuid.New(), uuid.New(), domain.StageSearch, "ActivityError", "all providers failed")
	assert.False(t, p.PublishWorkflowError(context.Background(), event))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("workflow-errors", "error")))
}

func TestPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, testTopics, zerolog.Nop(), nil)
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
