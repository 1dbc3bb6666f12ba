package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
)

type mockStarter struct {
	mock.Mock
}

func (m *mockStarter) Start(ctx context.Context, req domain.SearchRequestEvent) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// sliceReader replays messages, then blocks until the context is cancelled.
type sliceReader struct {
	msgs   [][]byte
	cancel context.CancelFunc
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	v := r.msgs[0]
	r.msgs = r.msgs[1:]
	return kafka.Message{Topic: "search-requests", Value: v}, nil
}

func (r *sliceReader) Close() error { return nil }

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestRequestListener_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID := uuid.New()
	valid := domain.SearchRequestEvent{
		RequestID:          uuid.New(),
		SessionID:          sessionID,
		KeywordQuery:       "  bulgaria education grants ",
		MaxResultsPerQuery: 25,
	}

	reader := &sliceReader{
		cancel: cancel,
		msgs: [][]byte{
			[]byte("{not json"),
			mustJSON(t, domain.SearchRequestEvent{KeywordQuery: "   "}),
			mustJSON(t, domain.SearchRequestEvent{KeywordQuery: "grants", MaxResultsPerQuery: 500}),
			mustJSON(t, valid),
			mustJSON(t, domain.SearchRequestEvent{KeywordQuery: "scholarships"}),
		},
	}

	starter := &mockStarter{}
	starter.On("Start", mock.Anything, mock.MatchedBy(func(req domain.SearchRequestEvent) bool {
		return req.SessionID == sessionID
	})).Return("discovery-"+sessionID.String(), nil).Once()
	starter.On("Start", mock.Anything, mock.MatchedBy(func(req domain.SearchRequestEvent) bool {
		return req.KeywordQuery == "scholarships"
	})).Return("", errors.New("temporal unavailable")).Once()

	metrics := observability.NewMetrics("test_events_listener")
	l := newRequestListener(reader, starter.Start, zerolog.Nop(), metrics)

	err := l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	starter.AssertExpectations(t)

	started := starter.Calls[0].Arguments.Get(1).(domain.SearchRequestEvent)
	assert.Equal(t, "bulgaria education grants", started.KeywordQuery)
	assert.Equal(t, domain.SessionTypeManual, started.SessionType)
	assert.False(t, started.RequestedAt.IsZero())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SearchRequestsConsumed.WithLabelValues(ConsumeDecoding)))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SearchRequestsConsumed.WithLabelValues(ConsumeInvalid)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SearchRequestsConsumed.WithLabelValues(ConsumeStarted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SearchRequestsConsumed.WithLabelValues(ConsumeFailed)))
}

func TestNormalizeRequest(t *testing.T) {
	t.Run("fills ids", func(t *testing.T) {
		req := domain.SearchRequestEvent{KeywordQuery: "grants", SessionType: domain.SessionTypeScheduled}
		require.NoError(t, normalizeRequest(&req))
		assert.NotEqual(t, uuid.Nil, req.RequestID)
		assert.NotEqual(t, uuid.Nil, req.SessionID)
		assert.Equal(t, domain.SessionTypeScheduled, req.SessionType)
	})

	t.Run("unknown session type", func(t *testing.T) {
		req := domain.SearchRequestEvent{KeywordQuery: "grants", SessionType: "HOURLY"}
		assert.ErrorIs(t, normalizeRequest(&req), domain.ErrInvalidInput)
	})
}
