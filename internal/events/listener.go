package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
)

// Consumption results for the search-requests metric.
const (
	ConsumeStarted  = "started"
	ConsumeInvalid  = "invalid"
	ConsumeFailed   = "start_failed"
	ConsumeDecoding = "decode_failed"
)

// StartFunc starts a discovery workflow for a request and returns its workflow ID.
type StartFunc func(ctx context.Context, req domain.SearchRequestEvent) (string, error)

// ListenerConfig configures the RequestListener.
type ListenerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// messageReader is the part of *kafka.Reader the listener uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// RequestListener consumes the search-requests topic and starts one discovery
// workflow per request. Poison messages are logged and skipped.
type RequestListener struct {
	reader  messageReader
	start   StartFunc
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewRequestListener creates a listener in consumer group cfg.GroupID.
func NewRequestListener(cfg ListenerConfig, start StartFunc, logger zerolog.Logger, metrics *observability.Metrics) *RequestListener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return newRequestListener(reader, start, logger, metrics)
}

func newRequestListener(r messageReader, start StartFunc, logger zerolog.Logger, metrics *observability.Metrics) *RequestListener {
	return &RequestListener{
		reader:  r,
		start:   start,
		logger:  logger.With().Str("component", "search_request_listener").Logger(),
		metrics: metrics,
	}
}

// Run consumes until ctx is cancelled.
func (l *RequestListener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting search request listener")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("search request listener stopped")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received search request")

		l.handle(ctx, msg.Value)
	}
}

func (l *RequestListener) handle(ctx context.Context, value []byte) {
	var req domain.SearchRequestEvent
	if err := json.Unmarshal(value, &req); err != nil {
		l.logger.Error().Err(err).Str("raw_value", string(value)).Msg("failed to unmarshal search request")
		l.record(ConsumeDecoding)
		return
	}

	if err := normalizeRequest(&req); err != nil {
		l.logger.Warn().Err(err).Str("request_id", req.RequestID.String()).Msg("invalid search request skipped")
		l.record(ConsumeInvalid)
		return
	}

	workflowID, err := l.start(ctx, req)
	if err != nil {
		l.logger.Error().Err(err).
			Str("request_id", req.RequestID.String()).
			Str("session_id", req.SessionID.String()).
			Msg("failed to start discovery workflow")
		l.record(ConsumeFailed)
		return
	}

	l.logger.Info().
		Str("request_id", req.RequestID.String()).
		Str("session_id", req.SessionID.String()).
		Str("workflow_id", workflowID).
		Msg("discovery workflow started from search request")
	l.record(ConsumeStarted)
}

// normalizeRequest fills defaults and rejects requests without a keyword query.
func normalizeRequest(req *domain.SearchRequestEvent) error {
	req.KeywordQuery = strings.TrimSpace(req.KeywordQuery)
	req.AIQuery = strings.TrimSpace(req.AIQuery)
	if req.KeywordQuery == "" {
		return fmt.Errorf("keyword query is required: %w", domain.ErrInvalidInput)
	}
	if req.MaxResultsPerQuery != 0 && (req.MaxResultsPerQuery < 10 || req.MaxResultsPerQuery > 100) {
		return fmt.Errorf("maxResultsPerQuery %d outside 10..100: %w", req.MaxResultsPerQuery, domain.ErrInvalidInput)
	}
	if req.RequestID == uuid.Nil {
		req.RequestID = uuid.New()
	}
	if req.SessionID == uuid.Nil {
		req.SessionID = uuid.New()
	}
	if req.SessionType == "" {
		req.SessionType = domain.SessionTypeManual
	}
	if req.SessionType != domain.SessionTypeManual && req.SessionType != domain.SessionTypeScheduled {
		return fmt.Errorf("unknown session type %q: %w", req.SessionType, domain.ErrInvalidInput)
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	return nil
}

func (l *RequestListener) record(result string) {
	if l.metrics != nil {
		l.metrics.RecordSearchRequestConsumed(result)
	}
}

// Close closes the Kafka reader.
func (l *RequestListener) Close() error {
	l.logger.Info().Msg("closing search request listener")
	return l.reader.Close()
}
