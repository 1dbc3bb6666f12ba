// Package events carries discovery traffic over Kafka: raw and validated
// results and workflow errors out, search requests in.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/northstar/funding-discovery/internal/domain"
	"github.com/northstar/funding-discovery/internal/observability"
)

// Topics names the discovery topics.
type Topics struct {
	SearchRequests   string
	RawResults       string
	ValidatedResults string
	WorkflowErrors   string
}

// PublisherConfig configures the Publisher.
type PublisherConfig struct {
	Brokers      []string
	Topics       Topics
	BatchSize    int
	BatchTimeout time.Duration
	MaxAttempts  int
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes discovery events. Publishing is best-effort: failures are
// logged and counted and never returned to the pipeline.
type Publisher struct {
	writer  messageWriter
	topics  Topics
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a publisher backed by a kafka.Writer that waits for all
// in-sync replicas. metrics may be nil.
func NewPublisher(cfg PublisherConfig, logger zerolog.Logger, metrics *observability.Metrics) *Publisher {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            maxAttempts,
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: false,
	}
	return newPublisher(writer, cfg.Topics, logger, metrics)
}

func newPublisher(w messageWriter, topics Topics, logger zerolog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		writer:  w,
		topics:  topics,
		logger:  logger.With().Str("component", "event_publisher").Logger(),
		metrics: metrics,
	}
}

// PublishRawResults publishes one search-results-raw event per result.
func (p *Publisher) PublishRawResults(ctx context.Context, requestID, sessionID uuid.UUID, results []domain.SearchResult) int {
	events := make([]interface{}, 0, len(results))
	for _, r := range results {
		events = append(events, domain.NewSearchResultEvent(requestID, sessionID, r))
	}
	return p.publish(ctx, p.topics.RawResults, sessionID, events)
}

// PublishValidated publishes one search-results-validated event per candidate.
func (p *Publisher) PublishValidated(ctx context.Context, requestID uuid.UUID, candidates []*domain.Candidate) int {
	if len(candidates) == 0 {
		return 0
	}
	events := make([]interface{}, 0, len(candidates))
	for _, c := range candidates {
		events = append(events, domain.NewValidatedResultEvent(requestID, c))
	}
	return p.publish(ctx, p.topics.ValidatedResults, candidates[0].SessionID, events)
}

// PublishWorkflowError publishes a workflow-errors event.
func (p *Publisher) PublishWorkflowError(ctx context.Context, event domain.WorkflowErrorEvent) bool {
	return p.publish(ctx, p.topics.WorkflowErrors, event.SessionID, []interface{}{event}) == 1
}

// publish writes events keyed by session ID and returns how many were written.
func (p *Publisher) publish(ctx context.Context, topic string, sessionID uuid.UUID, events []interface{}) int {
	if len(events) == 0 {
		return 0
	}

	key := []byte(sessionID.String())
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			p.logger.Error().Err(err).Str("topic", topic).Msg("failed to marshal event")
			p.record(topic, err)
			continue
		}
		msgs = append(msgs, kafka.Message{Topic: topic, Key: key, Value: value})
	}
	if len(msgs) == 0 {
		return 0
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Warn().
			Err(err).
			Str("topic", topic).
			Str("session_id", sessionID.String()).
			Int("events", len(msgs)).
			Msg("failed to publish events")
		for range msgs {
			p.record(topic, err)
		}
		return 0
	}

	for range msgs {
		p.record(topic, nil)
	}
	p.logger.Debug().Str("topic", topic).Int("events", len(msgs)).Msg("events published")
	return len(msgs)
}

func (p *Publisher) record(topic string, err error) {
	if p.metrics != nil {
		p.metrics.RecordEventPublished(topic, err)
	}
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
