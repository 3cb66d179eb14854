package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/cep-weather-assistant/internal/config"
	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
	"github.com/couchcryptid/cep-weather-assistant/internal/observability"
)

const (
	maxPublishAttempts = 3
	initialBackoff     = 100 * time.Millisecond
	maxBackoff         = time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// OutcomeWriter publishes one event per resolved turn to the outcome topic.
// It implements chat.Publisher.
type OutcomeWriter struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewOutcomeWriter creates a Kafka producer for the configured outcome topic.
func NewOutcomeWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *OutcomeWriter {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaOutcomeTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &OutcomeWriter{writer: w, logger: logger, metrics: metrics}
}

// Publish writes the event, retrying transient failures with exponential
// backoff until the attempts run out or ctx is done.
func (w *OutcomeWriter) Publish(ctx context.Context, event domain.OutcomeEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		w.metrics.OutcomesPublished.WithLabelValues("error").Inc()
		return err
	}

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err = w.writer.WriteMessages(ctx, msg)
		if err == nil {
			w.metrics.OutcomesPublished.WithLabelValues("success").Inc()
			return nil
		}
		if attempt == maxPublishAttempts {
			break
		}
		w.logger.Debug("outcome publish failed, retrying",
			"event_id", event.ID, "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			err = ctx.Err()
			break
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}

	w.metrics.OutcomesPublished.WithLabelValues("error").Inc()
	return fmt.Errorf("publish outcome event %s: %w", event.ID, err)
}

func (w *OutcomeWriter) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an OutcomeEvent into a Kafka message keyed by
// conversation, so a conversation's events stay ordered on one partition.
func serializeToMessage(event domain.OutcomeEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize outcome event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ConversationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "resolved_at", Value: []byte(event.ResolvedAt.Format(time.RFC3339))},
		},
	}, nil
}
