package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/bibbank/risk-engine/internal/domain/event"
	"github.com/bibbank/risk-engine/internal/domain/port"
)

var _ port.EventPublisher = (*Publisher)(nil)

// MessageWriter is the subset of *kafkago.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher implements port.EventPublisher using Kafka. Events for the
// same analysis share a key and therefore a partition.
type Publisher struct {
	writer MessageWriter
	logger *slog.Logger
	topic  string
}

// NewPublisher creates a new Kafka event publisher.
func NewPublisher(writer MessageWriter, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

// Publish sends domain events to Kafka.
func (p *Publisher) Publish(ctx context.Context, domainEvents ...event.DomainEvent) error {
	messages := make([]kafkago.Message, 0, len(domainEvents))
	for _, evt := range domainEvents {
		eventType := evt.EventType()

		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", eventType, err)
		}

		p.logger.DebugContext(ctx, "publishing event",
			slog.String("event_type", eventType),
			slog.String("topic", p.topic),
			slog.Int("payload_size", len(payload)),
		)

		messages = append(messages, kafkago.Message{
			Key:   []byte(evt.AggregateID().String()),
			Value: payload,
			Headers: []kafkago.Header{
				{Key: "event_type", Value: []byte(eventType)},
			},
		})
	}

	if len(messages) == 0 {
		return nil
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to publish events to topic %s: %w", p.topic, err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("closing kafka writer: %w", err)
	}
	return nil
}
