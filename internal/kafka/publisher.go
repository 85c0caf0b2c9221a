package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"inventory-saga/internal/models"
)

// Publisher writes outbox events to the events topic.
type Publisher struct {
	eventsWriter *kafka.Writer
}

// NewPublisher creates a new Kafka publisher
func NewPublisher(brokers []string, eventsTopic string) *Publisher {
	// Hash balancer routes messages with the same Key (order ID) to the
	// same partition so event ordering is preserved per order.
	eventsWriter := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  eventsTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll, // Wait for all replicas
		Async:                  false,            // Synchronous writes for reliability
		AllowAutoTopicCreation: true,

		// Producer reliability settings
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    1,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}

	return &Publisher{eventsWriter: eventsWriter}
}

// PublishOutboxEvent publishes one stored outbox row. The payload was
// serialized when the row was written, so it goes out verbatim.
func (p *Publisher) PublishOutboxEvent(ctx context.Context, event *models.OutboxEvent) error {
	message := kafka.Message{
		Key:   []byte(event.Key),
		Value: []byte(event.Payload),
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.EventType)},
			{Key: "outbox-id", Value: []byte(strconv.FormatInt(event.ID, 10))},
		},
	}

	if err := p.eventsWriter.WriteMessages(ctx, message); err != nil {
		log.Error().Err(err).
			Int64("outbox_id", event.ID).
			Str("event_type", event.EventType).
			Str("key", event.Key).
			Msg("Failed to publish outbox event")
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	log.Debug().
		Int64("outbox_id", event.ID).
		Str("event_type", event.EventType).
		Str("key", event.Key).
		Msg("Published outbox event")

	return nil
}

// Close closes the Kafka writer
func (p *Publisher) Close() error {
	return p.eventsWriter.Close()
}
