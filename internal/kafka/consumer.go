package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"inventory-saga/internal/interfaces"
	"inventory-saga/internal/models"
)

// CommandConsumer consumes saga commands from the commands topic and
// dispatches each one by its command-type header. Offsets are committed
// only after the handler returns nil; a handler error leaves the offset
// uncommitted so the broker redelivers the command.
type CommandConsumer struct {
	reader *kafka.Reader
}

// NewCommandConsumer creates a new command consumer
func NewCommandConsumer(brokers []string, consumerGroup, commandsTopic string) *CommandConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   commandsTopic,
		GroupID: consumerGroup,

		// Consumer configuration for reliability
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB max message size
		StartOffset: kafka.LastOffset,
		MaxWait:     1 * time.Second,

		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Msgf("Kafka commands reader error: "+msg, args...)
		}),
	})

	return &CommandConsumer{reader: reader}
}

// Run consumes commands until the context is cancelled.
func (c *CommandConsumer) Run(ctx context.Context, handler interfaces.CommandHandler) error {
	log.Info().Msg("Starting to consume saga commands")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping command consumption")
			return ctx.Err()
		default:
			message, err := c.reader.FetchMessage(ctx)
			if err != nil {
				// FetchMessage may wrap the cancellation during shutdown
				if isShutdown(err) {
					return nil
				}
				log.Error().Err(err).Msg("Failed to fetch command message")
				time.Sleep(time.Second) // Backoff on error
				continue
			}

			if err := c.dispatch(ctx, handler, message); err != nil {
				log.Error().Err(err).
					Str("topic", message.Topic).
					Int("partition", message.Partition).
					Int64("offset", message.Offset).
					Msg("Command processing failed, offset left uncommitted for redelivery")
				continue
			}

			if err := c.reader.CommitMessages(ctx, message); err != nil {
				log.Error().Err(err).
					Int64("offset", message.Offset).
					Msg("Failed to commit command offset")
				// Processing succeeded; redelivery is handled idempotently.
			}
		}
	}
}

// dispatch routes one message to the handler for its command type. Malformed
// messages return nil so their offsets are committed and the poison message
// is skipped rather than redelivered forever.
func (c *CommandConsumer) dispatch(ctx context.Context, handler interfaces.CommandHandler, message kafka.Message) error {
	commandType := headerValue(message, "command-type")

	switch commandType {
	case models.CommandTypeReserveInventory:
		var cmd models.ReserveInventoryCommand
		if err := json.Unmarshal(message.Value, &cmd); err != nil {
			c.skipMalformed(message, err)
			return nil
		}
		return handler.HandleReserve(ctx, &cmd)

	case models.CommandTypeCompensateInventory:
		var cmd models.CompensateInventoryCommand
		if err := json.Unmarshal(message.Value, &cmd); err != nil {
			c.skipMalformed(message, err)
			return nil
		}
		return handler.HandleCompensate(ctx, &cmd)

	default:
		log.Warn().
			Str("command_type", commandType).
			Int64("offset", message.Offset).
			Msg("Unknown command type, skipping message")
		return nil
	}
}

func (c *CommandConsumer) skipMalformed(message kafka.Message, err error) {
	log.Error().Err(err).
		Str("topic", message.Topic).
		Int("partition", message.Partition).
		Int64("offset", message.Offset).
		Msg("Failed to unmarshal command, skipping message")
}

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled)
}

func headerValue(message kafka.Message, key string) string {
	for _, header := range message.Headers {
		if header.Key == key {
			return string(header.Value)
		}
	}
	return ""
}

// Close closes the Kafka reader
func (c *CommandConsumer) Close() error {
	return c.reader.Close()
}
