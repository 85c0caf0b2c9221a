package interfaces

import (
	"context"

	"inventory-saga/internal/models"
)

// EventPublisher defines the contract for publishing outbox rows to the broker.
type EventPublisher interface {
	PublishOutboxEvent(ctx context.Context, event *models.OutboxEvent) error
	Close() error
}

// CommandHandler defines the contract for processing saga commands. A nil
// return means a terminal outcome was durably recorded and the message may
// be committed; an error means even the fallback path failed and the broker
// should redeliver.
type CommandHandler interface {
	HandleReserve(ctx context.Context, cmd *models.ReserveInventoryCommand) error
	HandleCompensate(ctx context.Context, cmd *models.CompensateInventoryCommand) error
}
