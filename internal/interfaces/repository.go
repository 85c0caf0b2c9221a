package interfaces

import (
	"context"

	"github.com/jmoiron/sqlx"

	"inventory-saga/internal/models"
)

// TxManager runs a function inside one database transaction: begin,
// rollback on error, commit on success. The saga protocols never hold
// commit or rollback logic themselves.
type TxManager interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// InventoryRepository defines the contract for ledger and journal operations.
type InventoryRepository interface {
	// Ledger operations
	GetItem(ctx context.Context, productID string) (*models.InventoryItem, error)
	GetItemForUpdate(ctx context.Context, tx *sqlx.Tx, productID string) (*models.InventoryItem, error)
	UpdateQuantities(ctx context.Context, tx *sqlx.Tx, item *models.InventoryItem) error
	UpsertItem(ctx context.Context, item *models.InventoryItem) error

	// Journal operations
	GetReservations(ctx context.Context, orderID string) ([]models.Reservation, error)
	GetReservationsForUpdate(ctx context.Context, tx *sqlx.Tx, orderID string) ([]models.Reservation, error)
	CreateReservation(ctx context.Context, tx *sqlx.Tx, reservation *models.Reservation) error
	DeleteReservations(ctx context.Context, tx *sqlx.Tx, orderID string) (int64, error)
}

// OutboxRepository defines the contract for the outbox table. InsertEvent
// with a nil tx executes as its own atomic statement; that is the fallback
// notifier's independent unit of work.
type OutboxRepository interface {
	InsertEvent(ctx context.Context, tx *sqlx.Tx, eventType, key string, payload interface{}) error

	// Relay-side operations
	FetchUnprocessed(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkProcessed(ctx context.Context, ids []int64) error
	IncrementRetry(ctx context.Context, id int64, lastError string) error
	TryAcquireRelayLock(ctx context.Context, lockKey int64) (bool, error)
	ReleaseRelayLock(ctx context.Context, lockKey int64) error
}

// CacheRepository defines the contract for the availability cache.
type CacheRepository interface {
	GetItem(ctx context.Context, productID string) (*models.InventoryItem, error)
	SetItem(ctx context.Context, item *models.InventoryItem) error
	DeleteItem(ctx context.Context, productID string) error
	Close() error
}
