package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"inventory-saga/internal/models"
)

// ErrDuplicateReservation is returned when the journal's uniqueness
// constraint rejects a reservation insert. Two workers racing on the same
// order both reach the insert; the loser must treat this like a duplicate
// delivery, not an infrastructure failure.
var ErrDuplicateReservation = errors.New("reservation already exists for order")

const uniqueViolationCode = "23505"

// InventoryRepository handles database operations for the ledger and journal
type InventoryRepository struct {
	db *sqlx.DB
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *sqlx.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// GetItem retrieves an inventory item by product ID
func (r *InventoryRepository) GetItem(ctx context.Context, productID string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	query := `SELECT product_id, available_qty, reserved_qty, updated_at
			  FROM inventory WHERE product_id = $1`

	err := r.db.GetContext(ctx, &item, query, productID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to get inventory item")
		return nil, fmt.Errorf("failed to get inventory item: %w", err)
	}

	return &item, nil
}

// GetItemForUpdate retrieves an inventory item with a row lock so the
// availability check and the quantity write happen under the same lock.
func (r *InventoryRepository) GetItemForUpdate(ctx context.Context, tx *sqlx.Tx, productID string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	query := `SELECT product_id, available_qty, reserved_qty, updated_at
			  FROM inventory WHERE product_id = $1 FOR UPDATE`

	err := tx.GetContext(ctx, &item, query, productID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to get inventory item for update")
		return nil, fmt.Errorf("failed to get inventory item for update: %w", err)
	}

	return &item, nil
}

// UpdateQuantities writes an item's available/reserved quantities
func (r *InventoryRepository) UpdateQuantities(ctx context.Context, tx *sqlx.Tx, item *models.InventoryItem) error {
	query := `UPDATE inventory
			  SET available_qty = $2, reserved_qty = $3, updated_at = NOW()
			  WHERE product_id = $1`

	result, err := tx.ExecContext(ctx, query, item.ProductID, item.AvailableQty, item.ReservedQty)
	if err != nil {
		log.Error().Err(err).Str("product_id", item.ProductID).Msg("Failed to update inventory quantities")
		return fmt.Errorf("failed to update inventory quantities: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("inventory item not found: %s", item.ProductID)
	}

	item.UpdatedAt = time.Now()
	return nil
}

// UpsertItem creates or replaces an inventory item outside the saga flow
// (admin stock seeding).
func (r *InventoryRepository) UpsertItem(ctx context.Context, item *models.InventoryItem) error {
	query := `INSERT INTO inventory (product_id, available_qty, reserved_qty, updated_at)
			  VALUES ($1, $2, $3, NOW())
			  ON CONFLICT (product_id)
			  DO UPDATE SET available_qty = $2, reserved_qty = $3, updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query, item.ProductID, item.AvailableQty, item.ReservedQty)
	if err != nil {
		log.Error().Err(err).Str("product_id", item.ProductID).Msg("Failed to upsert inventory item")
		return fmt.Errorf("failed to upsert inventory item: %w", err)
	}

	item.UpdatedAt = time.Now()
	return nil
}

// GetReservations retrieves all journal rows for an order
func (r *InventoryRepository) GetReservations(ctx context.Context, orderID string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	query := `SELECT reservation_id, order_id, product_id, qty, created_at
			  FROM reservation WHERE order_id = $1 ORDER BY created_at ASC`

	err := r.db.SelectContext(ctx, &reservations, query, orderID)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("Failed to get reservations")
		return nil, fmt.Errorf("failed to get reservations: %w", err)
	}

	return reservations, nil
}

// GetReservationsForUpdate retrieves an order's journal rows with row locks,
// inside the command's transaction.
func (r *InventoryRepository) GetReservationsForUpdate(ctx context.Context, tx *sqlx.Tx, orderID string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	query := `SELECT reservation_id, order_id, product_id, qty, created_at
			  FROM reservation WHERE order_id = $1 FOR UPDATE`

	err := tx.SelectContext(ctx, &reservations, query, orderID)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("Failed to get reservations for update")
		return nil, fmt.Errorf("failed to get reservations for update: %w", err)
	}

	return reservations, nil
}

// CreateReservation inserts one journal row. A unique violation on
// (order_id, product_id) is reported as ErrDuplicateReservation.
func (r *InventoryRepository) CreateReservation(ctx context.Context, tx *sqlx.Tx, reservation *models.Reservation) error {
	query := `INSERT INTO reservation (reservation_id, order_id, product_id, qty, created_at)
			  VALUES ($1, $2, $3, $4, NOW())`

	_, err := tx.ExecContext(ctx, query, reservation.ReservationID, reservation.OrderID,
		reservation.ProductID, reservation.Qty)
	if err != nil {
		if isUniqueViolation(err) {
			log.Warn().
				Str("order_id", reservation.OrderID).
				Str("product_id", reservation.ProductID).
				Msg("Reservation insert rejected by uniqueness constraint")
			return ErrDuplicateReservation
		}
		log.Error().Err(err).Str("order_id", reservation.OrderID).Msg("Failed to create reservation")
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	reservation.CreatedAt = time.Now()
	return nil
}

// DeleteReservations removes all journal rows for an order and returns the
// number of rows deleted.
func (r *InventoryRepository) DeleteReservations(ctx context.Context, tx *sqlx.Tx, orderID string) (int64, error) {
	result, err := tx.ExecContext(ctx, `DELETE FROM reservation WHERE order_id = $1`, orderID)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("Failed to delete reservations")
		return 0, fmt.Errorf("failed to delete reservations: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rowsAffected, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}
	return false
}
