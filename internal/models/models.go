package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Command types carried in the "command-type" Kafka header
const (
	CommandTypeReserveInventory    = "ReserveInventory"
	CommandTypeCompensateInventory = "CompensateInventory"
)

// Event types recorded in the outbox and published to Kafka
const (
	EventTypeInventoryReserved    = "InventoryReserved"
	EventTypeInventoryCompensated = "InventoryCompensated"
)

// Domain Models

// InventoryItem represents the inventory table structure.
// AvailableQty and ReservedQty are two sides of one pool: a reservation
// moves quantity between them without changing the sum.
type InventoryItem struct {
	ProductID    string    `db:"product_id" json:"product_id"`
	AvailableQty int       `db:"available_qty" json:"available_qty"`
	ReservedQty  int       `db:"reserved_qty" json:"reserved_qty"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Reserve moves qty from available to reserved. It fails without mutating
// the item when the available quantity is insufficient.
func (i *InventoryItem) Reserve(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", qty)
	}
	if i.AvailableQty < qty {
		return fmt.Errorf("insufficient stock for product %s: requested %d, available %d", i.ProductID, qty, i.AvailableQty)
	}
	i.AvailableQty -= qty
	i.ReservedQty += qty
	return nil
}

// Release moves qty back from reserved to available.
func (i *InventoryItem) Release(qty int) {
	i.ReservedQty -= qty
	i.AvailableQty += qty
}

// Reservation represents one journal row per reserved line item. The rows
// for an order fully determine the ledger delta to reverse on compensation.
type Reservation struct {
	ReservationID uuid.UUID `db:"reservation_id" json:"reservation_id"`
	OrderID       string    `db:"order_id" json:"order_id"`
	ProductID     string    `db:"product_id" json:"product_id"`
	Qty           int       `db:"qty" json:"qty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// OutboxEvent represents the outbox pattern table for reliable event
// publishing. Rows are inserted in the same transaction as the business
// mutation and mutated afterwards only by the relay.
type OutboxEvent struct {
	ID          int64      `db:"id" json:"id"`
	EventType   string     `db:"event_type" json:"event_type"`
	Key         string     `db:"key" json:"key"`
	Payload     string     `db:"payload" json:"payload"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	Processed   bool       `db:"processed" json:"processed"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	RetryCount  int        `db:"retry_count" json:"retry_count"`
	LastError   *string    `db:"last_error" json:"last_error,omitempty"`
}

// Commands consumed from the message bus

// OrderItem is one line item of a reservation command.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// ReserveInventoryCommand asks this participant to reserve stock for an order.
type ReserveInventoryCommand struct {
	CorrelationID uuid.UUID   `json:"correlation_id"`
	OrderID       string      `json:"order_id"`
	Items         []OrderItem `json:"items"`
}

// Validate checks the command's input contract. A violation is a business
// rejection, not an infrastructure error.
func (c *ReserveInventoryCommand) Validate() error {
	if c.OrderID == "" {
		return fmt.Errorf("order ID is required")
	}
	if len(c.Items) == 0 {
		return fmt.Errorf("at least one line item is required")
	}
	for _, item := range c.Items {
		if item.ProductID == "" {
			return fmt.Errorf("product ID is required on every line item")
		}
		if item.Qty <= 0 {
			return fmt.Errorf("quantity must be positive, got %d for product %s", item.Qty, item.ProductID)
		}
	}
	return nil
}

// CompensateInventoryCommand asks this participant to release a prior reservation.
type CompensateInventoryCommand struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
}

// Validate checks the command's input contract.
func (c *CompensateInventoryCommand) Validate() error {
	if c.OrderID == "" {
		return fmt.Errorf("order ID is required")
	}
	return nil
}

// Events produced through the outbox

// InventoryReserved is the terminal response to a ReserveInventory command.
type InventoryReserved struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Success       bool      `json:"success"`
}

// InventoryCompensated is the terminal response to a CompensateInventory command.
type InventoryCompensated struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Success       bool      `json:"success"`
}

// API Models

// AvailabilityResponse represents the response for inventory availability
type AvailabilityResponse struct {
	ProductID    string    `json:"product_id"`
	AvailableQty int       `json:"available_qty"`
	ReservedQty  int       `json:"reserved_qty"`
	CacheHit     bool      `json:"cache_hit"`
	LastUpdated  time.Time `json:"last_updated"`
}

// UpsertInventoryRequest seeds or replaces the stock level of a product.
type UpsertInventoryRequest struct {
	AvailableQty int `json:"available_qty" binding:"min=0" validate:"min=0"`
	ReservedQty  int `json:"reserved_qty" binding:"min=0" validate:"min=0"`
}

// ReservationResponse represents a journal row in API responses.
type ReservationResponse struct {
	ReservationID string    `json:"reservation_id"`
	OrderID       string    `json:"order_id"`
	ProductID     string    `json:"product_id"`
	Qty           int       `json:"qty"`
	CreatedAt     time.Time `json:"created_at"`
}
