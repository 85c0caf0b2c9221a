package interfaces

import (
	"context"

	"inventory-saga/internal/models"
)

// ReaderService defines the contract for the read/ops HTTP surface.
type ReaderService interface {
	GetAvailability(ctx context.Context, productID string) (*models.AvailabilityResponse, error)
	GetOrderReservations(ctx context.Context, orderID string) ([]models.Reservation, error)
	UpsertItem(ctx context.Context, item *models.InventoryItem) error
}
