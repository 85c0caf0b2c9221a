package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"inventory-saga/internal/interfaces"
	"inventory-saga/internal/models"
)

// InventoryReaderService serves the HTTP read path: availability lookups
// with a cache-aside Redis layer, reservation listings, and the admin
// upsert used to seed the ledger.
type InventoryReaderService struct {
	inventory interfaces.InventoryRepository
	cache     interfaces.CacheRepository
}

// NewInventoryReaderService creates a new reader service
func NewInventoryReaderService(inventory interfaces.InventoryRepository, cache interfaces.CacheRepository) *InventoryReaderService {
	return &InventoryReaderService{
		inventory: inventory,
		cache:     cache,
	}
}

// GetAvailability returns current quantities for a product, preferring the
// cache and falling back to the database on a miss. Cache failures degrade
// to database reads rather than failing the request.
func (s *InventoryReaderService) GetAvailability(ctx context.Context, productID string) (*models.AvailabilityResponse, error) {
	if s.cache != nil {
		cached, err := s.cache.GetItem(ctx, productID)
		if err != nil {
			log.Error().Err(err).Str("product_id", productID).Msg("Cache read failed, falling back to database")
		} else if cached != nil {
			log.Debug().Str("product_id", productID).Msg("Availability served from cache")
			return availabilityFromItem(cached, true), nil
		}
	}

	item, err := s.inventory.GetItem(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory item: %w", err)
	}
	if item == nil {
		return nil, nil
	}

	if s.cache != nil {
		go func(snapshot models.InventoryItem) {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := s.cache.SetItem(cacheCtx, &snapshot); err != nil {
				log.Error().Err(err).Str("product_id", snapshot.ProductID).Msg("Failed to populate cache")
			}
		}(*item)
	}

	return availabilityFromItem(item, false), nil
}

// GetOrderReservations lists the journal rows held for an order. An order
// with no reservations returns an empty slice, not an error.
func (s *InventoryReaderService) GetOrderReservations(ctx context.Context, orderID string) ([]models.Reservation, error) {
	reservations, err := s.inventory.GetReservations(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservations: %w", err)
	}
	return reservations, nil
}

// UpsertItem creates or replaces a ledger row and drops any stale cache
// entry for the product.
func (s *InventoryReaderService) UpsertItem(ctx context.Context, item *models.InventoryItem) error {
	item.UpdatedAt = time.Now().UTC()

	if err := s.inventory.UpsertItem(ctx, item); err != nil {
		return fmt.Errorf("failed to upsert inventory item: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.DeleteItem(ctx, item.ProductID); err != nil {
			log.Error().Err(err).Str("product_id", item.ProductID).Msg("Failed to invalidate cache after upsert")
		}
	}

	log.Info().
		Str("product_id", item.ProductID).
		Int("available_qty", item.AvailableQty).
		Int("reserved_qty", item.ReservedQty).
		Msg("Inventory item upserted")
	return nil
}

func availabilityFromItem(item *models.InventoryItem, cacheHit bool) *models.AvailabilityResponse {
	return &models.AvailabilityResponse{
		ProductID:    item.ProductID,
		AvailableQty: item.AvailableQty,
		ReservedQty:  item.ReservedQty,
		CacheHit:     cacheHit,
		LastUpdated:  item.UpdatedAt,
	}
}
