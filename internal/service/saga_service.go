package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"inventory-saga/internal/interfaces"
	"inventory-saga/internal/models"
	"inventory-saga/internal/repository"
)

// SagaService processes the two saga commands this participant understands.
// Every command terminates in exactly one outbox row: the primary
// transaction commits the outcome alongside any ledger/journal mutation, and
// when that transaction fails for infrastructure reasons a fallback insert
// in an independent unit of work records the failure instead.
type SagaService struct {
	tx        interfaces.TxManager
	inventory interfaces.InventoryRepository
	outbox    interfaces.OutboxRepository
	cache     interfaces.CacheRepository
}

// NewSagaService creates a new saga service
func NewSagaService(tx interfaces.TxManager, inventory interfaces.InventoryRepository, outbox interfaces.OutboxRepository, cache interfaces.CacheRepository) *SagaService {
	return &SagaService{
		tx:        tx,
		inventory: inventory,
		outbox:    outbox,
		cache:     cache,
	}
}

// HandleReserve runs the reservation protocol for one command.
//
// Inside a single transaction it checks for an existing reservation
// (duplicate delivery), validates every line item against the ledger, and
// either applies all quantity moves plus one journal row per item, or
// commits a failure event with the ledger untouched. A business rejection is
// a committed outcome, not an error. Only an infrastructure failure reaches
// the fallback notifier.
func (s *SagaService) HandleReserve(ctx context.Context, cmd *models.ReserveInventoryCommand) error {
	log.Info().
		Str("order_id", cmd.OrderID).
		Str("correlation_id", cmd.CorrelationID.String()).
		Int("items", len(cmd.Items)).
		Msg("Processing inventory reservation")

	if err := cmd.Validate(); err != nil {
		log.Warn().Err(err).Str("order_id", cmd.OrderID).Msg("Invalid reservation command, rejecting")
		return s.recordReserveOutcome(ctx, cmd.CorrelationID, cmd.OrderID, false)
	}

	var touched []string
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.inventory.GetReservationsForUpdate(ctx, tx, cmd.OrderID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			log.Warn().Str("order_id", cmd.OrderID).Msg("Duplicate reservation command detected, replaying success")
			return s.outbox.InsertEvent(ctx, tx, models.EventTypeInventoryReserved, cmd.OrderID,
				models.InventoryReserved{CorrelationID: cmd.CorrelationID, OrderID: cmd.OrderID, Success: true})
		}

		// One merged line per product: a repeated product must be checked
		// against the ledger as a single quantity, and the journal holds
		// one row per (order, product).
		lines := mergeOrderItems(cmd.Items)

		items := make([]*models.InventoryItem, 0, len(lines))
		reservations := make([]*models.Reservation, 0, len(lines))
		allReserved := true

		for _, line := range lines {
			item, err := s.inventory.GetItemForUpdate(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}
			if item == nil {
				log.Warn().
					Str("order_id", cmd.OrderID).
					Str("product_id", line.ProductID).
					Msg("Product not found in inventory")
				allReserved = false
				break
			}
			if err := item.Reserve(line.Qty); err != nil {
				log.Warn().Err(err).
					Str("order_id", cmd.OrderID).
					Str("product_id", line.ProductID).
					Msg("Line item rejected")
				allReserved = false
				break
			}

			items = append(items, item)
			reservations = append(reservations, &models.Reservation{
				ReservationID: uuid.New(),
				OrderID:       cmd.OrderID,
				ProductID:     line.ProductID,
				Qty:           line.Qty,
				CreatedAt:     time.Now().UTC(),
			})
		}

		if !allReserved {
			// The rejection itself is a committed outcome of this unit of
			// work; no ledger mutation is persisted.
			return s.outbox.InsertEvent(ctx, tx, models.EventTypeInventoryReserved, cmd.OrderID,
				models.InventoryReserved{CorrelationID: cmd.CorrelationID, OrderID: cmd.OrderID, Success: false})
		}

		for _, item := range items {
			if err := s.inventory.UpdateQuantities(ctx, tx, item); err != nil {
				return err
			}
			touched = append(touched, item.ProductID)
		}
		for _, reservation := range reservations {
			if err := s.inventory.CreateReservation(ctx, tx, reservation); err != nil {
				return err
			}
		}

		return s.outbox.InsertEvent(ctx, tx, models.EventTypeInventoryReserved, cmd.OrderID,
			models.InventoryReserved{CorrelationID: cmd.CorrelationID, OrderID: cmd.OrderID, Success: true})
	})

	if err == nil {
		s.invalidateCache(touched)
		log.Info().Str("order_id", cmd.OrderID).Msg("Reservation command processed")
		return nil
	}

	if errors.Is(err, repository.ErrDuplicateReservation) {
		// Lost the insert race against a concurrent worker. The other
		// writer owns the order; record the same idempotent success the
		// duplicate-detection path would have.
		log.Warn().Str("order_id", cmd.OrderID).Msg("Reservation insert race lost, replaying success")
		return s.recordReserveOutcome(ctx, cmd.CorrelationID, cmd.OrderID, true)
	}

	log.Error().Err(err).Str("order_id", cmd.OrderID).Msg("Reservation transaction failed, invoking fallback notifier")
	return s.notifyFailure(ctx, models.EventTypeInventoryReserved, cmd.CorrelationID, cmd.OrderID)
}

// HandleCompensate runs the compensation protocol for one command.
//
// Releasing an order that was never reserved, or was already compensated,
// is a no-op success so the orchestrator can retry compensation safely.
func (s *SagaService) HandleCompensate(ctx context.Context, cmd *models.CompensateInventoryCommand) error {
	log.Info().
		Str("order_id", cmd.OrderID).
		Str("correlation_id", cmd.CorrelationID.String()).
		Msg("Compensating inventory reservation")

	if err := cmd.Validate(); err != nil {
		log.Warn().Err(err).Str("order_id", cmd.OrderID).Msg("Invalid compensation command, rejecting")
		return s.recordCompensateOutcome(ctx, cmd.CorrelationID, cmd.OrderID, false)
	}

	var touched []string
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		reservations, err := s.inventory.GetReservationsForUpdate(ctx, tx, cmd.OrderID)
		if err != nil {
			return err
		}

		if len(reservations) == 0 {
			log.Warn().Str("order_id", cmd.OrderID).Msg("No reservations to compensate, replying success")
			return s.outbox.InsertEvent(ctx, tx, models.EventTypeInventoryCompensated, cmd.OrderID,
				models.InventoryCompensated{CorrelationID: cmd.CorrelationID, OrderID: cmd.OrderID, Success: true})
		}

		for _, reservation := range reservations {
			item, err := s.inventory.GetItemForUpdate(ctx, tx, reservation.ProductID)
			if err != nil {
				return err
			}
			if item == nil {
				log.Warn().
					Str("order_id", cmd.OrderID).
					Str("product_id", reservation.ProductID).
					Msg("Reserved product missing from ledger, skipping restore")
				continue
			}

			item.Release(reservation.Qty)
			if err := s.inventory.UpdateQuantities(ctx, tx, item); err != nil {
				return err
			}
			touched = append(touched, item.ProductID)
		}

		if _, err := s.inventory.DeleteReservations(ctx, tx, cmd.OrderID); err != nil {
			return err
		}

		return s.outbox.InsertEvent(ctx, tx, models.EventTypeInventoryCompensated, cmd.OrderID,
			models.InventoryCompensated{CorrelationID: cmd.CorrelationID, OrderID: cmd.OrderID, Success: true})
	})

	if err == nil {
		s.invalidateCache(touched)
		log.Info().Str("order_id", cmd.OrderID).Msg("Compensation command processed")
		return nil
	}

	log.Error().Err(err).Str("order_id", cmd.OrderID).Msg("Compensation transaction failed, invoking fallback notifier")
	return s.notifyFailure(ctx, models.EventTypeInventoryCompensated, cmd.CorrelationID, cmd.OrderID)
}

// recordReserveOutcome appends a terminal reservation event in its own unit
// of work, outside any primary transaction.
func (s *SagaService) recordReserveOutcome(ctx context.Context, correlationID uuid.UUID, orderID string, success bool) error {
	err := s.outbox.InsertEvent(ctx, nil, models.EventTypeInventoryReserved, orderID,
		models.InventoryReserved{CorrelationID: correlationID, OrderID: orderID, Success: success})
	if err != nil {
		return s.notifyFailure(ctx, models.EventTypeInventoryReserved, correlationID, orderID)
	}
	return nil
}

// recordCompensateOutcome appends a terminal compensation event in its own
// unit of work.
func (s *SagaService) recordCompensateOutcome(ctx context.Context, correlationID uuid.UUID, orderID string, success bool) error {
	err := s.outbox.InsertEvent(ctx, nil, models.EventTypeInventoryCompensated, orderID,
		models.InventoryCompensated{CorrelationID: correlationID, OrderID: orderID, Success: success})
	if err != nil {
		return s.notifyFailure(ctx, models.EventTypeInventoryCompensated, correlationID, orderID)
	}
	return nil
}

// notifyFailure is the fallback notifier: after the primary unit of work has
// rolled back, it records a failure event through a single independent
// outbox insert so the orchestrator still receives a terminal response. If
// even this insert fails, the event is lost for now and the returned error
// keeps the command uncommitted on the broker.
func (s *SagaService) notifyFailure(ctx context.Context, eventType string, correlationID uuid.UUID, orderID string) error {
	var payload interface{}
	switch eventType {
	case models.EventTypeInventoryCompensated:
		payload = models.InventoryCompensated{CorrelationID: correlationID, OrderID: orderID, Success: false}
	default:
		payload = models.InventoryReserved{CorrelationID: correlationID, OrderID: orderID, Success: false}
	}

	if err := s.outbox.InsertEvent(ctx, nil, eventType, orderID, payload); err != nil {
		log.Error().Err(err).
			Str("alert", "saga_liveness").
			Str("event_type", eventType).
			Str("order_id", orderID).
			Str("correlation_id", correlationID.String()).
			Msg("Fallback notification failed, orchestrator will not receive a terminal response")
		return err
	}

	log.Warn().
		Str("event_type", eventType).
		Str("order_id", orderID).
		Msg("Recorded failure event via fallback notifier")
	return nil
}

// mergeOrderItems collapses repeated products into one line each, summing
// quantities and keeping first-seen order. After merging, a unique
// violation on the reservation insert can only come from a concurrent
// writer on the same order, never from the order's own line items.
func mergeOrderItems(items []models.OrderItem) []models.OrderItem {
	merged := make([]models.OrderItem, 0, len(items))
	index := make(map[string]int, len(items))

	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Qty += item.Qty
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}

	return merged
}

// invalidateCache drops cached availability for mutated products. Best
// effort: the cache is read-path only and repopulates from the database.
func (s *SagaService) invalidateCache(productIDs []string) {
	if s.cache == nil || len(productIDs) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for _, productID := range productIDs {
			if err := s.cache.DeleteItem(ctx, productID); err != nil {
				log.Error().Err(err).Str("product_id", productID).Msg("Failed to invalidate cache after mutation")
			} else {
				log.Debug().Str("product_id", productID).Msg("Cache invalidated after mutation")
			}
		}
	}()
}
