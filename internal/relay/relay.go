package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"inventory-saga/internal/interfaces"
)

// Relay drains the outbox table into Kafka. A Postgres advisory lock keeps
// at most one relay instance draining at a time, so events leave in outbox
// insertion order. Rows stay unprocessed until the broker acknowledges
// them; a crash between publish and mark means redelivery, never loss.
type Relay struct {
	outbox    interfaces.OutboxRepository
	publisher interfaces.EventPublisher
	batchSize int
	interval  time.Duration
	lockKey   int64
}

// New creates a new outbox relay
func New(outbox interfaces.OutboxRepository, publisher interfaces.EventPublisher, batchSize int, interval time.Duration, lockKey int64) *Relay {
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		batchSize: batchSize,
		interval:  interval,
		lockKey:   lockKey,
	}
}

// Run polls the outbox until the context is cancelled.
func (r *Relay) Run(ctx context.Context) {
	log.Info().
		Int64("lock_key", r.lockKey).
		Int("batch_size", r.batchSize).
		Dur("poll_interval", r.interval).
		Msg("Starting outbox relay")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping outbox relay")
			return
		case <-ticker.C:
			if err := r.DrainOnce(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to drain outbox batch")
			}
		}
	}
}

// DrainOnce publishes a single batch of unprocessed events. It is a no-op
// when another relay instance holds the advisory lock.
func (r *Relay) DrainOnce(ctx context.Context) error {
	acquired, err := r.outbox.TryAcquireRelayLock(ctx, r.lockKey)
	if err != nil {
		return fmt.Errorf("failed to acquire relay lock: %w", err)
	}
	if !acquired {
		log.Debug().Msg("Relay lock held by another instance, skipping batch")
		return nil
	}

	defer func() {
		if err := r.outbox.ReleaseRelayLock(ctx, r.lockKey); err != nil {
			log.Error().Err(err).Msg("Failed to release relay lock")
		}
	}()

	events, err := r.outbox.FetchUnprocessed(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch outbox batch: %w", err)
	}

	if len(events) == 0 {
		return nil
	}

	log.Debug().Int("count", len(events)).Msg("Draining outbox batch")

	var publishedIDs []int64
	for i := range events {
		event := &events[i]
		if err := r.publisher.PublishOutboxEvent(ctx, event); err != nil {
			log.Error().Err(err).
				Int64("outbox_id", event.ID).
				Str("event_type", event.EventType).
				Str("key", event.Key).
				Msg("Failed to publish outbox event")

			if retryErr := r.outbox.IncrementRetry(ctx, event.ID, err.Error()); retryErr != nil {
				log.Error().Err(retryErr).Int64("outbox_id", event.ID).Msg("Failed to record publish retry")
			}
			continue
		}

		publishedIDs = append(publishedIDs, event.ID)
	}

	if len(publishedIDs) > 0 {
		if err := r.outbox.MarkProcessed(ctx, publishedIDs); err != nil {
			return fmt.Errorf("failed to mark events as processed: %w", err)
		}
		log.Info().
			Int("published_count", len(publishedIDs)).
			Int("total_count", len(events)).
			Msg("Outbox batch drained")
	}

	return nil
}
