package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"inventory-saga/internal/models"
)

// OutboxRepository handles outbox operations with advisory locking
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// InsertEvent appends a new event row to the outbox. With a transaction it
// joins that unit of work; with a nil tx it executes as a single atomic
// statement, which is the fallback notifier's independent unit of work.
func (r *OutboxRepository) InsertEvent(ctx context.Context, tx *sqlx.Tx, eventType, key string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO outbox (event_type, key, payload, created_at, processed, retry_count)
		VALUES ($1, $2, $3, NOW(), FALSE, 0)
	`

	var executor interface {
		ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	}

	if tx != nil {
		executor = tx
	} else {
		executor = r.db
	}

	_, err = executor.ExecContext(ctx, query, eventType, key, string(payloadJSON))
	if err != nil {
		log.Error().Err(err).
			Str("event_type", eventType).
			Str("key", key).
			Msg("Failed to insert outbox event")
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	log.Debug().
		Str("event_type", eventType).
		Str("key", key).
		Msg("Inserted outbox event")

	return nil
}

// TryAcquireRelayLock attempts to acquire a PostgreSQL advisory lock so only
// one relay instance drains the outbox at a time. Returns true if the lock
// was acquired.
func (r *OutboxRepository) TryAcquireRelayLock(ctx context.Context, lockKey int64) (bool, error) {
	var acquired bool
	query := "SELECT pg_try_advisory_lock($1)"

	err := r.db.QueryRowContext(ctx, query, lockKey).Scan(&acquired)
	if err != nil && err != sql.ErrNoRows {
		log.Error().Err(err).Int64("lock_key", lockKey).Msg("Failed to acquire advisory lock")
		return false, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}

	if acquired {
		log.Debug().Int64("lock_key", lockKey).Msg("Acquired relay advisory lock")
	} else {
		log.Debug().Int64("lock_key", lockKey).Msg("Relay advisory lock held by another instance")
	}

	return acquired, nil
}

// ReleaseRelayLock releases the PostgreSQL advisory lock
func (r *OutboxRepository) ReleaseRelayLock(ctx context.Context, lockKey int64) error {
	query := "SELECT pg_advisory_unlock($1)"

	var released bool
	err := r.db.QueryRowContext(ctx, query, lockKey).Scan(&released)
	if err != nil {
		log.Error().Err(err).Int64("lock_key", lockKey).Msg("Failed to release advisory lock")
		return fmt.Errorf("failed to release advisory lock: %w", err)
	}

	if !released {
		log.Warn().Int64("lock_key", lockKey).Msg("Advisory lock was not held when trying to release")
	}

	return nil
}

// FetchUnprocessed fetches unprocessed outbox rows in insertion order.
func (r *OutboxRepository) FetchUnprocessed(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	query := `
		SELECT id, event_type, key, payload, created_at, processed, processed_at, retry_count, last_error
		FROM outbox
		WHERE processed = FALSE
		ORDER BY id ASC
		LIMIT $1
	`

	err := r.db.SelectContext(ctx, &events, query, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch unprocessed outbox events")
		return nil, fmt.Errorf("failed to fetch unprocessed outbox events: %w", err)
	}

	return events, nil
}

// MarkProcessed marks events as successfully published
func (r *OutboxRepository) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE outbox
		SET processed = TRUE,
		    processed_at = NOW()
		WHERE id = ANY($1)
	`

	result, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		log.Error().Err(err).Interface("ids", ids).Msg("Failed to mark outbox events as processed")
		return fmt.Errorf("failed to mark outbox events as processed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	log.Info().
		Interface("ids", ids).
		Int64("rows_affected", rowsAffected).
		Msg("Marked outbox events as processed")

	return nil
}

// IncrementRetry increments the retry counter and records the publish error
func (r *OutboxRepository) IncrementRetry(ctx context.Context, id int64, lastError string) error {
	query := `
		UPDATE outbox
		SET retry_count = retry_count + 1,
		    last_error = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, lastError)
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("Failed to increment retry count")
		return fmt.Errorf("failed to increment retry count: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rowsAffected == 0 {
		log.Warn().Int64("id", id).Msg("No outbox event found to increment retries")
	} else {
		log.Debug().Int64("id", id).Str("error", lastError).Msg("Incremented outbox retry count")
	}

	return nil
}
