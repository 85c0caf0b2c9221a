package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"inventory-saga/internal/config"
	"inventory-saga/internal/kafka"
	"inventory-saga/internal/relay"
	"inventory-saga/internal/repository"
)

// setupLogging configures structured logging
func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// initializeDatabase sets up and tests the database connection
func initializeDatabase(cfg *config.Config) *sqlx.DB {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}

	log.Info().Msg("Database connection established")
	return db
}

func main() {
	setupLogging()
	log.Info().Msg("Starting Outbox Relay...")

	cfg := config.LoadConfig()

	db := initializeDatabase(cfg)
	defer db.Close()

	publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
	defer publisher.Close()

	outboxRepo := repository.NewOutboxRepository(db)
	r := relay.New(outboxRepo, publisher, cfg.RelayBatchSize, cfg.RelayInterval, cfg.RelayLockKey)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go r.Run(ctx)

	log.Info().
		Str("instance_id", cfg.InstanceID).
		Str("topic", cfg.KafkaEventsTopic).
		Msg("Outbox Relay started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Outbox Relay...")
	cancel()

	log.Info().Msg("Outbox Relay stopped")
}
