package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"inventory-saga/internal/config"
	"inventory-saga/internal/kafka"
	redisCache "inventory-saga/internal/redis"
	"inventory-saga/internal/repository"
	"inventory-saga/internal/service"
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
	log.Info().Msg("Starting Saga Worker...")

	cfg := config.LoadConfig()

	db := initializeDatabase(cfg)
	defer db.Close()

	cache := redisCache.NewCacheClient(
		cfg.RedisAddrs,
		cfg.RedisPassword,
		cfg.RedisClusterMode,
		cfg.RedisTTL,
		cfg.RedisKeyPrefix,
	)
	defer cache.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := cache.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Msg("Redis not reachable, availability cache degraded until it recovers")
	} else {
		log.Info().Msg("Redis connection established")
	}
	pingCancel()

	txRunner := repository.NewTxRunner(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	saga := service.NewSagaService(txRunner, inventoryRepo, outboxRepo, cache)

	consumer := kafka.NewCommandConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, cfg.KafkaCommandsTopic)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Run(ctx, saga); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Command consumption stopped")
		}
	}()

	log.Info().
		Str("instance_id", cfg.InstanceID).
		Str("topic", cfg.KafkaCommandsTopic).
		Msg("Saga Worker started, consuming commands...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Saga Worker...")
	cancel()

	// Give in-flight commands time to finish
	time.Sleep(2 * time.Second)

	log.Info().Msg("Saga Worker stopped")
}
