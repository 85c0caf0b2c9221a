package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"inventory-saga/internal/models"
)

// CacheClient wraps Redis for availability caching with cluster support
type CacheClient struct {
	client    redis.UniversalClient // Universal client supports both single and cluster
	ttl       time.Duration
	keyPrefix string
}

// NewCacheClient creates a new Redis cache client with cluster support
func NewCacheClient(addrs []string, password string, clusterMode bool, ttl time.Duration, keyPrefix string) *CacheClient {
	var client redis.UniversalClient

	if clusterMode {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        addrs,
			Password:     password,
			MaxRetries:   3,
			PoolSize:     50,
			MinIdleConns: 5,
			PoolTimeout:  30 * time.Second,
			// Cluster-specific options
			MaxRedirects:   8,
			ReadOnly:       false,
			RouteByLatency: true,
		})
	} else {
		// Single Redis instance for development
		addr := "localhost:6379"
		if len(addrs) > 0 {
			addr = addrs[0]
		}
		client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       0, // DB is not supported in cluster mode
			PoolSize: 10,
		})
	}

	return &CacheClient{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
	}
}

// GetItem retrieves an inventory item from cache. A miss returns nil, nil.
func (c *CacheClient) GetItem(ctx context.Context, productID string) (*models.InventoryItem, error) {
	key := c.itemKey(productID)

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			// Cache miss
			return nil, nil
		}
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to get item from cache")
		return nil, fmt.Errorf("failed to get item from cache: %w", err)
	}

	var item models.InventoryItem
	if err := json.Unmarshal([]byte(val), &item); err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to unmarshal cached item")
		return nil, fmt.Errorf("failed to unmarshal cached item: %w", err)
	}

	log.Debug().Str("product_id", productID).Msg("Cache hit for inventory item")
	return &item, nil
}

// SetItem stores an inventory item in cache with the configured TTL.
func (c *CacheClient) SetItem(ctx context.Context, item *models.InventoryItem) error {
	key := c.itemKey(item.ProductID)

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Error().Err(err).Str("product_id", item.ProductID).Msg("Failed to set item in cache")
		return fmt.Errorf("failed to set item in cache: %w", err)
	}

	log.Debug().Str("product_id", item.ProductID).Msg("Cached inventory item")
	return nil
}

// DeleteItem removes an inventory item from cache
func (c *CacheClient) DeleteItem(ctx context.Context, productID string) error {
	key := c.itemKey(productID)

	if err := c.client.Del(ctx, key).Err(); err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to delete item from cache")
		return fmt.Errorf("failed to delete item from cache: %w", err)
	}

	log.Debug().Str("product_id", productID).Msg("Deleted item from cache")
	return nil
}

// Ping checks if Redis is available
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.client.Close()
}

// itemKey generates the cache key for an inventory item with prefix
func (c *CacheClient) itemKey(productID string) string {
	return fmt.Sprintf("%sinventory:%s", c.keyPrefix, productID)
}
