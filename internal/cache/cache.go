// Package cache wraps a Redis client for the orchestrator's hot-path state:
// the session manager's per-session lookup cache and its startup-restore
// lock. A disabled (nil-client) Cache turns every operation into a safe
// no-op/miss so the manager can run without Redis at all.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides caching functionality using Redis.
type Cache struct {
	client *redis.Client
}

// Config holds cache configuration.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// NewCache creates a new Redis cache client, or a disabled one if
// config.Enabled is false.
func NewCache(config Config) (*Cache, error) {
	if !config.Enabled {
		return &Cache{client: nil}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,

		PoolSize:        25,
		MinIdleConns:    5,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) enabled() bool {
	return c.client != nil
}

// Get retrieves a value from cache and unmarshals it into target.
func (c *Cache) Get(ctx context.Context, key string, target interface{}) error {
	if !c.enabled() {
		return fmt.Errorf("cache not enabled")
	}

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return fmt.Errorf("key not found: %s", key)
	}
	if err != nil {
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), target); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return nil
}

// Set stores a value in cache with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.enabled() {
		return nil // silently skip if caching disabled
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	return nil
}

// Delete removes one or more keys from cache.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.enabled() {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}

	return nil
}

// DeletePattern deletes all keys matching a pattern via SCAN, so bulk
// invalidation never blocks Redis the way a KEYS-based scan would.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	if !c.enabled() {
		return nil
	}

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	keys := []string{}

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys with pattern %s: %w", pattern, err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys: %w", err)
		}
	}

	return nil
}

// SetNX sets a key only if it doesn't already exist, for distributed locks.
func (c *Cache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if !c.enabled() {
		return false, fmt.Errorf("cache not enabled")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}

	set, err := c.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set key %s: %w", key, err)
	}

	return set, nil
}
