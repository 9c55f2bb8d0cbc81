package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medisched/medisched/internal/pkg/config"
)

// Cache wraps a Redis client. A nil *Cache or one without a client is a
// valid, always-missing cache, so callers never branch on configuration.
type Cache struct {
	client *redis.Client
}

// SetupCache connects to the cache server when CACHE_HOST is set. A failed
// ping only logs; the client reconnects on its own once the server is up.
func SetupCache(cfg config.Config) *Cache {
	if !cfg.CacheEnabled() {
		log.Printf("CACHE_HOST not set, running without cache")
		return &Cache{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.CacheHost, cfg.CachePort),
		Password: cfg.CachePassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to cache: %v", err)
	} else {
		log.Printf("Successfully connected to cache: %s", pong)
	}
	return &Cache{client: client}
}

func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// GetClient returns the Redis client, or nil without a cache.
func (c *Cache) GetClient() *redis.Client {
	if c == nil {
		return nil
	}
	return c.client
}

func (c *Cache) Enabled() bool {
	return c.GetClient() != nil
}

// GetJSON decodes the cached value into dst. It reports false on a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores value encoded as JSON with the given expiration.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, expiration).Err()
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
