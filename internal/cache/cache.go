// Package cache holds a Redis-backed map of email address to
// directory person ID, cutting a directory search round trip for
// records seen in recent runs. The cache is advisory: any miss or
// Redis failure falls back to a direct directory lookup.
package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chapterhq/roster-sync/internal/config"
)

const keyPrefix = "roster-sync:directory-id:"

// DirectoryIDCache maps emails to directory person IDs.
type DirectoryIDCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects a DirectoryIDCache to Redis.
func New(cfg config.CacheConfig) *DirectoryIDCache {
	return &DirectoryIDCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		ttl: cfg.TTL(),
	}
}

// Get returns the cached directory ID for an email, or empty on miss.
// Redis failures degrade to a miss.
func (c *DirectoryIDCache) Get(ctx context.Context, email string) string {
	id, err := c.client.Get(ctx, keyPrefix+email).Result()
	if err == redis.Nil {
		return ""
	}
	if err != nil {
		log.Printf("cache: get %s failed, treating as miss: %v", email, err)
		return ""
	}
	return id
}

// Set records the directory ID for an email. Failures are logged and
// dropped; the cache never fails a sync.
func (c *DirectoryIDCache) Set(ctx context.Context, email, directoryID string) {
	if directoryID == "" {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+email, directoryID, c.ttl).Err(); err != nil {
		log.Printf("cache: set %s failed: %v", email, err)
	}
}

// Invalidate drops the cached ID for an email.
func (c *DirectoryIDCache) Invalidate(ctx context.Context, email string) {
	if err := c.client.Del(ctx, keyPrefix+email).Err(); err != nil {
		log.Printf("cache: invalidate %s failed: %v", email, err)
	}
}

// Ping verifies the Redis connection at startup.
func (c *DirectoryIDCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *DirectoryIDCache) Close() error {
	return c.client.Close()
}
