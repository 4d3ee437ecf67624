package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/timmy/reelsense/internal/config"
)

const (
	analyzedKeyPrefix = "reelsense:analyzed:"
	defaultTTL        = 7 * 24 * time.Hour
)

// NewRedisClient creates a client from configuration.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// AnalysisCache remembers which content items were analyzed recently so repeated
// pipeline runs can skip them without a database round trip.
// A nil *AnalysisCache is valid and remembers nothing.
type AnalysisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewAnalysisCache creates a cache. ttl <= 0 uses seven days.
func NewAnalysisCache(client redis.Cmdable, ttl time.Duration) *AnalysisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &AnalysisCache{client: client, ttl: ttl}
}

// Ping checks the connection.
func (c *AnalysisCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// MarkAnalyzed records contentID with the configured expiry.
func (c *AnalysisCache) MarkAnalyzed(ctx context.Context, contentID string) error {
	if c == nil {
		return nil
	}
	if err := c.client.SetEx(ctx, analyzedKey(contentID), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark %s analyzed: %w", contentID, err)
	}
	return nil
}

// IsAnalyzed reports whether contentID was marked and has not expired.
func (c *AnalysisCache) IsAnalyzed(ctx context.Context, contentID string) (bool, error) {
	if c == nil {
		return false, nil
	}
	n, err := c.client.Exists(ctx, analyzedKey(contentID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", contentID, err)
	}
	return n == 1, nil
}

// Forget removes the mark, used when a re-analysis is forced.
func (c *AnalysisCache) Forget(ctx context.Context, contentID string) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, analyzedKey(contentID)).Err()
}

func analyzedKey(contentID string) string {
	return analyzedKeyPrefix + contentID
}
