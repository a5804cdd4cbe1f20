package cache

import (
	"context"
	"time"

	"questkeeper_notifications/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

// TokenCache stores provider access tokens in Redis so replicas share one
// token instead of each exchanging its own.
type TokenCache struct {
	client *redis.Client
}

func NewTokenCache(client *redis.Client) *TokenCache {
	return &TokenCache{client: client}
}

func (c *TokenCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("token cache read failed", "error", err)
		}
		return "", false
	}
	return val, val != ""
}

func (c *TokenCache) Set(ctx context.Context, key, token string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, token, ttl).Err(); err != nil {
		logger.Warn("token cache write failed", "error", err)
	}
}
