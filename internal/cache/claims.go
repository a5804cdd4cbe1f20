package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DispatchClaims marks schedule rows as in flight so overlapping send
// triggers do not deliver the same reminder twice.
type DispatchClaims struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDispatchClaims(client *redis.Client, ttl time.Duration) *DispatchClaims {
	return &DispatchClaims{client: client, ttl: ttl}
}

func claimKey(id int64) string {
	return "dispatch:claim:" + strconv.FormatInt(id, 10)
}

// Claim reports whether the caller now owns the row.
func (c *DispatchClaims) Claim(ctx context.Context, id int64) (bool, error) {
	return c.client.SetNX(ctx, claimKey(id), "1", c.ttl).Result()
}

// Release drops the claim so a later trigger may retry the row.
func (c *DispatchClaims) Release(ctx context.Context, id int64) error {
	return c.client.Del(ctx, claimKey(id)).Err()
}
