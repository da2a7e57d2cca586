package cache

import (
	"context"
	"encoding/json"
	"time"
)

// GetJSON reads and decodes a cached value. Read errors and decode
// failures are both treated as misses; the caller refetches and the
// stale entry gets overwritten.
func GetJSON[T any](ctx context.Context, c *Tiered, key string) (*T, bool) {
	payload, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// GetStaleJSON is GetJSON over the expiry-ignoring stale path.
func GetStaleJSON[T any](ctx context.Context, c *Tiered, key string) (*T, bool) {
	payload, ok, err := c.GetStale(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// SetJSON encodes and stores a value in both tiers. ownerID may be
// empty for entries outside any user scope.
func SetJSON[T any](ctx context.Context, c *Tiered, key string, v *T, ttl time.Duration, ownerID string) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.SetOwned(ctx, key, payload, ttl, ownerID)
}
