// Package cache is the read-through acceleration layer. It memoizes expensive
// read-path computations in Redis and is invalidated by the coordinator in the
// same operation that changes the underlying data.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	hitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linknet_cache_requests_total",
		Help: "Cache lookups by outcome",
	}, []string{"outcome"}) // outcome: "hit", "miss", "bypass"
)

const keyPrefix = "linknet:"

// Cache is a Redis-backed get-or-compute cache. A nil *Cache is valid and
// bypasses Redis entirely, so callers never branch on whether caching is
// configured.
type Cache struct {
	client *redis.Client
}

// New wraps an existing Redis client. Pass nil to disable caching.
func New(client *redis.Client) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client}
}

// GetOrCompute returns the cached value for key, or runs compute, stores the
// result with the given TTL, and returns it. Redis failures fall back to the
// computed value rather than failing the read.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		hitsTotal.WithLabelValues("bypass").Inc()
		return compute(ctx)
	}

	full := keyPrefix + key
	raw, err := c.client.Get(ctx, full).Result()
	if err == nil {
		var cached T
		if unmarshalErr := json.Unmarshal([]byte(raw), &cached); unmarshalErr == nil {
			hitsTotal.WithLabelValues("hit").Inc()
			return cached, nil
		}
		// Corrupt entry: drop it and recompute.
		c.client.Del(ctx, full)
	} else if !errors.Is(err, redis.Nil) && ctx.Err() != nil {
		return zero, ctx.Err()
	}

	hitsTotal.WithLabelValues("miss").Inc()
	value, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("marshal cache value: %w", err)
	}
	// Best effort: a failed SET must not fail the read.
	c.client.Set(ctx, full, encoded, ttl)
	return value, nil
}

// Invalidate removes the given keys. Called by the coordinator for every
// member whose aggregates a committed transition changed.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = keyPrefix + key
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("invalidate cache keys: %w", err)
	}
	return nil
}

// MemberProfileKey is the cache key for a member's assembled profile.
func MemberProfileKey(memberID string) string {
	return "member:profile:" + memberID
}
