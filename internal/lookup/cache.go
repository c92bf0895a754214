// Package lookup serves the dropdown values for the deep-dive filter
// builder (distinct countries, products, PICs and so on) behind a Redis
// read-through cache. The tiering path never touches it.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adpulse/perftracker/internal/deepdive"
	"github.com/adpulse/perftracker/internal/pkg/distlock"
	"github.com/adpulse/perftracker/internal/pkg/logger"
)

const (
	defaultLimit = 500

	// How long one instance may hold the refresh lock, and how long a
	// loser waits for the winner to populate the cache before scanning
	// the warehouse itself anyway.
	refreshLockTTL  = 30 * time.Second
	refreshWaitStep = 200 * time.Millisecond
	refreshWaitMax  = 10
)

// ValueSource answers distinct-value queries. Implemented by the
// warehouse client.
type ValueSource interface {
	FetchDistinctValues(ctx context.Context, column string, limit int) ([]string, error)
}

// Cache is a Redis read-through cache over distinct column values.
// With a nil Redis client every read goes straight to the source.
type Cache struct {
	source ValueSource
	redis  *redis.Client
	ttl    time.Duration
}

// NewCache wires the cache. redisClient may be nil.
func NewCache(source ValueSource, redisClient *redis.Client, ttl time.Duration) *Cache {
	return &Cache{source: source, redis: redisClient, ttl: ttl}
}

// Values returns the distinct values for one filterable field. The field
// name is resolved against the filter whitelist; unknown fields are
// rejected before anything reaches the warehouse.
func (c *Cache) Values(ctx context.Context, field string) ([]string, error) {
	column, ok := deepdive.FilterableColumns[field]
	if !ok {
		return nil, &deepdive.ValidationError{Field: "field", Msg: fmt.Sprintf("unknown lookup field %q", field)}
	}

	key := "lookup:" + field
	if c.redis != nil {
		if values, ok := c.readCached(ctx, key, field); ok {
			return values, nil
		}

		// Cache miss: take the refresh lock so a cold key costs one
		// warehouse scan cluster-wide, not one per user.
		lock := distlock.New(c.redis, key, refreshLockTTL)
		acquired, err := lock.Acquire(ctx)
		if err == nil && !acquired {
			for i := 0; i < refreshWaitMax; i++ {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(refreshWaitStep):
				}
				if values, ok := c.readCached(ctx, key, field); ok {
					return values, nil
				}
			}
			// Winner is slow or gone; scan directly.
		}
		if acquired {
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("lookup refresh lock release failed", "field", field, "error", err.Error())
				}
			}()
		}
	}

	values, err := c.source.FetchDistinctValues(ctx, column, defaultLimit)
	if err != nil {
		return nil, &deepdive.DataSourceError{Op: "lookup " + field, Err: err}
	}
	if values == nil {
		values = []string{}
	}

	if c.redis != nil {
		payload, err := json.Marshal(values)
		if err == nil {
			if err := c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				logger.Warn("lookup cache write failed", "field", field, "error", err.Error())
			}
		}
	}

	return values, nil
}

// readCached returns the cached values for key, if present and intact.
func (c *Cache) readCached(ctx context.Context, key, field string) ([]string, bool) {
	cached, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		// Redis being down must not take lookups down with it.
		logger.Warn("lookup cache read failed", "field", field, "error", err.Error())
		return nil, false
	}
	var values []string
	if err := json.Unmarshal([]byte(cached), &values); err != nil {
		// Corrupt entry: treat as a miss and refresh it.
		return nil, false
	}
	return values, true
}

// Invalidate drops the cached values for one field, forcing the next
// read through to the warehouse.
func (c *Cache) Invalidate(ctx context.Context, field string) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, "lookup:"+field).Err()
}
