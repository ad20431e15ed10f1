// Package cache wraps the shared Redis instance used for notification count
// snapshots. Entries carry a TTL but are also invalidated explicitly on every
// write that changes read state; the recompute path keeps working when Redis
// is unreachable, just slower.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/singleflight"
)

// Cache is a thin layer over Redis with a stampede guard for expensive
// recomputes.
type Cache struct {
	rdb   *redis.Client
	group singleflight.Group
}

// New creates a Cache on top of the given Redis client.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Get loads the JSON value at key into dest. The second return is false on a
// miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}

	return true, nil
}

// Set stores value at key as JSON with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}

	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}

	return nil
}

// Delete removes key from the cache. A missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}

	return nil
}

// GetWithSetCallback loads key into dest, computing and storing the value on
// a miss. Concurrent callers for the same key share a single in-flight
// compute instead of each hitting the store.
//
// When Redis is unreachable the compute still runs and its result is
// returned, so callers see correct data in an always-miss degraded mode.
func (c *Cache) GetWithSetCallback(
	ctx context.Context,
	key string,
	ttl time.Duration,
	dest any,
	compute func(ctx context.Context) (any, error),
) error {
	raw, err, _ := c.group.Do(key, func() (any, error) {
		cached, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, redis.Nil) {
			zlog.Logger.Warn().Err(err).Str("key", key).Msg("cache unreachable, recomputing")
		}

		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("cache encode %s: %w", key, err)
		}

		if err := c.rdb.Set(ctx, key, encoded, ttl).Err(); err != nil {
			zlog.Logger.Warn().Err(err).Str("key", key).Msg("failed to store computed value")
		}

		return encoded, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw.([]byte), dest); err != nil {
		return fmt.Errorf("cache decode %s: %w", key, err)
	}

	return nil
}

// TouchCheckKey bumps the logical timestamp stored at key. Readers polling
// CheckKeyTime see that dependent data has changed.
func (c *Cache) TouchCheckKey(ctx context.Context, key string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := c.rdb.Set(ctx, key, now, 0).Err(); err != nil {
		return fmt.Errorf("cache touch %s: %w", key, err)
	}

	return nil
}

// CheckKeyTime returns the logical timestamp at key. An absent key is
// initialized to the current time, matching the semantics that an unknown
// last-update time means "assume it just changed".
func (c *Cache) CheckKeyTime(ctx context.Context, key string) (time.Time, error) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		now := time.Now().UTC()
		if err := c.rdb.Set(ctx, key, now.Format(time.RFC3339Nano), 0).Err(); err != nil {
			return time.Time{}, fmt.Errorf("cache init check key %s: %w", key, err)
		}
		return now, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("cache get check key %s: %w", key, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("cache parse check key %s: %w", key, err)
	}

	return ts, nil
}
