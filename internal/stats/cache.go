package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores computed summaries per test and version. The version is the
// test's latest event sequence, read in the same transaction as the
// attempts, so an entry written from an older read is never served once a
// newer event exists. Callers treat cache errors as misses.
type Cache interface {
	Get(ctx context.Context, testID, version int64) (Summary, bool, error)
	Put(ctx context.Context, testID, version int64, s Summary) error
	// Invalidate drops every version cached for the test.
	Invalidate(ctx context.Context, testID int64) error
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, int64, int64) (Summary, bool, error) {
	return Summary{}, false, nil
}
func (NopCache) Put(context.Context, int64, int64, Summary) error { return nil }
func (NopCache) Invalidate(context.Context, int64) error          { return nil }

const keyPrefix = "stats:test:"

func testPrefix(testID int64) string { return keyPrefix + strconv.FormatInt(testID, 10) + ":" }

func cacheKey(testID, version int64) string {
	return testPrefix(testID) + strconv.FormatInt(version, 10)
}

// RedisCache keeps JSON-encoded summaries with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, testID, version int64) (Summary, bool, error) {
	data, err := c.rdb.Get(ctx, cacheKey(testID, version)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Summary{}, false, nil
		}
		return Summary{}, false, fmt.Errorf("stats cache get: %w", err)
	}
	var s Summary
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return Summary{}, false, fmt.Errorf("stats cache decode: %w", err)
	}
	return s, true, nil
}

func (c *RedisCache) Put(ctx context.Context, testID, version int64, s Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, cacheKey(testID, version), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("stats cache put: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, testID int64) error {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, testPrefix(testID)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("stats cache invalidate: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("stats cache invalidate: %w", err)
	}
	return nil
}
