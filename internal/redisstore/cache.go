// Package redisstore holds the Redis-backed entity cache and the unlock lock
// store.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Cache TTL constants
const (
	BikeCacheTTL = 30 * time.Second // Bike status changes on every unlock/return
	PlanCacheTTL = 5 * time.Minute  // Plans change through admin actions only
)

// Key prefixes
const (
	bikeCachePrefix = "cache:bike:"
	planCachePrefix = "cache:plans"
)

// GetJSON fetches a cached entity into dest. Returns false on a miss.
func (s *CacheStore) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil // Cache miss
		}
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores an entity under key with the given TTL.
func (s *CacheStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// Invalidate removes keys from the cache.
func (s *CacheStore) Invalidate(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// BikeKey is the cache key for a single bike, by code.
func BikeKey(code string) string { return bikeCachePrefix + code }

// PlansKey is the cache key for the active plan list.
func PlansKey() string { return planCachePrefix }
