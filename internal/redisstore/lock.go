package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireBikeLock attempts to take the unlock lock for a bike, so two riders
// scanning the same bike at once don't both reach the database transaction.
// Returns true if the lock was acquired, false if already held.
func (s *LockStore) AcquireBikeLock(ctx context.Context, bikeCode string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:bike:%s", bikeCode)

	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleaseBikeLock releases the unlock lock for a bike.
func (s *LockStore) ReleaseBikeLock(ctx context.Context, bikeCode string) error {
	key := fmt.Sprintf("lock:bike:%s", bikeCode)

	return s.client.Del(ctx, key).Err()
}
