// Package redis adapts go-redis to the domain CounterStore interface used
// by the throttle gate. The store is accessed at most twice per request:
// one read in Check, one read+write in Record. No transactions are used;
// the gate's sliding-window algorithm tolerates the resulting races.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore implements domain.CounterStore on a Redis client.
type CounterStore struct {
	client *redis.Client
}

// NewCounterStore creates a Redis-backed counter store.
func NewCounterStore(client *redis.Client) *CounterStore {
	return &CounterStore{client: client}
}

// Get returns the stored value for key, or (nil, nil) when the key is
// absent or expired.
func (s *CounterStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// Put stores value under key with the given expiry.
func (s *CounterStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
