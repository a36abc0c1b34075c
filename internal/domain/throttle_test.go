package domain_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberhq/cinder/internal/domain"
)

// memoryStore is an in-memory CounterStore for testing.
type memoryStore struct {
	values   map[string][]byte
	ttls     map[string]time.Duration
	getError error
	putError error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		values: make(map[string][]byte),
		ttls:   make(map[string]time.Duration),
	}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.getError != nil {
		return nil, s.getError
	}
	return s.values[key], nil
}

func (s *memoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.putError != nil {
		return s.putError
	}
	s.values[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *memoryStore) seed(t *testing.T, key string, timestamps []int64) {
	t.Helper()
	raw, err := json.Marshal(timestamps)
	require.NoError(t, err)
	s.values[key] = raw
}

func testPolicy(quota, windowSeconds uint) domain.RateLimitPolicy {
	return domain.RateLimitPolicy{
		Quota:         quota,
		WindowSeconds: windowSeconds,
		Unit:          domain.UnitRequest,
	}
}

func TestThrottleGate_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("should admit when counter is empty", func(t *testing.T) {
		gate := domain.NewThrottleGate(newMemoryStore())

		decision, err := gate.Check(ctx, testPolicy(5, 60), "key-1", "")

		require.NoError(t, err)
		require.True(t, decision.Admit)
		require.False(t, decision.FailedOpen)
	})

	t.Run("should admit below quota", func(t *testing.T) {
		store := newMemoryStore()
		now := time.Now().UnixMilli()
		store.seed(t, "throttle:key-1", []int64{now - 1000, now - 500})
		gate := domain.NewThrottleGate(store)

		decision, err := gate.Check(ctx, testPolicy(5, 60), "key-1", "")

		require.NoError(t, err)
		require.True(t, decision.Admit)
	})

	t.Run("should deny at quota when oldest entry is still in window", func(t *testing.T) {
		store := newMemoryStore()
		now := time.Now().UnixMilli()
		timestamps := make([]int64, 5)
		for i := range timestamps {
			timestamps[i] = now - int64(5-i)*1000
		}
		store.seed(t, "throttle:key-1", timestamps)
		gate := domain.NewThrottleGate(store)

		decision, err := gate.Check(ctx, testPolicy(5, 60), "key-1", "")

		require.NoError(t, err)
		require.False(t, decision.Admit)
	})

	t.Run("should admit at quota once oldest entry leaves the window", func(t *testing.T) {
		store := newMemoryStore()
		now := time.Now().UnixMilli()
		// Oldest admission is 61 seconds old against a 60 second window.
		timestamps := []int64{now - 61_000, now - 2000, now - 1500, now - 1000, now - 500}
		store.seed(t, "throttle:key-1", timestamps)
		gate := domain.NewThrottleGate(store)

		decision, err := gate.Check(ctx, testPolicy(5, 60), "key-1", "")

		require.NoError(t, err)
		require.True(t, decision.Admit)
	})

	t.Run("should count only in-window entries when counter overshoots quota", func(t *testing.T) {
		store := newMemoryStore()
		now := time.Now().UnixMilli()
		// Seven entries total from prior races, three inside the window.
		timestamps := []int64{
			now - 120_000, now - 100_000, now - 90_000, now - 70_000,
			now - 3000, now - 2000, now - 1000,
		}
		store.seed(t, "throttle:key-1", timestamps)
		gate := domain.NewThrottleGate(store)

		decision, err := gate.Check(ctx, testPolicy(5, 60), "key-1", "")

		require.NoError(t, err)
		require.True(t, decision.Admit)
	})

	t.Run("should deny when in-window entries reach quota despite overshoot", func(t *testing.T) {
		store := newMemoryStore()
		now := time.Now().UnixMilli()
		timestamps := []int64{
			now - 120_000, now - 100_000,
			now - 5000, now - 4000, now - 3000, now - 2000, now - 1000,
		}
		store.seed(t, "throttle:key-1", timestamps)
		gate := domain.NewThrottleGate(store)

		decision, err := gate.Check(ctx, testPolicy(5, 60), "key-1", "")

		require.NoError(t, err)
		require.False(t, decision.Admit)
	})

	t.Run("should isolate counters per segment", func(t *testing.T) {
		store := newMemoryStore()
		now := time.Now().UnixMilli()
		timestamps := make([]int64, 5)
		for i := range timestamps {
			timestamps[i] = now - int64(5-i)*1000
		}
		store.seed(t, "throttle:key-1:alice", timestamps)
		gate := domain.NewThrottleGate(store)
		policy := testPolicy(5, 60)

		exhausted, err := gate.Check(ctx, policy, "key-1", "alice")
		require.NoError(t, err)
		require.False(t, exhausted.Admit)

		fresh, err := gate.Check(ctx, policy, "key-1", "bob")
		require.NoError(t, err)
		require.True(t, fresh.Admit)
	})

	t.Run("should fail open when store is unreachable", func(t *testing.T) {
		store := newMemoryStore()
		store.getError = errors.New("connection refused")
		gate := domain.NewThrottleGate(store)

		decision, err := gate.Check(ctx, testPolicy(5, 60), "key-1", "")

		require.NoError(t, err)
		require.True(t, decision.Admit)
		require.True(t, decision.FailedOpen)
	})

	t.Run("should treat corrupt counter data as empty", func(t *testing.T) {
		store := newMemoryStore()
		store.values["throttle:key-1"] = []byte("not json")
		gate := domain.NewThrottleGate(store)

		decision, err := gate.Check(ctx, testPolicy(5, 60), "key-1", "")

		require.NoError(t, err)
		require.True(t, decision.Admit)
		require.False(t, decision.FailedOpen)
	})
}

func TestThrottleGate_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("should append admission timestamp", func(t *testing.T) {
		store := newMemoryStore()
		gate := domain.NewThrottleGate(store)
		now := time.Now()

		err := gate.Record(ctx, testPolicy(5, 60), "key-1", "", now)

		require.NoError(t, err)

		var timestamps []int64
		require.NoError(t, json.Unmarshal(store.values["throttle:key-1"], &timestamps))
		require.Equal(t, []int64{now.UnixMilli()}, timestamps)
	})

	t.Run("should prune entries older than the window", func(t *testing.T) {
		store := newMemoryStore()
		now := time.Now()
		stale := now.Add(-2 * time.Minute).UnixMilli()
		recent := now.Add(-10 * time.Second).UnixMilli()
		store.seed(t, "throttle:key-1", []int64{stale, recent})
		gate := domain.NewThrottleGate(store)

		err := gate.Record(ctx, testPolicy(5, 60), "key-1", "", now)

		require.NoError(t, err)

		var timestamps []int64
		require.NoError(t, json.Unmarshal(store.values["throttle:key-1"], &timestamps))
		require.Equal(t, []int64{recent, now.UnixMilli()}, timestamps)
	})

	t.Run("should set expiry to the policy window", func(t *testing.T) {
		store := newMemoryStore()
		gate := domain.NewThrottleGate(store)

		err := gate.Record(ctx, testPolicy(5, 60), "key-1", "", time.Now())

		require.NoError(t, err)
		require.Equal(t, 60*time.Second, store.ttls["throttle:key-1"])
	})

	t.Run("should use segmented key when segment is set", func(t *testing.T) {
		store := newMemoryStore()
		gate := domain.NewThrottleGate(store)

		err := gate.Record(ctx, testPolicy(5, 60), "key-1", "alice", time.Now())

		require.NoError(t, err)
		require.Contains(t, store.values, "throttle:key-1:alice")
	})

	t.Run("should return error when store write fails", func(t *testing.T) {
		store := newMemoryStore()
		store.putError = errors.New("write failed")
		gate := domain.NewThrottleGate(store)

		err := gate.Record(ctx, testPolicy(5, 60), "key-1", "", time.Now())

		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to write counter")
	})
}

func TestThrottleGate_SlidingWindow(t *testing.T) {
	t.Run("should deny sixth request and admit after window passes", func(t *testing.T) {
		ctx := context.Background()
		store := newMemoryStore()
		gate := domain.NewThrottleGate(store)
		policy := testPolicy(5, 60)
		start := time.Now().Add(-2 * time.Second)

		for i := 0; i < 5; i++ {
			decision, err := gate.Check(ctx, policy, "key-1", "")
			require.NoError(t, err)
			require.True(t, decision.Admit)
			require.NoError(t, gate.Record(ctx, policy, "key-1", "", start.Add(time.Duration(i)*100*time.Millisecond)))
		}

		denied, err := gate.Check(ctx, policy, "key-1", "")
		require.NoError(t, err)
		require.False(t, denied.Admit)

		// Simulate the same counter 61 seconds later by rewinding the
		// recorded admissions past the window edge.
		var timestamps []int64
		require.NoError(t, json.Unmarshal(store.values["throttle:key-1"], &timestamps))
		for i := range timestamps {
			timestamps[i] -= 61_000
		}
		store.seed(t, "throttle:key-1", timestamps)

		admitted, err := gate.Check(ctx, policy, "key-1", "")
		require.NoError(t, err)
		require.True(t, admitted.Admit)
	})
}
