package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/emberhq/cinder/internal/observability"
)

const throttleKeyPrefix = "throttle"

// Decision is the outcome of a throttle check.
type Decision struct {
	Admit bool
	// FailedOpen marks admissions granted because the counter store was
	// unreachable rather than because the quota allowed them.
	FailedOpen bool
}

// ThrottleGate enforces sliding-window admission over an external counter
// store. The store holds every admission timestamp inside the trailing
// window per scope+segment, oldest first.
//
// The store is eventually consistent and non-transactional: concurrent
// check/record pairs from different gateway instances can race and briefly
// overshoot the quota. That is accepted; the gate must never serialize
// admission behind a lock and must never block the gateway when the store
// misbehaves.
type ThrottleGate struct {
	store CounterStore
}

// NewThrottleGate creates a throttle gate over the given counter store.
func NewThrottleGate(store CounterStore) *ThrottleGate {
	return &ThrottleGate{store: store}
}

// Check decides admit/deny for a request under the policy. It is read-only
// and does not mutate the counter. If the store is unreachable the check
// fails open: the request is admitted and the fault is logged.
func (g *ThrottleGate) Check(
	ctx context.Context,
	policy RateLimitPolicy,
	scope string,
	segment string,
) (Decision, error) {
	logger := observability.FromContext(ctx)

	timestamps, err := g.load(ctx, counterKey(scope, segment))
	if err != nil {
		logger.Warn("counter store unreachable, failing open",
			observability.Error(err))
		return Decision{Admit: true, FailedOpen: true}, nil
	}

	now := time.Now()
	cutoff := now.Add(-policy.Window()).UnixMilli()
	quota := int(policy.Quota)

	switch {
	case len(timestamps) < quota:
		return Decision{Admit: true}, nil
	case len(timestamps) == quota:
		// Steady state: only the oldest entry can make room.
		return Decision{Admit: timestamps[0] <= cutoff}, nil
	default:
		// Prior races left more entries than the quota; count only those
		// still inside the window.
		first := sort.Search(len(timestamps), func(i int) bool {
			return timestamps[i] > cutoff
		})
		inWindow := len(timestamps) - first
		return Decision{Admit: inWindow < quota}, nil
	}
}

// Record appends an admission timestamp for the scope+segment and prunes
// entries older than the window. Called only after the request was actually
// admitted and forwarded; an admitted-then-cancelled request still counts.
func (g *ThrottleGate) Record(
	ctx context.Context,
	policy RateLimitPolicy,
	scope string,
	segment string,
	now time.Time,
) error {
	key := counterKey(scope, segment)

	timestamps, err := g.load(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load counter %s: %w", key, err)
	}

	cutoff := now.Add(-policy.Window()).UnixMilli()
	pruned := make([]int64, 0, len(timestamps)+1)
	for _, ts := range timestamps {
		if ts > cutoff {
			pruned = append(pruned, ts)
		}
	}
	pruned = append(pruned, now.UnixMilli())

	value, err := json.Marshal(pruned)
	if err != nil {
		return fmt.Errorf("failed to encode counter %s: %w", key, err)
	}

	// Expiry equals the window so abandoned keys self-clean.
	if err := g.store.Put(ctx, key, value, policy.Window()); err != nil {
		return fmt.Errorf("failed to write counter %s: %w", key, err)
	}

	return nil
}

// load reads and decodes the admission timestamp list for key. A missing
// key yields an empty list; corrupt data is treated as empty after a
// warning, since refusing traffic over a bad counter value is worse than
// briefly over-admitting.
func (g *ThrottleGate) load(ctx context.Context, key string) ([]int64, error) {
	raw, err := g.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var timestamps []int64
	if err := json.Unmarshal(raw, &timestamps); err != nil {
		observability.FromContext(ctx).Warn("discarding corrupt throttle counter",
			observability.String("key", key),
			observability.Error(err))
		return nil, nil
	}
	return timestamps, nil
}

func counterKey(scope, segment string) string {
	if segment == "" {
		return fmt.Sprintf("%s:%s", throttleKeyPrefix, scope)
	}
	return fmt.Sprintf("%s:%s:%s", throttleKeyPrefix, scope, segment)
}
