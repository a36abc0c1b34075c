package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LimitUnit is the unit a rate-limit quota is expressed in.
type LimitUnit string

const (
	// UnitRequest limits by request count.
	UnitRequest LimitUnit = "request"
	// UnitToken limits by token count.
	UnitToken LimitUnit = "token"
	// UnitDollar limits by spend.
	UnitDollar LimitUnit = "dollar"
)

// SegmentKeyUser is the well-known segment key resolving to the
// caller-declared user identifier.
const SegmentKeyUser = "user"

// RateLimitPolicy is a caller-declared quota over a sliding window.
// Immutable once parsed.
//
// SegmentKey, when set, names a request attribute that partitions the
// counter space; when empty the policy applies globally to the API key.
type RateLimitPolicy struct {
	Quota         uint
	WindowSeconds uint
	Unit          LimitUnit
	SegmentKey    string
}

// Window returns the policy window as a duration.
func (p RateLimitPolicy) Window() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

// ParsePolicy parses the compact wire form
// "<quota>;w=<windowSeconds>;u=<request|token|dollar>;s=<segment>".
// The u= and s= segments are optional (unit defaults to request); quota and
// window are mandatory and never guessed.
func ParsePolicy(raw string) (RateLimitPolicy, error) {
	policy := RateLimitPolicy{Unit: UnitRequest}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RateLimitPolicy{}, fmt.Errorf("%w: empty policy string", ErrInvalidPolicy)
	}

	parts := strings.Split(trimmed, ";")

	quota, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return RateLimitPolicy{}, fmt.Errorf("%w: quota %q is not a non-negative integer", ErrInvalidPolicy, parts[0])
	}
	if quota == 0 {
		return RateLimitPolicy{}, fmt.Errorf("%w: quota must be positive", ErrInvalidPolicy)
	}
	policy.Quota = uint(quota)

	seen := make(map[string]bool, len(parts)-1)
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		directive, value, found := strings.Cut(part, "=")
		if !found || value == "" {
			return RateLimitPolicy{}, fmt.Errorf("%w: malformed directive %q", ErrInvalidPolicy, part)
		}
		if seen[directive] {
			return RateLimitPolicy{}, fmt.Errorf("%w: duplicate directive %q", ErrInvalidPolicy, directive)
		}
		seen[directive] = true

		switch directive {
		case "w":
			window, parseErr := strconv.ParseUint(value, 10, 32)
			if parseErr != nil || window == 0 {
				return RateLimitPolicy{}, fmt.Errorf("%w: window %q must be a positive integer of seconds", ErrInvalidPolicy, value)
			}
			policy.WindowSeconds = uint(window)
		case "u":
			switch LimitUnit(value) {
			case UnitRequest, UnitToken, UnitDollar:
				policy.Unit = LimitUnit(value)
			default:
				return RateLimitPolicy{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidPolicy, value)
			}
		case "s":
			policy.SegmentKey = value
		default:
			return RateLimitPolicy{}, fmt.Errorf("%w: unknown directive %q", ErrInvalidPolicy, directive)
		}
	}

	if policy.WindowSeconds == 0 {
		return RateLimitPolicy{}, fmt.Errorf("%w: missing window directive w=<seconds>", ErrInvalidPolicy)
	}

	return policy, nil
}

// ResolveSegment resolves the policy's segment key against a request.
// "user" resolves to the caller-declared user identifier; any other key
// resolves to the metadata property of that name. A policy without a
// segment key yields the empty (global) segment. A named but absent value
// is a configuration error, not a throttle denial.
func ResolveSegment(policy RateLimitPolicy, req *CompletionRequest) (string, error) {
	if policy.SegmentKey == "" {
		return "", nil
	}

	if policy.SegmentKey == SegmentKeyUser {
		if req == nil || req.User == "" {
			return "", fmt.Errorf("%w: policy segments on %q but the request declares no user", ErrMissingSegment, SegmentKeyUser)
		}
		return req.User, nil
	}

	if req != nil {
		if value, ok := req.Metadata[policy.SegmentKey]; ok && value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: policy segments on property %q absent from the request", ErrMissingSegment, policy.SegmentKey)
}
