package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPolicy indicates a malformed rate-limit policy string.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")

	// ErrMissingSegment indicates the policy names a segment key the request
	// does not carry. This is a caller configuration error, not a denial.
	ErrMissingSegment = errors.New("missing rate limit segment value")

	// ErrRateLimited indicates the throttle gate denied the request.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrModelNotSupported indicates the named provider does not serve the
	// requested model.
	ErrModelNotSupported = errors.New("model not supported by provider")

	// ErrMalformedStream indicates a fragment referenced an index gap.
	// Reduction aborts; data folded before the gap is kept for billing.
	ErrMalformedStream = errors.New("malformed stream")

	// ErrNoPricing indicates no catalog entry matched. Callers must treat the
	// request as unpriced, never as zero cost.
	ErrNoPricing = errors.New("no pricing entry matched")
)

// ThrottleDeniedError is a throttle denial carrying the policy window, so
// transports can tell the caller when a retry may succeed. It unwraps to
// ErrRateLimited.
type ThrottleDeniedError struct {
	Scope         string
	WindowSeconds uint
}

func (e *ThrottleDeniedError) Error() string {
	return fmt.Sprintf("rate limit exceeded: scope %s", e.Scope)
}

func (e *ThrottleDeniedError) Unwrap() error {
	return ErrRateLimited
}
