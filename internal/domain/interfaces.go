package domain

import (
	"context"
	"time"
)

// Provider represents any LLM provider.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Stream sends a completion request and returns decoded fragments in
	// emission order. The channel is closed when the upstream stream ends.
	Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamFragment, error)

	// Name returns the provider identifier.
	Name() string

	// IsModelSupported checks if the provider supports the given model.
	IsModelSupported(ctx context.Context, model string) bool
}

// ProviderRegistry manages available providers. Lookup is by name only:
// the caller names the provider, and there is no cross-provider fallback.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(ctx context.Context, provider Provider) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, providerName string) (Provider, error)

	// List returns all available provider names.
	List(ctx context.Context) ([]string, error)
}

// CounterStore is the durable, TTL'd key/value store behind the throttle
// gate. It is shared across gateway instances, eventually consistent, and
// non-transactional; reads and writes are independent round trips.
type CounterStore interface {
	// Get returns the stored value for key, or (nil, nil) when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key with the given expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// TokenCounter counts tokens in text when the provider did not report usage.
// Implementations must honor context cancellation and deadlines.
type TokenCounter interface {
	// CountTokens returns the token count for text.
	CountTokens(ctx context.Context, text, model string) (int, error)
}

// CostResolver prices a request against the pricing catalog.
type CostResolver interface {
	// Resolve returns the monetary cost for usage of a model on a provider
	// at the given time. Returns ErrNoPricing when no catalog entry matches.
	Resolve(ctx context.Context, providerID, model string, usage TokenUsage, at time.Time) (float64, error)

	// Version returns the loaded catalog version for audit.
	Version() string
}

// BillingPublisher hands billing records to the durable logging pipeline.
// Publication is fire-and-forget: failures are logged, never surfaced.
type BillingPublisher interface {
	// Publish enqueues one billing record.
	Publish(ctx context.Context, record *BillingRecord) error

	// Depth returns the approximate queue depth.
	Depth(ctx context.Context) (int64, error)
}

// CongestionSignal exposes the degraded state of the billing queue.
type CongestionSignal interface {
	// Degraded reports whether the billing queue is congested.
	Degraded() bool
}
