package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/emberhq/cinder/internal/domain"
)

// Resolver prices token usage against the catalog.
type Resolver struct {
	catalog *Catalog
}

// NewResolver creates a cost resolver over a loaded catalog.
func NewResolver(catalog *Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Version returns the loaded catalog version.
func (r *Resolver) Version() string {
	return r.catalog.Version()
}

// Resolve scans the named provider's entry list in declared order and prices
// usage against the first entry whose matcher is satisfied and whose date
// range covers the request time. Declared order is the sole tie-break; an
// entry is never skipped in favor of a more specific later one. Only the
// named provider's catalog is consulted - falling back to another provider
// would misprice the request. Returns ErrNoPricing when nothing matches.
func (r *Resolver) Resolve(
	_ context.Context,
	providerID string,
	model string,
	usage domain.TokenUsage,
	at time.Time,
) (float64, error) {
	entries := r.catalog.Entries(providerID)
	if len(entries) == 0 {
		return 0, fmt.Errorf("%w: provider %s has no catalog", domain.ErrNoPricing, providerID)
	}

	for _, entry := range entries {
		if !entry.Match.Matches(model) {
			continue
		}
		if !entry.EffectiveAt(at) {
			// Out-of-range entries are treated as non-matching; the scan
			// continues to later entries.
			continue
		}
		return cost(entry, usage), nil
	}

	return 0, fmt.Errorf("%w: provider %s model %s", domain.ErrNoPricing, providerID, model)
}

func cost(entry Entry, usage domain.TokenUsage) float64 {
	total := float64(usage.PromptTokens)*entry.PromptTokenRate +
		float64(usage.CompletionTokens)*entry.CompletionTokenRate

	if entry.CacheReadTokenRate != nil && usage.CacheReadTokens > 0 {
		total += float64(usage.CacheReadTokens) * *entry.CacheReadTokenRate
	}
	if entry.CacheWriteTokenRate != nil && usage.CacheWriteTokens > 0 {
		total += float64(usage.CacheWriteTokens) * *entry.CacheWriteTokenRate
	}
	if entry.PerImage != nil && usage.Images > 0 {
		total += float64(usage.Images) * *entry.PerImage
	}
	if entry.PerCall != nil && usage.Calls > 0 {
		total += float64(usage.Calls) * *entry.PerCall
	}

	return total
}
