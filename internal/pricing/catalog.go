// Package pricing holds the static cost-rule catalog and the resolver that
// prices token usage against it. The catalog is loaded once at startup and
// read-only afterwards, so it is shared across requests without locking.
package pricing

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// MatchOperator is the comparison rule deciding whether an entry applies to
// a model name.
type MatchOperator string

const (
	// OperatorEquals matches the model name exactly.
	OperatorEquals MatchOperator = "equals"
	// OperatorStartsWith matches a model name prefix.
	OperatorStartsWith MatchOperator = "startsWith"
	// OperatorIncludes matches a model name substring.
	OperatorIncludes MatchOperator = "includes"
)

// ModelMatcher pairs an operator with its comparison value.
type ModelMatcher struct {
	Operator MatchOperator
	Value    string
}

// Matches reports whether the matcher applies to the model name.
func (m ModelMatcher) Matches(model string) bool {
	switch m.Operator {
	case OperatorEquals:
		return model == m.Value
	case OperatorStartsWith:
		return strings.HasPrefix(model, m.Value)
	case OperatorIncludes:
		return strings.Contains(model, m.Value)
	default:
		return false
	}
}

// Entry is one cost rule. All token rates are per single token; per-million
// presentation is a display concern elsewhere. Optional rates are nil when
// the entry does not define them.
type Entry struct {
	Match               ModelMatcher
	PromptTokenRate     float64
	CompletionTokenRate float64
	CacheReadTokenRate  *float64
	CacheWriteTokenRate *float64
	PerImage            *float64
	PerCall             *float64
	EffectiveFrom       *time.Time
	EffectiveUntil      *time.Time
}

// EffectiveAt reports whether the entry's date range covers the instant.
// Entries without a range are always effective.
func (e Entry) EffectiveAt(at time.Time) bool {
	if e.EffectiveFrom != nil && at.Before(*e.EffectiveFrom) {
		return false
	}
	if e.EffectiveUntil != nil && !at.Before(*e.EffectiveUntil) {
		return false
	}
	return true
}

// Catalog is the versioned pricing table: per-provider ordered entry lists
// plus named tier schedules. Entry order encodes match precedence - provider
// catalogs list specific matchers before general fallbacks, and the first
// match always wins.
type Catalog struct {
	version   string
	providers map[string][]Entry
	tiers     map[string]TierSchedule
}

// NewCatalog builds and validates a catalog. Invalid entries and schedules
// are load-time failures, never request-time ones.
func NewCatalog(version string, providers map[string][]Entry, tiers map[string]TierSchedule) (*Catalog, error) {
	for providerID, entries := range providers {
		if len(entries) == 0 {
			return nil, fmt.Errorf("provider %s has no pricing entries", providerID)
		}
		for i, entry := range entries {
			if err := validateEntry(entry); err != nil {
				return nil, fmt.Errorf("provider %s entry %d: %w", providerID, i, err)
			}
		}
	}

	for name, schedule := range tiers {
		if err := schedule.Validate(); err != nil {
			return nil, fmt.Errorf("tier schedule %s: %w", name, err)
		}
	}

	return &Catalog{
		version:   version,
		providers: providers,
		tiers:     tiers,
	}, nil
}

// Version returns the catalog version string.
func (c *Catalog) Version() string {
	return c.version
}

// Entries returns the ordered entry list for a provider, nil when the
// provider has no catalog. Only the named provider's list is ever consulted.
func (c *Catalog) Entries(providerID string) []Entry {
	return c.providers[providerID]
}

// Tiers returns the named tier schedule.
func (c *Catalog) Tiers(name string) (TierSchedule, bool) {
	schedule, ok := c.tiers[name]
	return schedule, ok
}

func validateEntry(entry Entry) error {
	switch entry.Match.Operator {
	case OperatorEquals, OperatorStartsWith, OperatorIncludes:
	default:
		return fmt.Errorf("unknown match operator %q", entry.Match.Operator)
	}
	if entry.Match.Value == "" {
		return fmt.Errorf("empty match value")
	}

	rates := map[string]float64{
		"prompt_token_rate":     entry.PromptTokenRate,
		"completion_token_rate": entry.CompletionTokenRate,
	}
	if entry.CacheReadTokenRate != nil {
		rates["cache_read_token_rate"] = *entry.CacheReadTokenRate
	}
	if entry.CacheWriteTokenRate != nil {
		rates["cache_write_token_rate"] = *entry.CacheWriteTokenRate
	}
	if entry.PerImage != nil {
		rates["per_image"] = *entry.PerImage
	}
	if entry.PerCall != nil {
		rates["per_call"] = *entry.PerCall
	}
	for name, rate := range rates {
		if rate < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	if entry.EffectiveFrom != nil && entry.EffectiveUntil != nil &&
		!entry.EffectiveFrom.Before(*entry.EffectiveUntil) {
		return fmt.Errorf("effective_from must precede effective_until")
	}

	return nil
}

// catalogFile is the YAML shape of a catalog document.
type catalogFile struct {
	Version   string                 `yaml:"version"`
	Providers map[string][]entryFile `yaml:"providers"`
	Tiers     map[string][]tierFile  `yaml:"tiers"`
}

type entryFile struct {
	Match struct {
		Operator string `yaml:"operator"`
		Value    string `yaml:"value"`
	} `yaml:"match"`
	PromptTokenRate     float64  `yaml:"prompt_token_rate"`
	CompletionTokenRate float64  `yaml:"completion_token_rate"`
	CacheReadTokenRate  *float64 `yaml:"cache_read_token_rate"`
	CacheWriteTokenRate *float64 `yaml:"cache_write_token_rate"`
	PerImage            *float64 `yaml:"per_image"`
	PerCall             *float64 `yaml:"per_call"`
	EffectiveFrom       string   `yaml:"effective_from"`
	EffectiveUntil      string   `yaml:"effective_until"`
}

type tierFile struct {
	UpperBound *int64 `yaml:"upper_bound"`
	Rate       string `yaml:"rate"`
	Label      string `yaml:"label"`
}

// LoadCatalog reads and validates a catalog YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes and validates a catalog YAML document.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	providers := make(map[string][]Entry, len(file.Providers))
	for providerID, entryFiles := range file.Providers {
		entries := make([]Entry, 0, len(entryFiles))
		for i, ef := range entryFiles {
			entry, convErr := ef.toEntry()
			if convErr != nil {
				return nil, fmt.Errorf("provider %s entry %d: %w", providerID, i, convErr)
			}
			entries = append(entries, entry)
		}
		providers[providerID] = entries
	}

	tiers := make(map[string]TierSchedule, len(file.Tiers))
	for name, tierFiles := range file.Tiers {
		schedule := make(TierSchedule, 0, len(tierFiles))
		for i, tf := range tierFiles {
			rate, rateErr := decimal.NewFromString(tf.Rate)
			if rateErr != nil {
				return nil, fmt.Errorf("tier schedule %s band %d: bad rate %q: %w", name, i, tf.Rate, rateErr)
			}
			tier := Tier{Rate: rate, Label: tf.Label, Unbounded: tf.UpperBound == nil}
			if tf.UpperBound != nil {
				tier.UpperBound = *tf.UpperBound
			}
			schedule = append(schedule, tier)
		}
		tiers[name] = schedule
	}

	return NewCatalog(file.Version, providers, tiers)
}

func (ef entryFile) toEntry() (Entry, error) {
	entry := Entry{
		Match: ModelMatcher{
			Operator: MatchOperator(ef.Match.Operator),
			Value:    ef.Match.Value,
		},
		PromptTokenRate:     ef.PromptTokenRate,
		CompletionTokenRate: ef.CompletionTokenRate,
		CacheReadTokenRate:  ef.CacheReadTokenRate,
		CacheWriteTokenRate: ef.CacheWriteTokenRate,
		PerImage:            ef.PerImage,
		PerCall:             ef.PerCall,
	}

	if ef.EffectiveFrom != "" {
		from, err := parseCatalogTime(ef.EffectiveFrom)
		if err != nil {
			return Entry{}, fmt.Errorf("bad effective_from: %w", err)
		}
		entry.EffectiveFrom = &from
	}
	if ef.EffectiveUntil != "" {
		until, err := parseCatalogTime(ef.EffectiveUntil)
		if err != nil {
			return Entry{}, fmt.Errorf("bad effective_until: %w", err)
		}
		entry.EffectiveUntil = &until
	}

	return entry, nil
}

func parseCatalogTime(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	ts, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor YYYY-MM-DD", value)
	}
	return ts, nil
}
