package pricing

import "github.com/shopspring/decimal"

// Built-in token rates, per single token. Specific matchers come before
// general fallbacks; declaration order is the match precedence.
const (
	gpt4PromptRate     = 0.00003
	gpt4CompletionRate = 0.00006

	gpt4TurboPromptRate     = 0.00001
	gpt4TurboCompletionRate = 0.00003

	gpt4oPromptRate     = 0.0000025
	gpt4oCompletionRate = 0.00001
	gpt4oCacheReadRate  = 0.00000125

	gptFallbackPromptRate     = 0.0000005
	gptFallbackCompletionRate = 0.0000015
)

const defaultFreeTierRequests = 10_000

// DefaultCatalog returns the built-in catalog used when no catalog file is
// configured. It covers the bundled providers and a requests tier schedule
// with a free band.
func DefaultCatalog() (*Catalog, error) {
	cacheRead := gpt4oCacheReadRate

	providers := map[string][]Entry{
		"openai": {
			{
				Match:               ModelMatcher{Operator: OperatorEquals, Value: "gpt-4"},
				PromptTokenRate:     gpt4PromptRate,
				CompletionTokenRate: gpt4CompletionRate,
			},
			{
				Match:               ModelMatcher{Operator: OperatorEquals, Value: "gpt-4-turbo"},
				PromptTokenRate:     gpt4TurboPromptRate,
				CompletionTokenRate: gpt4TurboCompletionRate,
			},
			{
				Match:               ModelMatcher{Operator: OperatorStartsWith, Value: "gpt-4o"},
				PromptTokenRate:     gpt4oPromptRate,
				CompletionTokenRate: gpt4oCompletionRate,
				CacheReadTokenRate:  &cacheRead,
			},
			{
				Match:               ModelMatcher{Operator: OperatorStartsWith, Value: "gpt-"},
				PromptTokenRate:     gptFallbackPromptRate,
				CompletionTokenRate: gptFallbackCompletionRate,
			},
		},
		"echo": {
			{
				Match: ModelMatcher{Operator: OperatorIncludes, Value: "echo"},
			},
		},
	}

	tiers := map[string]TierSchedule{
		"requests": {
			{UpperBound: defaultFreeTierRequests, Rate: decimal.Zero, Label: "free"},
			{Unbounded: true, Rate: decimal.NewFromFloat(0.0004), Label: "standard"},
		},
	}

	return NewCatalog("builtin", providers, tiers)
}
