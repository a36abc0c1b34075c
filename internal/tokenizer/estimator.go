// Package tokenizer provides a character-ratio token estimator used when a
// provider does not report authoritative usage. Estimates land within a few
// percent for latin-script text, which is good enough for billing fallback;
// exact model tokenizers can replace this behind the same interface.
package tokenizer

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultCharsPerToken = 4.0
	cjkCharsPerToken     = 1.5
)

// Estimator implements domain.TokenCounter with model-aware character
// ratios. It performs no I/O; context cancellation is still honored so a
// caller-imposed deadline behaves the same as it would against a remote
// tokenizer service.
type Estimator struct {
	charsPerToken float64
}

// NewEstimator creates an estimator. A non-positive ratio falls back to the
// default of four characters per token.
func NewEstimator(charsPerToken float64) *Estimator {
	if charsPerToken <= 0 {
		charsPerToken = defaultCharsPerToken
	}
	return &Estimator{charsPerToken: charsPerToken}
}

// CountTokens returns the estimated token count for text.
func (e *Estimator) CountTokens(ctx context.Context, text, model string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("token counting aborted: %w", err)
	}

	if text == "" {
		return 0, nil
	}

	ratio := e.charsPerToken
	if isDenseScript(text) {
		ratio = cjkCharsPerToken
	}

	runes := len([]rune(text))
	tokens := int(float64(runes)/ratio + 0.5)
	if tokens < 1 {
		// Non-empty text is never zero tokens.
		tokens = 1
	}

	return tokens, nil
}

// isDenseScript reports whether the text is dominated by scripts that
// tokenize close to one token per character.
func isDenseScript(text string) bool {
	var dense, total int
	for _, r := range text {
		if strings.ContainsRune(" \t\n", r) {
			continue
		}
		total++
		if r >= 0x2E80 && r <= 0x9FFF || r >= 0xAC00 && r <= 0xD7AF {
			dense++
		}
	}
	return total > 0 && dense*2 > total
}
