// Package echo provides a testing provider that echoes back input messages.
// It implements the domain.Provider interface without making external API
// calls, giving deterministic responses and fragment streams for tests and
// local development.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emberhq/cinder/internal/domain"
	"github.com/emberhq/cinder/internal/observability"
)

const (
	providerName = "echo"
	modelName    = "echo4"
	chunkDelay   = 10 * time.Millisecond
)

// Provider implements the domain.Provider interface for echo testing.
type Provider struct {
	name            string
	supportedModels map[string]bool
}

// NewProvider creates a new echo provider.
// No configuration is required as this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{
		name: providerName,
		supportedModels: map[string]bool{
			modelName: true,
		},
	}
}

// Complete sends a completion request and returns the echoed response.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if !p.supportedModels[req.Model] {
		return nil, fmt.Errorf("model %s is not supported by echo provider", req.Model)
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	echoContent := buildEchoContent(req.Messages)

	promptTokens := countWords(echoContent)
	completionTokens := promptTokens // Echo returns same size

	return &domain.CompletionResponse{
		ID:       fmt.Sprintf("echo-%d", time.Now().UnixNano()),
		Model:    req.Model,
		Provider: p.name,
		Content:  echoContent,
		Usage: domain.TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		FinishTime: time.Now(),
	}, nil
}

// Stream sends a completion request and returns a stream of echo fragments,
// one word per fragment, followed by a final fragment carrying usage.
func (p *Provider) Stream(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.StreamFragment, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if !p.supportedModels[req.Model] {
		return nil, fmt.Errorf("model %s is not supported by echo provider", req.Model)
	}

	logger := observability.FromContext(ctx)
	logger.Debug("streaming echo request")

	echoContent := buildEchoContent(req.Messages)
	id := fmt.Sprintf("echo-%d", time.Now().UnixNano())

	fragments := make(chan domain.StreamFragment)

	go func() {
		defer close(fragments)

		words := strings.Fields(echoContent)
		for i, word := range words {
			delta := word
			if i < len(words)-1 {
				delta += " "
			}

			frag := domain.StreamFragment{
				ID:    id,
				Model: req.Model,
				Choices: []domain.FragmentChoice{
					{Index: 0, ContentDelta: delta},
				},
			}
			if i == 0 {
				frag.Choices[0].Role = "assistant"
			}

			select {
			case <-ctx.Done():
				return
			case fragments <- frag:
				time.Sleep(chunkDelay)
			}
		}

		tokens := countWords(echoContent)
		final := domain.StreamFragment{
			ID:    id,
			Model: req.Model,
			Choices: []domain.FragmentChoice{
				{Index: 0, FinishReason: "stop"},
			},
			Usage: &domain.TokenUsage{
				PromptTokens:     tokens,
				CompletionTokens: tokens,
				TotalTokens:      tokens * 2,
			},
		}

		select {
		case fragments <- final:
		case <-ctx.Done():
		}
	}()

	return fragments, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// IsModelSupported checks if the provider supports the given model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	return p.supportedModels[model]
}

// buildEchoContent constructs the echo response from request messages.
func buildEchoContent(messages []domain.Message) string {
	if len(messages) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, msg := range messages {
		builder.WriteString(fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Content))
	}
	return builder.String()
}

// countWords performs simple word-based token counting.
func countWords(content string) int {
	if content == "" {
		return 0
	}
	return len(strings.Fields(content))
}
