// Package openai provides an adapter for the OpenAI API using the official
// SDK. It implements the domain.Provider interface and converts SDK chunk
// deltas into domain stream fragments, preserving tool-call indices and
// usage so the reducer can reconstruct and bill streamed responses.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/emberhq/cinder/internal/domain"
	"github.com/emberhq/cinder/internal/observability"
)

// Provider implements the domain.Provider interface for OpenAI.
type Provider struct {
	client openai.Client
	name   string
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	if config.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	return &Provider{
		client: openai.NewClient(opts...),
		name:   "openai",
	}, nil
}

// Complete sends a completion request and returns the full response.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API")

	params := p.toSDKParams(req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("OpenAI API call failed", observability.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	logger.Debug("OpenAI API call succeeded",
		observability.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		observability.Int("completion_tokens", int(resp.Usage.CompletionTokens)),
	)

	return p.toDomainResponse(resp), nil
}

// Stream sends a completion request and returns decoded fragments. Usage is
// requested on the final chunk so billing gets authoritative counts.
func (p *Provider) Stream(ctx context.Context, req *domain.CompletionRequest) (<-chan domain.StreamFragment, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI streaming API")

	params := p.toSDKParams(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	fragments := make(chan domain.StreamFragment)

	go func() {
		defer close(fragments)
		defer logger.Debug("OpenAI stream completed")

		for stream.Next() {
			chunk := stream.Current()

			select {
			case fragments <- toFragment(chunk):
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			select {
			case fragments <- domain.StreamFragment{Err: fmt.Errorf("OpenAI stream error: %w", err)}:
			case <-ctx.Done():
			}
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
	return strings.HasPrefix(model, "gpt-") || strings.HasPrefix(model, "o")
}

// toFragment converts one SDK chunk to a domain fragment, keeping choice
// and tool-call indices exactly as emitted.
func toFragment(chunk openai.ChatCompletionChunk) domain.StreamFragment {
	frag := domain.StreamFragment{
		ID:    chunk.ID,
		Model: chunk.Model,
	}

	for _, choice := range chunk.Choices {
		fc := domain.FragmentChoice{
			Index:        int(choice.Index),
			Role:         choice.Delta.Role,
			ContentDelta: choice.Delta.Content,
			FinishReason: choice.FinishReason,
		}

		for _, call := range choice.Delta.ToolCalls {
			fc.ToolCalls = append(fc.ToolCalls, domain.ToolCallDelta{
				Index:          int(call.Index),
				ID:             call.ID,
				Name:           call.Function.Name,
				ArgumentsDelta: call.Function.Arguments,
			})
		}

		frag.Choices = append(frag.Choices, fc)
	}

	// The SDK reports usage on the final chunk when stream options ask for
	// it; a zero-valued usage struct means "not present on this chunk".
	if chunk.Usage.TotalTokens > 0 {
		frag.Usage = &domain.TokenUsage{
			PromptTokens:     int(chunk.Usage.PromptTokens),
			CompletionTokens: int(chunk.Usage.CompletionTokens),
			TotalTokens:      int(chunk.Usage.TotalTokens),
			CacheReadTokens:  int(chunk.Usage.PromptTokensDetails.CachedTokens),
		}
	}

	return frag
}

// toSDKParams converts domain request to SDK ChatCompletionNewParams.
func (p *Provider) toSDKParams(req *domain.CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, len(req.Messages))
	for i, msg := range req.Messages {
		switch msg.Role {
		case "user":
			messages[i] = openai.UserMessage(msg.Content)
		case "assistant":
			messages[i] = openai.AssistantMessage(msg.Content)
		case "system":
			messages[i] = openai.SystemMessage(msg.Content)
		default:
			// Fallback to user message if role is unknown
			messages[i] = openai.UserMessage(msg.Content)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if req.User != "" {
		params.User = openai.String(req.User)
	}

	return params
}

// toDomainResponse converts SDK response to domain response. Cost is left
// unset; pricing belongs to the resolver, not the adapter.
func (p *Provider) toDomainResponse(resp *openai.ChatCompletion) *domain.CompletionResponse {
	content := ""
	var toolCalls []domain.ToolCall
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		for _, call := range resp.Choices[0].Message.ToolCalls {
			toolCalls = append(toolCalls, domain.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
	}

	return &domain.CompletionResponse{
		ID:        resp.ID,
		Model:     string(resp.Model),
		Provider:  p.name,
		Content:   content,
		ToolCalls: toolCalls,
		Usage: domain.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
			CacheReadTokens:  int(resp.Usage.PromptTokensDetails.CachedTokens),
		},
		FinishTime: time.Now(),
	}
}
