package echo_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberhq/cinder/internal/domain"
	"github.com/emberhq/cinder/internal/provider/echo"
)

func TestNewProvider(t *testing.T) {
	provider := echo.NewProvider()

	require.NotNil(t, provider)
	require.Equal(t, "echo", provider.Name())
}

func TestComplete_Success(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	req := &domain.CompletionRequest{
		Model: "echo4",
		Messages: []domain.Message{
			{Role: "user", Content: "Hello world"},
		},
	}

	resp, err := provider.Complete(ctx, req)

	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, "echo4", resp.Model)
	require.Equal(t, "echo", resp.Provider)
	require.Equal(t, "[user]: Hello world\n", resp.Content)
	require.Equal(t, 3, resp.Usage.PromptTokens)     // "[user]:" "Hello" "world" = 3 words
	require.Equal(t, 3, resp.Usage.CompletionTokens) // Same as input
	require.Equal(t, 6, resp.Usage.TotalTokens)
	require.NotEmpty(t, resp.ID)
}

func TestComplete_NilRequest(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	resp, err := provider.Complete(ctx, nil)

	require.Error(t, err)
	require.Nil(t, resp)
	require.Contains(t, err.Error(), "request cannot be nil")
}

func TestComplete_UnsupportedModel(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	req := &domain.CompletionRequest{
		Model: "gpt-4",
		Messages: []domain.Message{
			{Role: "user", Content: "Hello"},
		},
	}

	resp, err := provider.Complete(ctx, req)

	require.Error(t, err)
	require.Nil(t, resp)
	require.Contains(t, err.Error(), "not supported")
}

func TestComplete_EmptyMessages(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	req := &domain.CompletionRequest{
		Model:    "echo4",
		Messages: []domain.Message{},
	}

	resp, err := provider.Complete(ctx, req)

	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Empty(t, resp.Content)
	require.Equal(t, 0, resp.Usage.TotalTokens)
}

func TestStream_Success(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	req := &domain.CompletionRequest{
		Model: "echo4",
		Messages: []domain.Message{
			{Role: "user", Content: "Hello world"},
		},
	}

	fragments, err := provider.Stream(ctx, req)

	require.NoError(t, err)
	require.NotNil(t, fragments)

	var builder strings.Builder
	var usage *domain.TokenUsage
	var finishReason string

	for frag := range fragments {
		require.NoError(t, frag.Err)
		for _, choice := range frag.Choices {
			builder.WriteString(choice.ContentDelta)
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}
		if frag.Usage != nil {
			usage = frag.Usage
		}
	}

	require.Equal(t, "[user]: Hello world", builder.String())
	require.Equal(t, "stop", finishReason)
	require.NotNil(t, usage)
	require.Equal(t, 3, usage.PromptTokens)
	require.Equal(t, 6, usage.TotalTokens)
}

func TestStream_ReducerReconstruction(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	req := &domain.CompletionRequest{
		Model: "echo4",
		Messages: []domain.Message{
			{Role: "user", Content: "Hello world"},
		},
	}

	fragments, err := provider.Stream(ctx, req)
	require.NoError(t, err)

	reducer := domain.NewStreamReducer("echo", req, nil, 0)
	for frag := range fragments {
		require.NoError(t, reducer.Fold(frag))
	}

	resp := reducer.Finalize(ctx)
	require.Equal(t, "[user]: Hello world", resp.Content())
	require.Equal(t, "echo4", resp.Model)
	require.Equal(t, 6, resp.Usage.TotalTokens)
	require.False(t, resp.Usage.Estimated)
}

func TestStream_NilRequest(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	fragments, err := provider.Stream(ctx, nil)

	require.Error(t, err)
	require.Nil(t, fragments)
	require.Contains(t, err.Error(), "request cannot be nil")
}

func TestStream_UnsupportedModel(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	req := &domain.CompletionRequest{
		Model: "gpt-4",
		Messages: []domain.Message{
			{Role: "user", Content: "Hello"},
		},
	}

	fragments, err := provider.Stream(ctx, req)

	require.Error(t, err)
	require.Nil(t, fragments)
	require.Contains(t, err.Error(), "not supported")
}

func TestStream_ContextCancellation(t *testing.T) {
	provider := echo.NewProvider()
	ctx, cancel := context.WithCancel(context.Background())

	req := &domain.CompletionRequest{
		Model: "echo4",
		Messages: []domain.Message{
			{Role: "user", Content: "This is a longer message for testing cancellation"},
		},
	}

	fragments, err := provider.Stream(ctx, req)

	require.NoError(t, err)
	require.NotNil(t, fragments)

	// Cancel after receiving the first fragment; the channel must close.
	<-fragments
	cancel()

	for range fragments {
	}
}

func TestIsModelSupported(t *testing.T) {
	provider := echo.NewProvider()
	ctx := context.Background()

	require.True(t, provider.IsModelSupported(ctx, "echo4"))
	require.False(t, provider.IsModelSupported(ctx, "gpt-4"))
	require.False(t, provider.IsModelSupported(ctx, "echo3"))
	require.False(t, provider.IsModelSupported(ctx, ""))
}
