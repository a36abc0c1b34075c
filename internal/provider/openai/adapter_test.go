package openai_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberhq/cinder/internal/provider/openai"
)

func TestNewProvider_Success(t *testing.T) {
	config := openai.Config{
		APIKey:     "test-api-key",
		BaseURL:    "https://api.openai.com/v1",
		Timeout:    60,
		MaxRetries: 3,
	}

	provider, err := openai.NewProvider(config)

	require.NoError(t, err)
	require.NotNil(t, provider)
	require.Equal(t, "openai", provider.Name())
}

func TestNewProvider_MissingAPIKey(t *testing.T) {
	config := openai.Config{
		APIKey:     "",
		BaseURL:    "https://api.openai.com/v1",
		Timeout:    60,
		MaxRetries: 3,
	}

	provider, err := openai.NewProvider(config)

	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "OpenAI API key is required")
}

func TestComplete_NilRequest(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-api-key"})
	require.NoError(t, err)

	resp, err := provider.Complete(context.Background(), nil)

	require.Error(t, err)
	require.Nil(t, resp)
	require.Contains(t, err.Error(), "request cannot be nil")
}

func TestStream_NilRequest(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-api-key"})
	require.NoError(t, err)

	fragments, err := provider.Stream(context.Background(), nil)

	require.Error(t, err)
	require.Nil(t, fragments)
	require.Contains(t, err.Error(), "request cannot be nil")
}

func TestIsModelSupported(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-api-key"})
	require.NoError(t, err)

	ctx := context.Background()

	require.True(t, provider.IsModelSupported(ctx, "gpt-4o"))
	require.True(t, provider.IsModelSupported(ctx, "gpt-4-turbo"))
	require.True(t, provider.IsModelSupported(ctx, "o3-mini"))
	require.False(t, provider.IsModelSupported(ctx, "claude-3"))
	require.False(t, provider.IsModelSupported(ctx, "echo4"))
}
