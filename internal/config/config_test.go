package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberhq/cinder/internal/config"
)

func TestLoad(t *testing.T) {
	t.Run("should load config with defaults", func(t *testing.T) {
		// Clear environment
		os.Clearenv()

		cfg := config.Load()

		require.NotNil(t, cfg)

		// Verify defaults
		require.Equal(t, 8080, cfg.Server.Port)
		require.Equal(t, 30, cfg.Server.ReadTimeout)
		require.Equal(t, 300, cfg.Server.WriteTimeout)
		require.Equal(t, "localhost:6379", cfg.Redis.Addr)
		require.Equal(t, 0, cfg.Redis.DB)
		require.Empty(t, cfg.Pricing.CatalogPath)
		require.Equal(t, "billing:records", cfg.Billing.QueueKey)
		require.Equal(t, int64(10000), cfg.Billing.CongestionThreshold)
		require.Equal(t, "@every 15s", cfg.Billing.SampleSchedule)
		require.InDelta(t, 4.0, cfg.Tokenizer.CharsPerToken, 1e-9)
		require.Empty(t, cfg.OpenAI.APIKey)
	})

	t.Run("should load config from environment variables", func(t *testing.T) {
		// Set environment variables using t.Setenv for automatic cleanup
		t.Setenv("SERVER_PORT", "9000")
		t.Setenv("SERVER_WRITE_TIMEOUT", "600")
		t.Setenv("REDIS_ADDR", "redis:6380")
		t.Setenv("REDIS_DB", "2")
		t.Setenv("PRICING_CATALOG_PATH", "/etc/cinder/catalog.yaml")
		t.Setenv("BILLING_QUEUE_KEY", "billing:test")
		t.Setenv("BILLING_CONGESTION_THRESHOLD", "500")
		t.Setenv("BILLING_SAMPLE_SCHEDULE", "@every 5s")
		t.Setenv("TOKENIZER_CHARS_PER_TOKEN", "3.5")
		t.Setenv("OPENAI_API_KEY", "sk-test-key")

		cfg := config.Load()

		require.NotNil(t, cfg)

		// Verify loaded values
		require.Equal(t, 9000, cfg.Server.Port)
		require.Equal(t, 600, cfg.Server.WriteTimeout)
		require.Equal(t, "redis:6380", cfg.Redis.Addr)
		require.Equal(t, 2, cfg.Redis.DB)
		require.Equal(t, "/etc/cinder/catalog.yaml", cfg.Pricing.CatalogPath)
		require.Equal(t, "billing:test", cfg.Billing.QueueKey)
		require.Equal(t, int64(500), cfg.Billing.CongestionThreshold)
		require.Equal(t, "@every 5s", cfg.Billing.SampleSchedule)
		require.InDelta(t, 3.5, cfg.Tokenizer.CharsPerToken, 1e-9)
		require.Equal(t, "sk-test-key", cfg.OpenAI.APIKey)
	})

	t.Run("should fan out sub-configs for injection", func(t *testing.T) {
		os.Clearenv()

		cfg := config.Load()
		deps := config.ParseDependenciesConfig(cfg)

		require.Same(t, &cfg.Server, deps.ServerConfig)
		require.Same(t, &cfg.Redis, deps.RedisConfig)
		require.Same(t, &cfg.Billing, deps.BillingConfig)
		require.Same(t, &cfg.OpenAI, deps.Config)
	})
}
