package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"github.com/emberhq/cinder/internal/billing"
	"github.com/emberhq/cinder/internal/config"
	"github.com/emberhq/cinder/internal/domain"
	"github.com/emberhq/cinder/internal/http"
	"github.com/emberhq/cinder/internal/http/middleware"
	"github.com/emberhq/cinder/internal/observability"
	"github.com/emberhq/cinder/internal/pricing"
	"github.com/emberhq/cinder/internal/provider/echo"
	"github.com/emberhq/cinder/internal/provider/openai"
	"github.com/emberhq/cinder/internal/provider/registry"
	redisstore "github.com/emberhq/cinder/internal/store/redis"
	"github.com/emberhq/cinder/internal/tokenizer"
)

// ErrProviderNotConfigured indicates that a provider is not configured and should be skipped.
var ErrProviderNotConfigured = errors.New("provider not configured")

func main() {
	container := buildContainer()

	err := container.Invoke(func(monitor *billing.CongestionMonitor, server *http.Server) {
		if err := monitor.Start(); err != nil {
			log.Fatalf("Congestion monitor failed to start: %v", err)
		}
		defer monitor.Stop()

		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

//nolint:funlen // Container wiring is naturally linear
func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(observability.NewMetrics); err != nil {
		log.Fatalf("Failed to provide metrics: %v", err)
	}

	// Redis (counter store + billing queue)
	if err := container.Provide(func(cfg *config.RedisConfig) *redis.Client {
		return redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}); err != nil {
		log.Fatalf("Failed to provide redis client: %v", err)
	}
	if err := container.Provide(func(client *redis.Client) domain.CounterStore {
		return redisstore.NewCounterStore(client)
	}); err != nil {
		log.Fatalf("Failed to provide counter store: %v", err)
	}

	// Throttle gate
	if err := container.Provide(domain.NewThrottleGate); err != nil {
		log.Fatalf("Failed to provide throttle gate: %v", err)
	}

	// Pricing catalog + cost resolver. Catalog faults are startup failures:
	// a gateway with a broken catalog must not serve.
	if err := container.Provide(func(cfg *config.PricingConfig) (*pricing.Catalog, error) {
		if cfg.CatalogPath == "" {
			return pricing.DefaultCatalog()
		}
		catalog, err := pricing.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load pricing catalog: %w", err)
		}
		return catalog, nil
	}); err != nil {
		log.Fatalf("Failed to provide pricing catalog: %v", err)
	}
	if err := container.Provide(func(catalog *pricing.Catalog) domain.CostResolver {
		return pricing.NewResolver(catalog)
	}); err != nil {
		log.Fatalf("Failed to provide cost resolver: %v", err)
	}

	// Fallback token estimation
	if err := container.Provide(func(cfg *config.TokenizerConfig) domain.TokenCounter {
		return tokenizer.NewEstimator(cfg.CharsPerToken)
	}); err != nil {
		log.Fatalf("Failed to provide token counter: %v", err)
	}

	// Billing queue + congestion monitor
	if err := container.Provide(func(client *redis.Client, cfg *config.BillingConfig) domain.BillingPublisher {
		return billing.NewQueuePublisher(client, cfg.QueueKey)
	}); err != nil {
		log.Fatalf("Failed to provide billing publisher: %v", err)
	}
	if err := container.Provide(func(
		publisher domain.BillingPublisher,
		cfg *config.BillingConfig,
		metrics *observability.Metrics,
	) *billing.CongestionMonitor {
		return billing.NewCongestionMonitor(publisher, cfg.CongestionThreshold, cfg.SampleSchedule, metrics)
	}); err != nil {
		log.Fatalf("Failed to provide congestion monitor: %v", err)
	}
	if err := container.Provide(func(monitor *billing.CongestionMonitor) domain.CongestionSignal {
		return monitor
	}); err != nil {
		log.Fatalf("Failed to provide congestion signal: %v", err)
	}

	// Provider Registry
	if err := container.Provide(func() domain.ProviderRegistry {
		return registry.NewRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// OpenAI Provider
	if err := container.Provide(func(cfg *openai.Config) (*openai.Provider, error) {
		if cfg.APIKey == "" {
			return nil, ErrProviderNotConfigured
		}
		return openai.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide OpenAI provider: %v", err)
	}

	// Register providers with registry (invoked for side effects). The echo
	// provider is always available; OpenAI only when configured.
	if err := container.Invoke(func(reg domain.ProviderRegistry) error {
		if err := reg.Register(context.Background(), echo.NewProvider()); err != nil {
			return fmt.Errorf("failed to register echo provider: %w", err)
		}
		return nil
	}); err != nil {
		log.Fatalf("Failed to register echo provider: %v", err)
	}

	if err := container.Invoke(func(
		reg domain.ProviderRegistry,
		openaiProvider *openai.Provider,
	) error {
		if openaiProvider != nil {
			if err := reg.Register(context.Background(), openaiProvider); err != nil {
				return fmt.Errorf("failed to register OpenAI provider: %w", err)
			}
		}

		return nil
	}); err != nil {
		// Ignore ErrProviderNotConfigured as it's expected for optional providers
		if !errors.Is(err, ErrProviderNotConfigured) {
			log.Fatalf("Failed to register providers: %v", err)
		}
	}

	// Domain Services
	if err := container.Provide(domain.NewGatewayPipeline); err != nil {
		log.Fatalf("Failed to provide gateway pipeline: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(func(corsConfig *config.CORSConfig) middleware.Middleware {
		return middleware.BuildMiddlewareChain(corsConfig)
	}); err != nil {
		log.Fatalf("Failed to provide middleware: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}
