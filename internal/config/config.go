package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/emberhq/cinder/internal/provider/openai"
)

// Config represents the gateway configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Redis     RedisConfig
	Pricing   PricingConfig
	Billing   BillingConfig
	Tokenizer TokenizerConfig
	OpenAI    openai.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"300"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-Provider,X-Scope-Id,X-Ratelimit-Policy"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// RedisConfig contains settings for the counter store and billing queue.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
}

// PricingConfig contains pricing catalog settings. An empty path selects
// the built-in default catalog.
type PricingConfig struct {
	CatalogPath string `env:"PRICING_CATALOG_PATH"`
}

// BillingConfig contains billing queue and congestion monitor settings.
type BillingConfig struct {
	QueueKey            string `env:"BILLING_QUEUE_KEY"            envDefault:"billing:records"`
	CongestionThreshold int64  `env:"BILLING_CONGESTION_THRESHOLD" envDefault:"10000"`
	SampleSchedule      string `env:"BILLING_SAMPLE_SCHEDULE"      envDefault:"@every 15s"`
}

// TokenizerConfig contains fallback token estimation settings.
type TokenizerConfig struct {
	CharsPerToken float64 `env:"TOKENIZER_CHARS_PER_TOKEN" envDefault:"4"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*RedisConfig
	*PricingConfig
	*BillingConfig
	*TokenizerConfig
	*openai.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.Redis,
		&cfg.Pricing,
		&cfg.Billing,
		&cfg.Tokenizer,
		&cfg.OpenAI,
	}
}
