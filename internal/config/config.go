package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/routeflow/routeflow-api/internal/flags"
	"github.com/routeflow/routeflow-api/internal/logger"
)

// Config is the process configuration, loaded once at startup from the
// environment. A .env file is honored in local development.
type Config struct {
	Stage string
	Port  string

	WebhookSecret string

	RedisURL string

	ProviderBaseURL string
	ProviderAPIKey  string

	PriceFeedAPIKey string

	IdempotencyTTL time.Duration

	RateLimitPerSecond float64
	RateLimitBurst     int

	Flags flags.Flags
}

// Load reads configuration from the environment. Local .env files are
// loaded best-effort; deployed environments inject real variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Log.Debug("no .env file found, using environment variables")
	}

	cfg := &Config{
		Stage:              envOr("STAGE", "dev"),
		Port:               envOr("PORT", "8080"),
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		RedisURL:           envOr("REDIS_URL", ""),
		ProviderBaseURL:    envOr("PROVIDER_BASE_URL", "https://api.circle.com"),
		ProviderAPIKey:     os.Getenv("PROVIDER_API_KEY"),
		PriceFeedAPIKey:    os.Getenv("PRICE_FEED_API_KEY"),
		IdempotencyTTL:     envDurationOr("IDEMPOTENCY_TTL", 24*time.Hour),
		RateLimitPerSecond: envFloatOr("RATE_LIMIT_PER_SECOND", 25),
		RateLimitBurst:     envIntOr("RATE_LIMIT_BURST", 50),
		Flags:              flags.FromEnv(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if !c.Flags.UseMockProvider && c.ProviderAPIKey == "" {
		return fmt.Errorf("PROVIDER_API_KEY is required when USE_MOCK_PROVIDER=false")
	}
	if !c.Flags.UseMockRouting && c.PriceFeedAPIKey == "" {
		return fmt.Errorf("PRICE_FEED_API_KEY is required when USE_MOCK_ROUTING=false")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatOr(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
