package config

import (
	"fmt"
	"net/url"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// Payment providers.
const (
	ProviderMock   = "mock"
	ProviderHosted = "hosted"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort      int    `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	SecureCookies bool   `env:"SECURE_COOKIES" envDefault:"false"`

	// Per-IP limit on checkout, return page and order lookup
	CheckoutRPS   float64 `env:"CHECKOUT_RATE_LIMIT_RPS" envDefault:"2"`
	CheckoutBurst int     `env:"CHECKOUT_RATE_LIMIT_BURST" envDefault:"10"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"storefront_secret"`
	PostgresDB   string `env:"STOREFRONT_DB_NAME" envDefault:"storefront_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Cart mirror TTL and checkout backup TTL
	CartTTLHours   int `env:"CART_TTL_HOURS" envDefault:"168"`
	BackupTTLHours int `env:"CART_BACKUP_TTL_HOURS" envDefault:"168"`

	// MongoDB catalog
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"storefront"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Payment provider
	PaymentProvider  string `env:"PAYMENT_PROVIDER" envDefault:"mock"`
	ProviderBaseURL  string `env:"PAYMENT_PROVIDER_BASE_URL" envDefault:"https://api.stripe.com"`
	ProviderSecret   string `env:"PAYMENT_PROVIDER_SECRET_KEY" envDefault:""`
	CheckoutCurrency string `env:"CHECKOUT_CURRENCY" envDefault:"sar"`

	// Circuit breaker settings for provider calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from a .env file, if present, and the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithDotenv(cfg, ".env"); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if u, err := url.ParseRequestURI(c.PublicBaseURL); err != nil || u.Host == "" {
		return fmt.Errorf("invalid PUBLIC_BASE_URL %q", c.PublicBaseURL)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.CartTTLHours < 1 || c.BackupTTLHours < 1 {
		return fmt.Errorf("CART_TTL_HOURS and CART_BACKUP_TTL_HOURS must be positive")
	}

	switch c.PaymentProvider {
	case ProviderMock:
		if c.Environment == "production" {
			return fmt.Errorf("PAYMENT_PROVIDER=mock is not allowed in production")
		}
	case ProviderHosted:
		if c.ProviderSecret == "" {
			return fmt.Errorf("PAYMENT_PROVIDER_SECRET_KEY is required for the hosted provider")
		}
		if _, err := url.ParseRequestURI(c.ProviderBaseURL); err != nil {
			return fmt.Errorf("invalid PAYMENT_PROVIDER_BASE_URL %q: %w", c.ProviderBaseURL, err)
		}
	default:
		return fmt.Errorf("PAYMENT_PROVIDER must be %q or %q, got %q", ProviderMock, ProviderHosted, c.PaymentProvider)
	}

	if c.CheckoutRPS < 0 || (c.CheckoutRPS > 0 && c.CheckoutBurst < 1) {
		return fmt.Errorf("CHECKOUT_RATE_LIMIT_RPS must be >= 0 and CHECKOUT_RATE_LIMIT_BURST >= 1, got %f and %d", c.CheckoutRPS, c.CheckoutBurst)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0.0, 1.0], got %f", c.CBFailureRatio)
	}
	return nil
}
