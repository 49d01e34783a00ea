package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL     string
	HTTPListenAddr  string
	LogLevel        string
	ServiceName     string
	TokenSigningKey string
	WebhookSecret   string
	BillingAPIURL   string
	BillingAPIKey   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	// WebhookTolerance bounds how stale a signed webhook timestamp may be
	// before the delivery is rejected outright.
	WebhookTolerance time.Duration
}

func Load() (*Config, error) {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		ServiceName:      getEnv("SERVICE_NAME", "spellgate"),
		TokenSigningKey:  getEnv("TOKEN_SIGNING_KEY", ""),
		WebhookSecret:    getEnv("WEBHOOK_SECRET", ""),
		BillingAPIURL:    getEnv("BILLING_API_URL", ""),
		BillingAPIKey:    getEnv("BILLING_API_KEY", ""),
		AccessTokenTTL:   getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		WebhookTolerance: getDuration("WEBHOOK_TOLERANCE", 5*time.Minute),
	}

	return cfg, nil
}

// Validate checks that settings without a safe default are present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.TokenSigningKey == "" {
		return fmt.Errorf("TOKEN_SIGNING_KEY is required")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
