package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the environment-driven service configuration. Every knob has a
// RELIVE_-prefixed variable; secrets have no defaults and must be set.
type Config struct {
	Environment string `validate:"oneof=development staging production"`
	ListenAddr  string `validate:"required"`
	DatabaseDSN string

	AccessSecret  string `validate:"required,min=16"`
	RefreshSecret string `validate:"required,min=16,nefield=AccessSecret"`
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	RateBurst     int
	RatePerSecond int
	MaxBodyBytes  int64
}

var validate = validator.New()

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   envOr("RELIVE_ENVIRONMENT", "development"),
		ListenAddr:    envOr("RELIVE_LISTEN_ADDR", ":8080"),
		DatabaseDSN:   os.Getenv("RELIVE_PG_DSN"),
		AccessSecret:  os.Getenv("RELIVE_ACCESS_SECRET"),
		RefreshSecret: os.Getenv("RELIVE_REFRESH_SECRET"),
	}

	var err error
	if cfg.AccessTTL, err = envDuration("RELIVE_ACCESS_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshTTL, err = envDuration("RELIVE_REFRESH_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = envInt("RELIVE_RATE_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.RatePerSecond, err = envInt("RELIVE_RATE_PER_SECOND", 10); err != nil {
		return nil, err
	}
	maxBody, err := envInt("RELIVE_MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxBodyBytes = int64(maxBody)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
