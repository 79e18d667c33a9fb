// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir    string // Base directory for the cache database (always absolute)
	GatewayURL string // Edge gateway base URL used by the fetch CLI
	FXAPIKey   string // API key attached to fx.* routes
	LogLevel   string
	Port       int
	DevMode    bool

	ResultTTL time.Duration // Local result cache lifetime
	RateLimit RateLimitConfig
}

// RateLimitConfig holds the dual-window admission control settings.
type RateLimitConfig struct {
	ShortWindow time.Duration
	ShortLimit  int
	LongWindow  time.Duration
	LongLimit   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("QG_DATA_DIR", "")
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), "quotegate")
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:    absDataDir,
		Port:       getEnvAsInt("QG_PORT", 8080),
		DevMode:    getEnvAsBool("DEV_MODE", false),
		GatewayURL: getEnv("QG_GATEWAY_URL", "http://localhost:8080"),
		FXAPIKey:   getEnv("FX_API_KEY", ""),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		ResultTTL:  time.Duration(getEnvAsInt("QG_RESULT_TTL_MINUTES", 10)) * time.Minute,
		RateLimit: RateLimitConfig{
			ShortWindow: time.Duration(getEnvAsInt("QG_RATE_SHORT_WINDOW_SECONDS", 60)) * time.Second,
			ShortLimit:  getEnvAsInt("QG_RATE_SHORT_LIMIT", 25),
			LongWindow:  time.Duration(getEnvAsInt("QG_RATE_LONG_WINDOW_SECONDS", 300)) * time.Second,
			LongLimit:   getEnvAsInt("QG_RATE_LONG_LIMIT", 75),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.RateLimit.ShortLimit <= 0 || c.RateLimit.LongLimit <= 0 {
		return fmt.Errorf("rate limit ceilings must be positive")
	}
	if c.RateLimit.ShortWindow <= 0 || c.RateLimit.LongWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}

	// Note: FX_API_KEY optional; fx.* routes fail upstream without it
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
