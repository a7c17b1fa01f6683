package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath     string
	YahooBaseURL     string
	LogLevel         string
	Port             int
	DevMode          bool
	RiskFreeRate     float64
	PriceCacheTTL    time.Duration
	RateLimitPerSec  float64
	RateLimitBurst   int
	BenchmarkSymbols []string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnvAsInt("PORT", 8003),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		DatabasePath:    getEnv("DATABASE_PATH", "./data/quantfolio.db"),
		YahooBaseURL:    getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RiskFreeRate:    getEnvAsFloat("RISK_FREE_RATE", 0.03),
		PriceCacheTTL:   time.Duration(getEnvAsInt("PRICE_CACHE_TTL_MINUTES", 60)) * time.Minute,
		RateLimitPerSec: getEnvAsFloat("RATE_LIMIT_PER_SEC", 10),
		RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 20),
	}

	// Default benchmark set refreshed by the scheduler.
	cfg.BenchmarkSymbols = []string{"SPY", "QQQ", "VT"}
	if v := os.Getenv("BENCHMARK_SYMBOLS"); v != "" {
		cfg.BenchmarkSymbols = splitCSV(v)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be a valid TCP port, got %d", c.Port)
	}
	if c.RiskFreeRate < 0 || c.RiskFreeRate > 1 {
		return fmt.Errorf("RISK_FREE_RATE must be a fraction between 0 and 1, got %f", c.RiskFreeRate)
	}
	return nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
