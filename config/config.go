package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default Binance futures base URLs. All four are functionally equivalent;
// the endpoint pool rotates between them on geo-block or rate-limit.
var defaultBaseURLs = []string{
	"https://fapi.binance.com",
	"https://fapi1.binance.com",
	"https://fapi2.binance.com",
	"https://fapi3.binance.com",
}

// Config holds application configuration
type Config struct {
	// HTTP surface
	Port        int
	FrontendURL string

	// Persistence
	DatabaseURL string
	Production  bool // enables TLS to Postgres

	// Redis (optional; empty addr disables caching)
	RedisAddr     string
	RedisPassword string

	// Upstream
	BaseURLs []string

	// Detection parameters and thresholds
	Detection DetectionConfig
}

// DetectionConfig holds the surveillance tunables
type DetectionConfig struct {
	DetectInterval time.Duration
	PruneInterval  time.Duration
	Lookback       time.Duration // series window, default 30 days
	Retention      time.Duration // alert retention, default 48h
	AlertCooldown  time.Duration // per-symbol gap between alerts

	ScoreThreshold int // minimum confluence score to emit

	MinQuoteVolume float64 // liquidity filter, quote units
	MinOIValue     float64 // liquidity filter, quote units
	OITopN         int     // symbols to fetch open interest for
	DetectTopN     int     // symbols evaluated per cycle, by OI value
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Port:        getEnvInt("PORT", 3001),
		FrontendURL: os.Getenv("FRONTEND_URL"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		Production:  getEnvOrDefault("APP_ENV", "development") == "production",

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		BaseURLs: getEnvList("BINANCE_FAPI_URLS", defaultBaseURLs),

		Detection: DetectionConfig{
			DetectInterval: time.Duration(getEnvInt("DETECT_INTERVAL_SEC", 30)) * time.Second,
			PruneInterval:  time.Duration(getEnvInt("PRUNE_INTERVAL_MIN", 60)) * time.Minute,
			Lookback:       time.Duration(getEnvInt("LOOKBACK_DAYS", 30)) * 24 * time.Hour,
			Retention:      time.Duration(getEnvInt("RETENTION_HOURS", 48)) * time.Hour,
			AlertCooldown:  time.Duration(getEnvInt("ALERT_COOLDOWN_HOURS", 4)) * time.Hour,

			ScoreThreshold: getEnvInt("SCORE_THRESHOLD", 75),

			MinQuoteVolume: getEnvFloat("MIN_QUOTE_VOLUME", 50_000_000),
			MinOIValue:     getEnvFloat("MIN_OI_VALUE", 10_000_000),
			OITopN:         getEnvInt("OI_TOP_N", 50),
			DetectTopN:     getEnvInt("DETECT_TOP_N", 20),
		},
	}
}

// Validate checks for fatal misconfiguration. Everything else has a default.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(c.BaseURLs) == 0 {
		return fmt.Errorf("BINANCE_FAPI_URLS must name at least one base URL")
	}
	return nil
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList parses a comma-separated environment variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
