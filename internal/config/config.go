package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"signalist/internal/logger"
)

// Config holds application configuration
type Config struct {
	Env  string
	Addr string

	// Storage: sqlite, redis or memory
	StoreBackend  string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Quote source
	FinnhubAPIKey  string
	FinnhubBaseURL string
	FinnhubRPS     float64
	FinnhubBurst   int
	PollInterval   time.Duration
	QuoteCacheTTL  time.Duration
	WatchSymbols   []string

	AlertWebhookURL string
	CORSOrigins     []string
}

var DefaultWatchSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "META", "NVDA", "NFLX", "ORCL", "CRM"}

// LoadDotEnv copies an optional .env file into the process environment
// without overriding variables that are already set. It runs before the
// logger is built so ENV from the file selects the logger mode.
func LoadDotEnv(filenames ...string) error {
	return godotenv.Load(filenames...)
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		logger.Get().Debug(".env file not found")
	}

	cfg := &Config{
		Env:  getEnv("ENV", "development"),
		Addr: getEnv("ADDR", ":8080"),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		DBPath:        getEnv("DB_PATH", "./signalist.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		FinnhubAPIKey:  getEnv("FINNHUB_API_KEY", ""),
		FinnhubBaseURL: getEnv("FINNHUB_BASE_URL", "https://finnhub.io/api/v1"),
		FinnhubRPS:     getFloat("FINNHUB_RPS", 1),
		FinnhubBurst:   getInt("FINNHUB_BURST", 30),
		PollInterval:   getDuration("POLL_INTERVAL", 30*time.Second),
		QuoteCacheTTL:  getDuration("QUOTE_CACHE_TTL", 15*time.Minute),
		WatchSymbols:   getList("WATCH_SYMBOLS", DefaultWatchSymbols),

		AlertWebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
		CORSOrigins:     getList("CORS_ORIGINS", []string{"*"}),
	}

	switch cfg.StoreBackend {
	case "sqlite", "redis", "memory":
	default:
		logger.Get().Warnw("unknown STORE_BACKEND, falling back to sqlite", "value", cfg.StoreBackend)
		cfg.StoreBackend = "sqlite"
	}
	if cfg.StoreBackend == "redis" && cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.PollInterval <= 0 {
		logger.Get().Warnw("POLL_INTERVAL must be positive, falling back to 30s", "value", cfg.PollInterval)
		cfg.PollInterval = 30 * time.Second
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logger.Get().Warnw("invalid integer, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logger.Get().Warnw("invalid number, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		logger.Get().Warnw("invalid duration, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return v
}

func getList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
