package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL           string
	HTTPPort              string
	AdminAPIKey           string
	HorizonURL            string
	HorizonRetryMax       int
	HorizonRetryBaseDelay time.Duration
	CoinGeckoURL          string
	CoinGeckoDelay        time.Duration
	CoinGeckoRetryMax     int
	RateStaleThreshold    time.Duration
	RateWorkerInterval    time.Duration
	ContinuousSchedule    string
	IntermediateAsset     string
	ProtocolFeeRecipient  string
	DataEntryAccount      string
	GoogleSheetsID        string
	GoogleCredentialsJSON string
}

// Load reads configuration from environment variables with sensible defaults. Variables
// from a .env file in the working directory fill in anything not already set.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	return Config{
		DatabaseURL:           envOrDefaultWarn("DATABASE_URL", ""),
		HTTPPort:              envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:           envOrDefault("ADMIN_API_KEY", ""),
		HorizonURL:            envOrDefault("HORIZON_URL", "https://horizon.stellar.org"),
		HorizonRetryMax:       envOrDefaultInt("HORIZON_RETRY_MAX", 5),
		HorizonRetryBaseDelay: envOrDefaultDuration("HORIZON_RETRY_BASE_DELAY", 2*time.Second),
		CoinGeckoURL:          envOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoDelay:        envOrDefaultDuration("COINGECKO_DELAY", 6*time.Second),
		CoinGeckoRetryMax:     envOrDefaultInt("COINGECKO_RETRY_MAX", 5),
		RateStaleThreshold:    envOrDefaultDuration("RATE_STALE_THRESHOLD", 2*time.Hour),
		RateWorkerInterval:    envOrDefaultDuration("RATE_WORKER_INTERVAL", 1*time.Hour),
		ContinuousSchedule:    envOrDefault("CONTINUOUS_SCHEDULE", "@daily"),
		IntermediateAsset:     envOrDefault("INTERMEDIATE_ASSET", "native"),
		ProtocolFeeRecipient:  envOrDefault("PROTOCOL_FEE_RECIPIENT", ""),
		DataEntryAccount:      envOrDefault("DATA_ENTRY_ACCOUNT", ""),
		GoogleSheetsID:        envOrDefault("GOOGLE_SHEETS_ID", ""),
		GoogleCredentialsJSON: envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}
