package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvironmentProduction = "Production"
	EnvironmentSandbox    = "Sandbox"
)

type Config struct {
	// Server configuration
	Port            string
	Mode            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Database configuration
	DatabaseURL string
	SQLitePath  string

	// Redis configuration
	RedisURL string

	// App Store configuration
	AppStore AppStoreConfig

	// Push relay configuration
	PushRelayURL    string
	PushRelaySecret string
	PushQueueSize   int
	PushWorkers     int

	// Ledger configuration
	ReceiptRateLimit time.Duration
	UserLockTTL      time.Duration
}

// AppStoreConfig holds the App Store Server API and notification settings
type AppStoreConfig struct {
	Environment       string
	BundleID          string
	AppAppleID        int64
	IssuerID          string
	KeyID             string
	PrivateKeyPath    string
	RootCertPath      string
	APIBaseURL        string
	APITimeout        time.Duration
	RequestsPerSecond int
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = Load()
	return nil
}

// Load reads the configuration from the process environment
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		Mode:            getEnv("GIN_MODE", "debug"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 15)) * time.Second,
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SQLitePath:      getEnv("SQLITE_PATH", "hound-api.db"),
		RedisURL:        getEnv("REDIS_URL", ""),
		AppStore: AppStoreConfig{
			Environment:       normalizeEnvironment(getEnv("APPSTORE_ENVIRONMENT", EnvironmentSandbox)),
			BundleID:          getEnv("APPSTORE_BUNDLE_ID", ""),
			AppAppleID:        int64(getEnvInt("APPSTORE_APP_APPLE_ID", 0)),
			IssuerID:          getEnv("APPSTORE_ISSUER_ID", ""),
			KeyID:             getEnv("APPSTORE_KEY_ID", ""),
			PrivateKeyPath:    getEnv("APPSTORE_PRIVATE_KEY_PATH", ""),
			RootCertPath:      getEnv("APPSTORE_ROOT_CERT_PATH", ""),
			APIBaseURL:        getEnv("APPSTORE_API_BASE_URL", ""),
			APITimeout:        time.Duration(getEnvInt("APPSTORE_API_TIMEOUT_SECONDS", 10)) * time.Second,
			RequestsPerSecond: getEnvInt("APPSTORE_API_REQUESTS_PER_SECOND", 10),
		},
		PushRelayURL:     getEnv("PUSH_RELAY_URL", ""),
		PushRelaySecret:  getEnv("PUSH_RELAY_SECRET", ""),
		PushQueueSize:    getEnvInt("PUSH_QUEUE_SIZE", 256),
		PushWorkers:      getEnvInt("PUSH_WORKERS", 2),
		ReceiptRateLimit: time.Duration(getEnvInt("RECEIPT_RATE_LIMIT_SECONDS", 5)) * time.Second,
		UserLockTTL:      time.Duration(getEnvInt("USER_LOCK_TTL_SECONDS", 30)) * time.Second,
	}
}

// IsRelease reports whether gin runs in release mode
func (c *Config) IsRelease() bool {
	return c.Mode == "release"
}

// normalizeEnvironment maps loose spellings onto Apple's environment names
func normalizeEnvironment(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return EnvironmentProduction
	default:
		return EnvironmentSandbox
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
