package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr            string
	DatabasePath    string
	KeyDir          string
	KeyringService  string
	JWTSecret       string
	Environment     string
	LogLevel        string
	LogFormat       string
	TaxSeedFile     string
	RunMigrations   bool
	RunSeed         bool
	MaxBodyBytes    int64
	MetricsEnabled  bool
	ShutdownTimeout time.Duration
	TokenTTL        time.Duration

	RateLimitPerMinute   int
	PendingSweepInterval time.Duration
	PendingStaleAfter    time.Duration
}

func Load() Config {
	return Config{
		Addr:            getEnv("APP_ADDR", "127.0.0.1:8080"),
		DatabasePath:    getEnv("DATABASE_PATH", "carepay.db"),
		KeyDir:          getEnv("KEY_DIR", ".carepay"),
		KeyringService:  getEnv("KEYRING_SERVICE", "carepay"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		Environment:     getEnv("APP_ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		TaxSeedFile:     getEnv("TAX_SEED_FILE", ""),
		RunMigrations:   getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:         getEnvBool("RUN_SEED", true),
		MaxBodyBytes:    int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		TokenTTL:        getEnvDuration("TOKEN_TTL", 24*time.Hour),

		RateLimitPerMinute:   getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		PendingSweepInterval: getEnvDuration("PENDING_SWEEP_INTERVAL", 15*time.Minute),
		PendingStaleAfter:    getEnvDuration("PENDING_STALE_AFTER", 72*time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if strings.TrimSpace(c.KeyDir) == "" {
		return fmt.Errorf("KEY_DIR is required")
	}
	if c.IsProduction() && strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if c.PendingSweepInterval > 0 && c.PendingStaleAfter <= 0 {
		return fmt.Errorf("PENDING_STALE_AFTER must be positive when the pending sweep is enabled")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}
	return nil
}
