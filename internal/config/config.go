package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Store driver constants
const (
	StoreDriverMemory = "memory"
	StoreDriverRedis  = "redis"
)

type Config struct {
	// Server settings
	ServerAddr   string
	BaseURL      string
	IsProduction bool

	// JWT settings. The same secret signs issued access tokens and
	// validates the identity tokens the approval surface presents.
	JWTSecret     string
	JWTExpiration time.Duration

	// Device flow settings
	DeviceCodeExpiration time.Duration
	PollingInterval      int // seconds

	// Store lifecycle settings
	SweepInterval   time.Duration // periodic expiry sweep (authoritative)
	RetentionWindow time.Duration // grace period before terminal records are purged

	// Store backend
	StoreDriver   string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Rate limiting
	RateLimitEnabled     bool
	AuthorizePerMinute   int
	TokenPollPerMinute   int
	RateLimitStoreDriver string // "memory" or "redis"

	// Metrics
	MetricsEnabled bool
	MetricsToken   string

	// Identity cache (validated approval-surface bearer tokens)
	IdentityCacheTTL time.Duration
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		IsProduction: getEnvBool("PRODUCTION", false),

		JWTSecret:     getEnv("JWT_SECRET", "your-256-bit-secret-change-in-production"),
		JWTExpiration: getEnvDuration("JWT_EXPIRATION", time.Hour),

		DeviceCodeExpiration: getEnvDuration("DEVICE_CODE_EXPIRATION", 15*time.Minute),
		PollingInterval:      getEnvInt("POLLING_INTERVAL", 5),

		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", time.Minute),
		RetentionWindow: getEnvDuration("RETENTION_WINDOW", 5*time.Minute),

		StoreDriver:   getEnv("STORE_DRIVER", StoreDriverMemory),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitEnabled:     getEnvBool("RATE_LIMIT_ENABLED", true),
		AuthorizePerMinute:   getEnvInt("RATE_LIMIT_AUTHORIZE_PER_MINUTE", 10),
		TokenPollPerMinute:   getEnvInt("RATE_LIMIT_TOKEN_PER_MINUTE", 30),
		RateLimitStoreDriver: getEnv("RATE_LIMIT_STORE", StoreDriverMemory),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsToken:   getEnv("METRICS_TOKEN", ""),

		IdentityCacheTTL: getEnvDuration("IDENTITY_CACHE_TTL", time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
