package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI      string
	DBName        string
	RedisURL      string
	RedisPassword string
	RedisDB       int

	Port        string
	GinMode     string
	CORSOrigins []string
	JWTSecret   string

	AdminUsername string
	AdminPassword string

	// API rate limiting (requests per window, window in seconds).
	RateLimitReqs   int
	RateLimitWindow int

	DataDir            string
	EncryptionPassword string

	// Balance-cache staleness thresholds (hours).
	TokenCacheHours   int
	DisplayCacheHours int

	// WAF bypass browser behavior.
	WafWaitTimeout  time.Duration
	WafPollInterval time.Duration
	HeadlessBrowser bool

	// Provider HTTP client limits.
	RequestTimeout   time.Duration
	RequestsPerSec   float64
	NotifyOnCheckIn  bool
	OTLPEndpoint     string
	TelemetryEnabled bool
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017/checkin_keeper"),
		DBName:        getEnv("DB_NAME", "checkin_keeper"),
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		DataDir:            getEnv("DATA_DIR", "./data"),
		EncryptionPassword: getEnv("ENCRYPTION_PASSWORD", ""),

		TokenCacheHours:   getEnvInt("TOKEN_CACHE_HOURS", 1),
		DisplayCacheHours: getEnvInt("DISPLAY_CACHE_HOURS", 24),

		WafWaitTimeout:  getEnvDuration("WAF_WAIT_TIMEOUT", 15*time.Second),
		WafPollInterval: getEnvDuration("WAF_POLL_INTERVAL", 500*time.Millisecond),
		HeadlessBrowser: getEnvBool("HEADLESS_BROWSER", true),

		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RequestsPerSec:   getEnvFloat("REQUESTS_PER_SEC", 2),
		NotifyOnCheckIn:  getEnvBool("NOTIFY_ON_CHECKIN", true),
		OTLPEndpoint:     getEnv("OTLP_ENDPOINT", ""),
		TelemetryEnabled: getEnvBool("TELEMETRY_ENABLED", false),
	}

	// Validate required fields
	if cfg.EncryptionPassword == "" {
		return nil, fmt.Errorf("ENCRYPTION_PASSWORD is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AdminPassword == "" {
		return nil, fmt.Errorf("ADMIN_PASSWORD is required")
	}

	return cfg, nil
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
