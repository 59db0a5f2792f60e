package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	DatabaseURL      string
	ServerPort       string
	FrontendURL      string
	EnableHSTS       bool
	RedisURL         string
	RateLimit        string
	RabbitMQURL      string
	RabbitMQPrefetch int
	OIDCIssuer       string
	OIDCJWKSURL      string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCTokenURL     string
	ServerURL        string
	DefaultTimeline  string
	LocalTimezone    string
	FactMinDelta     time.Duration
	LockTTL          time.Duration
	LockWait         time.Duration
	ParserConfig     string
	WorkerDebugMode  bool
	ServerDebugMode  bool
	OTELEnabled      bool
	OTELEndpoint     string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg, err := LoadClient()
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// LoadClient loads configuration for commands that may run without a database
func LoadClient() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:       getEnvBool("ENABLE_HSTS", false),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RateLimit:        getEnv("RATE_LIMIT", "20-S"),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCJWKSURL:      getEnv("OIDC_JWKS_URL", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		OIDCTokenURL:     getEnv("OIDC_TOKEN_URL", ""),
		ServerURL:        getEnv("TIMELOG_SERVER_URL", "http://localhost:8080"),
		DefaultTimeline:  getEnv("DEFAULT_TIMELINE", "default"),
		LocalTimezone:    getEnv("LOCAL_TIMEZONE", "Local"),
		FactMinDelta:     getEnvDuration("FACT_MIN_DELTA", 0),
		LockTTL:          getEnvDuration("LOCK_TTL", 30*time.Second),
		LockWait:         getEnvDuration("LOCK_WAIT", 10*time.Second),
		ParserConfig:     getEnv("PARSER_CONFIG", ""),
		WorkerDebugMode:  getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:  getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if _, err := time.LoadLocation(cfg.LocalTimezone); err != nil {
		return nil, fmt.Errorf("invalid LOCAL_TIMEZONE %q: %w", cfg.LocalTimezone, err)
	}

	return cfg, nil
}

// RequireQueue checks the settings the server and worker need for batch imports
func (c *Config) RequireQueue() error {
	if c.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required for job queueing (batch imports require RabbitMQ)")
	}
	return nil
}

// OIDCEnabled reports whether bearer tokens are verified
func (c *Config) OIDCEnabled() bool {
	return c.OIDCIssuer != "" && c.OIDCJWKSURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
