// Package config loads authorization core configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nextsuite/authcore/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Catalog       CatalogConfig
	Enforcement   EnforcementConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// CacheConfig holds entitlement cache configuration
type CacheConfig struct {
	// Backend is "memory" or "redis"
	Backend string
	TTL     time.Duration
	MaxSize int

	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// CatalogConfig holds module/plan catalog configuration
type CatalogConfig struct {
	// Path to the YAML catalog file
	Path string
	// Watch enables hot reload on file changes
	Watch bool
}

// EnforcementConfig holds enforcer tuning
type EnforcementConfig struct {
	// LookupTimeout bounds store lookups inside a decision; on expiry the
	// decision fails closed.
	LookupTimeout time.Duration
}

// AuditConfig holds audit sink configuration
type AuditConfig struct {
	// RetentionDays is how long decision events are kept. Entitlement change
	// events are exempt from retention and kept forever.
	RetentionDays int
	// PurgeSchedule is a cron expression for the retention purge job
	PurgeSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("AUTHCORE_HOST", "0.0.0.0"),
			Port:            getEnv("AUTHCORE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("AUTHCORE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("AUTHCORE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("AUTHCORE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("AUTHCORE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("AUTHCORE_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("AUTHCORE_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("AUTHCORE_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("AUTHCORE_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("AUTHCORE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Cache: CacheConfig{
			Backend:       getEnv("AUTHCORE_CACHE_BACKEND", "memory"),
			TTL:           getEnvDuration("AUTHCORE_CACHE_TTL", 5*time.Minute),
			MaxSize:       getEnvInt("AUTHCORE_CACHE_MAX_SIZE", 65536),
			RedisURL:      getEnv("AUTHCORE_REDIS_URL", ""),
			RedisPassword: getEnv("AUTHCORE_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("AUTHCORE_REDIS_DB", 0),
		},
		Catalog: CatalogConfig{
			Path:  getEnv("AUTHCORE_CATALOG_PATH", "catalog.yaml"),
			Watch: getEnvBool("AUTHCORE_CATALOG_WATCH", true),
		},
		Enforcement: EnforcementConfig{
			LookupTimeout: getEnvDuration("AUTHCORE_LOOKUP_TIMEOUT", 2*time.Second),
		},
		Audit: AuditConfig{
			RetentionDays: getEnvInt("AUTHCORE_AUDIT_RETENTION_DAYS", 90),
			PurgeSchedule: getEnv("AUTHCORE_AUDIT_PURGE_SCHEDULE", "0 3 * * *"),
		},
		Observability: ObservabilityConfig{
			LogLevel:           parseLogLevel(getEnv("AUTHCORE_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("AUTHCORE_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("AUTHCORE_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("AUTHCORE_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("AUTHCORE_OTEL_SERVICE_NAME", "authcore"),
			OTelServiceVersion: getEnv("AUTHCORE_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("AUTHCORE_OTEL_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog path is required")
	}

	if c.Enforcement.LookupTimeout <= 0 {
		return fmt.Errorf("lookup timeout must be positive")
	}

	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention days must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
