package config

import (
	"strings"
	"testing"
	"time"

	"github.com/nextsuite/authcore/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AUTHCORE_POSTGRES_URL", "postgres://localhost/authcore")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Server.Port != "8080" || cfg.Server.HealthPort != "9090" {
		t.Errorf("server ports = %s/%s", cfg.Server.Port, cfg.Server.HealthPort)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Catalog.Path != "catalog.yaml" || !cfg.Catalog.Watch {
		t.Errorf("catalog = %+v", cfg.Catalog)
	}
	if cfg.Enforcement.LookupTimeout != 2*time.Second {
		t.Errorf("lookup timeout = %v", cfg.Enforcement.LookupTimeout)
	}
	if cfg.Audit.RetentionDays != 90 {
		t.Errorf("retention days = %d", cfg.Audit.RetentionDays)
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("log level = %v", cfg.Observability.LogLevel)
	}
	if cfg.Observability.OTelEnabled {
		t.Error("otel must be off by default")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("AUTHCORE_POSTGRES_URL", "postgres://localhost/authcore")
	t.Setenv("AUTHCORE_PORT", "8888")
	t.Setenv("AUTHCORE_CACHE_BACKEND", "redis")
	t.Setenv("AUTHCORE_REDIS_URL", "redis://localhost:6379")
	t.Setenv("AUTHCORE_CACHE_TTL", "30s")
	t.Setenv("AUTHCORE_LOG_LEVEL", "debug")
	t.Setenv("AUTHCORE_CATALOG_WATCH", "false")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Server.Port != "8888" {
		t.Errorf("port = %s", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.TTL != 30*time.Second {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("log level = %v", cfg.Observability.LogLevel)
	}
	if cfg.Catalog.Watch {
		t.Error("watch override ignored")
	}
}

func TestLoadConfigMissingDatabase(t *testing.T) {
	t.Setenv("AUTHCORE_POSTGRES_URL", "")

	_, err := LoadConfig()
	if err == nil || !strings.Contains(err.Error(), "postgres URL") {
		t.Fatalf("expected postgres URL error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:      ServerConfig{Port: "8080", HealthPort: "9090"},
			Database:    DatabaseConfig{URL: "postgres://localhost/authcore"},
			Cache:       CacheConfig{Backend: "memory", TTL: time.Minute},
			Catalog:     CatalogConfig{Path: "catalog.yaml"},
			Enforcement: EnforcementConfig{LookupTimeout: time.Second},
			Audit:       AuditConfig{RetentionDays: 90},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"redis without url", func(c *Config) { c.Cache.Backend = "redis" }},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"empty catalog path", func(c *Config) { c.Catalog.Path = "" }},
		{"zero lookup timeout", func(c *Config) { c.Enforcement.LookupTimeout = 0 }},
		{"zero retention", func(c *Config) { c.Audit.RetentionDays = 0 }},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want observability.LogLevel
	}{
		{"debug", observability.DebugLevel},
		{"INFO", observability.InfoLevel},
		{"warning", observability.WarnLevel},
		{"error", observability.ErrorLevel},
		{"bogus", observability.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
