// Package config provides application configuration management using Viper.
// It supports loading from environment variables, config files, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Vendor   VendorConfig
	Cache    CacheConfig
	Backend  BackendConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string
	Port        int
	Environment string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	Name                  string
	SSLMode               string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
	SlowQueryThreshold     time.Duration
	VerySlowQueryThreshold time.Duration
	LogAllQueries          bool
}

// ConnectionString returns a PostgreSQL connection string.
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// VendorConfig holds settings for the outbound voice-call vendor.
type VendorConfig struct {
	APIKey        string
	APIURL        string
	WebhookSecret string

	// WebhookMode, when true, configures every dispatched call with a
	// ServerURL so the vendor delivers terminal status via webhook instead
	// of relying purely on DirectCaller polling.
	WebhookMode bool
	WebhookURL  string

	// CircuitBreaker tuning (see internal/circuitbreaker).
	FailureThreshold int
	ResetTimeout     time.Duration
}

// CacheConfig holds settings for the call cache.
type CacheConfig struct {
	DefaultTTL   time.Duration
	ReapInterval time.Duration

	// Backend selects the cache implementation: "memory" (default) keeps
	// entries in a single process; "redis" shares them across replicas.
	Backend   string
	RedisAddr string
}

// BackendConfig holds orchestration and dispatch tuning.
type BackendConfig struct {
	MaxConcurrentCalls int
	PollInterval       time.Duration
	MaxPollAttempts    int
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables and config files.
// Environment variables take precedence over config file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/voicedispatch")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFoundErr) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        v.GetString("server.host"),
			Port:        v.GetInt("server.port"),
			Environment: v.GetString("server.env"),
		},
		Database: DatabaseConfig{
			Host:                   v.GetString("database.host"),
			Port:                   v.GetInt("database.port"),
			User:                   v.GetString("database.user"),
			Password:               v.GetString("database.password"),
			Name:                   v.GetString("database.name"),
			SSLMode:                v.GetString("database.sslmode"),
			MaxConnections:         v.GetInt("database.max_connections"),
			MaxIdleConnections:     v.GetInt("database.max_idle_connections"),
			ConnectionMaxLifetime:  v.GetDuration("database.connection_max_lifetime"),
			SlowQueryThreshold:     v.GetDuration("database.slow_query_threshold"),
			VerySlowQueryThreshold: v.GetDuration("database.very_slow_query_threshold"),
			LogAllQueries:          v.GetBool("database.log_all_queries"),
		},
		Vendor: VendorConfig{
			APIKey:           v.GetString("vendor.api_key"),
			APIURL:           v.GetString("vendor.api_url"),
			WebhookSecret:    v.GetString("vendor.webhook_secret"),
			WebhookMode:      v.GetBool("vendor.webhook_mode"),
			WebhookURL:       v.GetString("vendor.webhook_url"),
			FailureThreshold: v.GetInt("vendor.circuit_breaker.failure_threshold"),
			ResetTimeout:     v.GetDuration("vendor.circuit_breaker.reset_timeout"),
		},
		Cache: CacheConfig{
			DefaultTTL:   v.GetDuration("cache.default_ttl"),
			ReapInterval: v.GetDuration("cache.reap_interval"),
			Backend:      v.GetString("cache.backend"),
			RedisAddr:    v.GetString("cache.redis_addr"),
		},
		Backend: BackendConfig{
			MaxConcurrentCalls: v.GetInt("backend.max_concurrent_calls"),
			PollInterval:       v.GetDuration("backend.poll_interval"),
			MaxPollAttempts:    v.GetInt("backend.max_poll_attempts"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "voicedispatch")
	v.SetDefault("database.name", "voicedispatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_connections", 5)
	v.SetDefault("database.connection_max_lifetime", "5m")
	v.SetDefault("database.slow_query_threshold", "200ms")
	v.SetDefault("database.very_slow_query_threshold", "1s")

	v.SetDefault("vendor.api_url", "https://api.vapi.ai")
	v.SetDefault("vendor.webhook_mode", false)
	v.SetDefault("vendor.circuit_breaker.failure_threshold", 5)
	v.SetDefault("vendor.circuit_breaker.reset_timeout", "30s")

	v.SetDefault("cache.default_ttl", "30m")
	v.SetDefault("cache.reap_interval", "5m")
	v.SetDefault("cache.backend", "memory")

	v.SetDefault("backend.max_concurrent_calls", 5)
	v.SetDefault("backend.poll_interval", "5s")
	v.SetDefault("backend.max_poll_attempts", 60)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration values are present.
func (c *Config) Validate() error {
	var missing []string

	if c.Database.Password == "" {
		missing = append(missing, "DATABASE_PASSWORD")
	}
	if c.Vendor.APIKey == "" {
		missing = append(missing, "VENDOR_API_KEY")
	}
	if c.Vendor.WebhookMode && c.Vendor.WebhookURL == "" {
		missing = append(missing, "VENDOR_WEBHOOK_URL (required when VENDOR_WEBHOOK_MODE is enabled)")
	}
	if c.Cache.Backend != "" && c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("invalid cache backend %q: must be \"memory\" or \"redis\"", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		missing = append(missing, "CACHE_REDIS_ADDR (required when CACHE_BACKEND=redis)")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
