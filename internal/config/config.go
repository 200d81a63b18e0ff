// Package config provides configuration management for the pgstac mosaic service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Backend types.
const (
	BackendPgstac = "pgstac"
	BackendMemory = "memory"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Backend  BackendConfig  `envPrefix:"BACKEND_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Mosaic   MosaicConfig   `envPrefix:"MOSAIC_"`
	Cache    CacheConfig    `envPrefix:"CACHE_"`
	Features FeatureConfig  `envPrefix:"FEATURE_"`
	Logging  LoggingConfig  `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// BackendConfig contains backend selection configuration.
type BackendConfig struct {
	// Type specifies where searches and items live: "pgstac" or "memory"
	Type string `env:"TYPE" envDefault:"pgstac"`
	// CatalogFile is a GeoJSON FeatureCollection of STAC items served
	// by the memory backend.
	CatalogFile string `env:"CATALOG_FILE" envDefault:""`
}

// DatabaseConfig contains PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL              string        `env:"URL" envDefault:""`
	MaxConns         int32         `env:"MAX_CONNS" envDefault:"10"`
	StatementTimeout time.Duration `env:"STATEMENT_TIMEOUT" envDefault:"10s"`
	Migrate          bool          `env:"MIGRATE" envDefault:"false"`
}

// MosaicConfig contains registry and API metadata configuration.
type MosaicConfig struct {
	BaseURL      string `env:"BASE_URL"` // Public-facing URL (required)
	Title        string `env:"TITLE" envDefault:"pgstac mosaic API"`
	Description  string `env:"DESCRIPTION" envDefault:"Dynamic mosaics backed by registered STAC searches"`
	DefaultLimit int    `env:"DEFAULT_LIMIT" envDefault:"10"`
	MaxLimit     int    `env:"MAX_LIMIT" envDefault:"1000"`
	AssetLimit   int    `env:"ASSET_LIMIT" envDefault:"100"`
	SearchesDir  string `env:"SEARCHES_DIR" envDefault:""`
}

// CacheConfig contains HTTP cache header configuration.
type CacheConfig struct {
	Control      string   `env:"CONTROL" envDefault:"public, max-age=3600"`
	ExcludePaths []string `env:"EXCLUDE_PATHS" envDefault:"/searches/list,/searches/register,/healthz,/metrics" envSeparator:","`
}

// FeatureConfig contains feature flags.
type FeatureConfig struct {
	EnableDebug     bool `env:"ENABLE_DEBUG" envDefault:"false"`
	EnableMapViewer bool `env:"ENABLE_MAP_VIEWER" envDefault:"true"`
	EnableMetrics   bool `env:"ENABLE_METRICS" envDefault:"true"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	switch c.Backend.Type {
	case BackendPgstac:
		if c.Database.URL == "" {
			return fmt.Errorf("database URL is required for the pgstac backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("backend type must be 'pgstac' or 'memory', got %q", c.Backend.Type)
	}

	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max conns must be at least 1, got %d", c.Database.MaxConns)
	}

	if c.Database.StatementTimeout <= 0 {
		return fmt.Errorf("database statement timeout must be positive, got %s", c.Database.StatementTimeout)
	}

	if c.Mosaic.BaseURL == "" {
		return fmt.Errorf("mosaic base URL is required")
	}

	if c.Mosaic.DefaultLimit < 1 {
		return fmt.Errorf("default limit must be at least 1, got %d", c.Mosaic.DefaultLimit)
	}

	if c.Mosaic.MaxLimit < c.Mosaic.DefaultLimit {
		return fmt.Errorf("max limit (%d) must be >= default limit (%d)", c.Mosaic.MaxLimit, c.Mosaic.DefaultLimit)
	}

	if c.Mosaic.AssetLimit < 1 {
		return fmt.Errorf("asset limit must be at least 1, got %d", c.Mosaic.AssetLimit)
	}

	for _, p := range c.Cache.ExcludePaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("cache exclude path %q must start with /", p)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadDatabase parses only the DATABASE_ variables. Command line tools that
// talk to the database directly use it instead of Load.
func LoadDatabase() (*DatabaseConfig, error) {
	cfg := &DatabaseConfig{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "DATABASE_"}); err != nil {
		return nil, fmt.Errorf("failed to parse database configuration: %w", err)
	}
	return cfg, nil
}
