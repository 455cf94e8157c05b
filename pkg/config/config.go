// Package config defines and validates the gateway's configuration.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level configuration for the sites gateway.
type Config struct {
	App       AppConfig       `koanf:"app"`
	HTTP      HTTPConfig      `koanf:"http"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Chain     ChainConfig     `koanf:"chain"`
	Aggregator AggregatorConfig `koanf:"aggregator"`
	Cache     CacheConfig     `koanf:"cache"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

// HTTPConfig configures the demo HTTP frontend in cmd/portal.
type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	Output     string `koanf:"output"`
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"`
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures the Prometheus metrics registry.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// Endpoint is one entry of a priority-ordered URL list: a URL with its
// retry count and relative priority ("metric" — lower sorts first).
type Endpoint struct {
	URL     string `koanf:"url"`
	Retries uint32 `koanf:"retries"`
	Metric  int32  `koanf:"metric"`
}

// ChainConfig configures access to the Sui full-node JSON-RPC layer.
type ChainConfig struct {
	RPCURLs               []Endpoint `koanf:"rpc_urls"`
	SitePackage           string     `koanf:"site_package"`
	B36DomainResolution   bool       `koanf:"b36_domain_resolution"`
	MaxRedirectDepth      int        `koanf:"max_redirect_depth"`
	RPCRequestTimeoutMs   int        `koanf:"rpc_request_timeout_ms"`
	RetryDelayMs          int        `koanf:"retry_delay_ms"`
	StaticNames           map[string]string `koanf:"static_names"`
}

// AggregatorConfig configures access to the Walrus aggregator layer.
type AggregatorConfig struct {
	URLs                 []Endpoint `koanf:"urls"`
	MaxDecompressionBytes int64     `koanf:"max_decompression_bytes"`
}

// CacheConfig configures the optional in-flight / negative-result cache.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // memory, redis
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"`
}

// Address returns the host:port address of the cache backend.
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if len(c.Chain.RPCURLs) == 0 {
		errs = append(errs, "chain.rpc_urls must be non-empty")
	}

	if len(c.Aggregator.URLs) == 0 {
		errs = append(errs, "aggregator.urls must be non-empty")
	}

	if c.Chain.MaxRedirectDepth <= 0 {
		errs = append(errs, "chain.max_redirect_depth must be positive")
	}

	if c.Aggregator.MaxDecompressionBytes <= 0 {
		errs = append(errs, "aggregator.max_decompression_bytes must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether the configured environment is development.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}
