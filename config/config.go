// Package config loads and validates the incident-sync YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// APIBaseURL is the base URL of the incident API (e.g. "https://api.example.com/v1").
	APIBaseURL string `yaml:"api_base_url"`

	// APIToken is the bearer token used to authenticate with the API.
	// Token issuance and refresh happen outside this process.
	APIToken string `yaml:"api_token"`

	// DatabasePath is the SQLite cache file. Defaults to
	// ~/.local/share/incident-sync/cache.db.
	DatabasePath string `yaml:"database_path"`

	// DefaultRadiusKm is the radius used for nearby-report queries when the
	// caller does not specify one. Defaults to 5.
	DefaultRadiusKm float64 `yaml:"default_radius_km"`

	// PageSize is the page length for post and feed queries. Defaults to 20.
	PageSize int `yaml:"page_size"`

	// HTTPTimeout bounds each API request. Defaults to 30s.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// CacheRetention is how long a cached row may outlive its last successful
	// sync before eviction. Defaults to 7 days.
	CacheRetention time.Duration `yaml:"cache_retention"`

	// EvictInterval is how often the reconciler sweeps the cache.
	// Defaults to 1h.
	EvictInterval time.Duration `yaml:"evict_interval"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Format is "json" or "text". Defaults to json.
	Format string `yaml:"format"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "incident-sync".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request, e.g. Authorization: "Bearer <token>".
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path:
// ~/.config/incident-sync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "incident-sync", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required fields are present and well-formed, and
// fills in defaults for the optional ones.
func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	u, err := url.ParseRequestURI(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api_base_url %q must be a valid http or https URL", c.APIBaseURL)
	}

	if c.APIToken == "" {
		return fmt.Errorf("api_token is required")
	}

	if c.DatabasePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory for database_path: %w", err)
		}
		c.DatabasePath = filepath.Join(home, ".local", "share", "incident-sync", "cache.db")
	}

	if c.DefaultRadiusKm == 0 {
		c.DefaultRadiusKm = 5
	}
	if c.DefaultRadiusKm < 0 {
		return fmt.Errorf("default_radius_km %v must be positive", c.DefaultRadiusKm)
	}

	if c.PageSize == 0 {
		c.PageSize = 20
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return fmt.Errorf("page_size %d must be between 1 and 100", c.PageSize)
	}

	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.HTTPTimeout < time.Second {
		return fmt.Errorf("http_timeout %v is too short (minimum 1s)", c.HTTPTimeout)
	}

	if c.CacheRetention == 0 {
		c.CacheRetention = 7 * 24 * time.Hour
	}
	if c.CacheRetention < time.Hour {
		return fmt.Errorf("cache_retention %v is too short (minimum 1h)", c.CacheRetention)
	}

	if c.EvictInterval == 0 {
		c.EvictInterval = time.Hour
	}
	if c.EvictInterval < time.Minute {
		return fmt.Errorf("evict_interval %v is too short (minimum 1m)", c.EvictInterval)
	}
	if c.EvictInterval > c.CacheRetention {
		return fmt.Errorf("evict_interval %v exceeds cache_retention %v", c.EvictInterval, c.CacheRetention)
	}

	switch c.Logging.Level {
	case "":
		c.Logging.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "":
		c.Logging.Format = "json"
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q must be json or text", c.Logging.Format)
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
		if c.Telemetry.ServiceName == "" {
			c.Telemetry.ServiceName = "incident-sync"
		}
	}

	return nil
}
