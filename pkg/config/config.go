package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/dexcache/pkg/dialect"
	"github.com/pario-ai/dexcache/pkg/models"
)

// Config holds all dexcache configuration.
type Config struct {
	Listen   string         `yaml:"listen" env:"LISTEN"`
	DBPath   string         `yaml:"db_path" env:"DB_PATH"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Cache    CacheConfig    `yaml:"cache" envPrefix:"CACHE_"`
	Upstream UpstreamConfig `yaml:"upstream" envPrefix:"UPSTREAM_"`
	Species  SpeciesConfig  `yaml:"species" envPrefix:"SPECIES_"`
	Dialect  DialectConfig  `yaml:"dialect" env:"-"`
	History  HistoryConfig  `yaml:"history" envPrefix:"HISTORY_"`
	Metrics  MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
	Tracing  TracingConfig  `yaml:"tracing" envPrefix:"TRACING_"`
}

// LogConfig controls structured logging.
// Format is "json" (default) or "console".
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// CacheConfig controls the in-memory lookup cache.
type CacheConfig struct {
	Capacity int           `yaml:"capacity" env:"CAPACITY"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
}

// UpstreamConfig holds settings shared by both upstream providers.
type UpstreamConfig struct {
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	TargetLanguage string        `yaml:"target_language" env:"TARGET_LANGUAGE"`
}

// SpeciesConfig points at the species registry.
type SpeciesConfig struct {
	URL string `yaml:"url" env:"URL"`
}

// DialectConfig defines translation providers and per-dialect fallback chains.
type DialectConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
	Routes    []RouteConfig    `yaml:"routes"`
}

// ProviderConfig defines an upstream translation provider.
// A zero RequestsPerHour disables client-side throttling.
type ProviderConfig struct {
	Name            string  `yaml:"name"`
	URL             string  `yaml:"url"`
	APIKey          string  `yaml:"api_key"`
	RequestsPerHour float64 `yaml:"requests_per_hour"`
	Burst           int     `yaml:"burst"`
}

// RouteConfig maps a dialect to an ordered list of provider targets.
type RouteConfig struct {
	Dialect string        `yaml:"dialect"`
	Targets []RouteTarget `yaml:"targets"`
}

// RouteTarget identifies a provider and the provider's name for the dialect.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Dialect  string `yaml:"dialect"`
}

// HistoryConfig controls the SQLite lookup history.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TracingConfig controls OTLP trace export. Tracing is off when Endpoint is empty.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "DEXCACHE_"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "dexcache.db",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Capacity: 1000,
			TTL:      time.Hour,
		},
		Upstream: UpstreamConfig{
			Timeout:        5 * time.Second,
			TargetLanguage: "en",
		},
		Species: SpeciesConfig{
			URL: "https://pokeapi.co",
		},
		Dialect: DialectConfig{
			Providers: []ProviderConfig{
				{Name: "funtranslations", URL: "https://api.funtranslations.com", RequestsPerHour: 5, Burst: 5},
			},
		},
		History: HistoryConfig{
			Enabled:   true,
			Retention: 7 * 24 * time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "dexcache",
		},
		Tracing: TracingConfig{
			ServiceName: "dexcache",
		},
	}
}

// Load reads a YAML config file, expands environment variables in it and
// applies DEXCACHE_* overrides. An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural constraints on the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Cache.Capacity < 0 {
		errs = append(errs, fmt.Errorf("cache.capacity must not be negative, got %d", c.Cache.Capacity))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must not be negative, got %s", c.Cache.TTL))
	}
	if c.Upstream.Timeout < 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout must not be negative, got %s", c.Upstream.Timeout))
	}
	if c.Upstream.TargetLanguage == "" {
		errs = append(errs, errors.New("upstream.target_language is required"))
	}
	if c.Species.URL == "" {
		errs = append(errs, errors.New("species.url is required"))
	}
	for i, p := range c.Dialect.Providers {
		if p.Name == "" || p.URL == "" {
			errs = append(errs, fmt.Errorf("dialect.providers[%d]: name and url are required", i))
		}
		if p.RequestsPerHour < 0 {
			errs = append(errs, fmt.Errorf("dialect.providers[%d]: requests_per_hour must not be negative", i))
		}
	}
	for i, r := range c.Dialect.Routes {
		d := models.Dialect(r.Dialect)
		if d == models.DialectNone || !dialect.Valid(d) {
			errs = append(errs, fmt.Errorf("dialect.routes[%d]: unknown dialect %q", i, r.Dialect))
		}
		if len(r.Targets) == 0 {
			errs = append(errs, fmt.Errorf("dialect.routes[%d]: at least one target is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
