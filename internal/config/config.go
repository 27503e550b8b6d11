package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the nutrilens service.
type Config struct {
	Server   ServerConfig
	Detector DetectorConfig
	Sources  SourcesConfig
	Retry    RetryConfig
	Jobs     JobsConfig
	Cache    CacheConfig
	Events   EventsConfig
	Metrics  MetricsConfig
}

// ServerConfig controls the HTTP listener and upload validation.
type ServerConfig struct {
	Addr             string
	MaxUploadBytes   int64
	AllowedMIMETypes []string
	RateLimit        RateLimitConfig
}

// RateLimitConfig limits upload requests. Zero RequestsPerSecond disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// DetectorConfig points at the remote object detection service.
type DetectorConfig struct {
	URL          string
	MaxDimension int // longest side sent to the detector, in pixels
	Timeout      time.Duration
}

// SourcesConfig configures the nutrition lookup sources.
type SourcesConfig struct {
	OpenFoodFacts SourceConfig
	USDA          SourceConfig
}

// SourceConfig describes a single nutrition source.
type SourceConfig struct {
	BaseURL  string
	APIKey   string // expanded from env var by Load; USDA only
	PageSize int    // OpenFoodFacts only
	MinDelay time.Duration
}

// RetryConfig controls retries of nutrition source calls.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration // per attempt
}

// JobsConfig controls admission and retention of jobs.
type JobsConfig struct {
	MaxConcurrent int // 0 means unbounded
	Retention     time.Duration
	SweepInterval time.Duration
}

// CacheConfig controls the SQLite nutrition cache.
type CacheConfig struct {
	Enabled bool
	Path    string
	TTL     time.Duration
}

// EventsConfig controls which job notifier is used and its settings.
type EventsConfig struct {
	Type    string `yaml:"type"`    // "log" or "nats"
	URL     string `yaml:"url"`     // required if type is "nats"
	Subject string `yaml:"subject"` // nats subject for finished jobs
}

// MetricsConfig toggles the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

const (
	defaultAddr           = ":10000"
	defaultMaxUploadBytes = 10 << 20
	defaultMaxDimension   = 640
	defaultPageSize       = 10
	defaultCachePath      = "nutrilens-cache.db"
	defaultNATSURL        = "nats://127.0.0.1:4222"
	defaultSubject        = "nutrilens.jobs.finished"
	defaultUSDAKey        = "DEMO_KEY"
)

var defaultMIMETypes = []string{"image/jpeg", "image/png", "image/webp"}

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Server   rawServerConfig   `yaml:"server"`
	Detector rawDetectorConfig `yaml:"detector"`
	Sources  rawSourcesConfig  `yaml:"sources"`
	Retry    rawRetryConfig    `yaml:"retry"`
	Jobs     rawJobsConfig     `yaml:"jobs"`
	Cache    rawCacheConfig    `yaml:"cache"`
	Events   EventsConfig      `yaml:"events"`
	Metrics  MetricsConfig     `yaml:"metrics"`
}

type rawServerConfig struct {
	Addr             string          `yaml:"addr"`
	MaxUploadBytes   int64           `yaml:"max_upload_bytes"`
	AllowedMIMETypes []string        `yaml:"allowed_mime_types"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
}

type rawDetectorConfig struct {
	URL          string `yaml:"url"`
	MaxDimension int    `yaml:"max_dimension"`
	Timeout      string `yaml:"timeout"`
}

type rawSourcesConfig struct {
	OpenFoodFacts rawSourceConfig `yaml:"openfoodfacts"`
	USDA          rawSourceConfig `yaml:"usda"`
}

type rawSourceConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	PageSize int    `yaml:"page_size"`
	MinDelay string `yaml:"min_delay"`
}

type rawRetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
	Timeout     string `yaml:"timeout"`
}

type rawJobsConfig struct {
	MaxConcurrent int    `yaml:"max_concurrent"`
	Retention     string `yaml:"retention"`
	SweepInterval string `yaml:"sweep_interval"`
}

type rawCacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	TTL     string `yaml:"ttl"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		// The built-in defaults always validate.
		panic(err)
	}
	return cfg
}

// Parse expands environment variables in data, applies defaults, and validates.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var err error
	cfg := &Config{
		Server: ServerConfig{
			Addr:             raw.Server.Addr,
			MaxUploadBytes:   raw.Server.MaxUploadBytes,
			AllowedMIMETypes: raw.Server.AllowedMIMETypes,
			RateLimit:        raw.Server.RateLimit,
		},
		Detector: DetectorConfig{
			URL:          raw.Detector.URL,
			MaxDimension: raw.Detector.MaxDimension,
		},
		Sources: SourcesConfig{
			OpenFoodFacts: SourceConfig{
				BaseURL:  raw.Sources.OpenFoodFacts.BaseURL,
				PageSize: raw.Sources.OpenFoodFacts.PageSize,
			},
			USDA: SourceConfig{
				BaseURL: raw.Sources.USDA.BaseURL,
				APIKey:  raw.Sources.USDA.APIKey,
			},
		},
		Retry:   RetryConfig{MaxAttempts: raw.Retry.MaxAttempts},
		Jobs:    JobsConfig{MaxConcurrent: raw.Jobs.MaxConcurrent},
		Cache:   CacheConfig{Enabled: raw.Cache.Enabled, Path: raw.Cache.Path},
		Events:  raw.Events,
		Metrics: raw.Metrics,
	}

	durations := []struct {
		key  string
		raw  string
		def  time.Duration
		dest *time.Duration
	}{
		{"detector.timeout", raw.Detector.Timeout, 60 * time.Second, &cfg.Detector.Timeout},
		{"sources.openfoodfacts.min_delay", raw.Sources.OpenFoodFacts.MinDelay, 0, &cfg.Sources.OpenFoodFacts.MinDelay},
		{"sources.usda.min_delay", raw.Sources.USDA.MinDelay, 0, &cfg.Sources.USDA.MinDelay},
		{"retry.base_delay", raw.Retry.BaseDelay, 1 * time.Second, &cfg.Retry.BaseDelay},
		{"retry.timeout", raw.Retry.Timeout, 10 * time.Second, &cfg.Retry.Timeout},
		{"jobs.retention", raw.Jobs.Retention, 1 * time.Hour, &cfg.Jobs.Retention},
		{"jobs.sweep_interval", raw.Jobs.SweepInterval, 1 * time.Minute, &cfg.Jobs.SweepInterval},
		{"cache.ttl", raw.Cache.TTL, 168 * time.Hour, &cfg.Cache.TTL},
	}
	for _, d := range durations {
		*d.dest, err = parseDuration(d.key, d.raw, d.def)
		if err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseDuration(key, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", key, raw, err)
	}
	return d, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.Server.Addr = ":" + port
		} else {
			cfg.Server.Addr = defaultAddr
		}
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = defaultMaxUploadBytes
	}
	if len(cfg.Server.AllowedMIMETypes) == 0 {
		cfg.Server.AllowedMIMETypes = append([]string(nil), defaultMIMETypes...)
	}
	if cfg.Server.RateLimit.RequestsPerSecond > 0 && cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = 1
	}
	if cfg.Detector.MaxDimension == 0 {
		cfg.Detector.MaxDimension = defaultMaxDimension
	}
	if cfg.Sources.OpenFoodFacts.PageSize == 0 {
		cfg.Sources.OpenFoodFacts.PageSize = defaultPageSize
	}
	if cfg.Sources.USDA.APIKey == "" {
		cfg.Sources.USDA.APIKey = defaultUSDAKey
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = defaultCachePath
	}
	if cfg.Events.Type == "" {
		cfg.Events.Type = "log"
	}
	if cfg.Events.Type == "nats" {
		if cfg.Events.URL == "" {
			cfg.Events.URL = defaultNATSURL
		}
		if cfg.Events.Subject == "" {
			cfg.Events.Subject = defaultSubject
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive, got %d", cfg.Server.MaxUploadBytes)
	}
	for _, m := range cfg.Server.AllowedMIMETypes {
		if !strings.HasPrefix(m, "image/") {
			return fmt.Errorf("server.allowed_mime_types: %q is not an image type", m)
		}
	}
	if cfg.Server.RateLimit.RequestsPerSecond < 0 || cfg.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rate_limit values must not be negative")
	}

	if cfg.Detector.URL != "" {
		if err := validateURL("detector.url", cfg.Detector.URL); err != nil {
			return err
		}
	}
	if cfg.Detector.MaxDimension < 0 {
		return fmt.Errorf("detector.max_dimension must be positive, got %d", cfg.Detector.MaxDimension)
	}
	if cfg.Detector.Timeout <= 0 {
		return fmt.Errorf("detector.timeout must be positive, got %v", cfg.Detector.Timeout)
	}

	for name, src := range map[string]SourceConfig{
		"openfoodfacts": cfg.Sources.OpenFoodFacts,
		"usda":          cfg.Sources.USDA,
	} {
		if src.BaseURL != "" {
			if err := validateURL("sources."+name+".base_url", src.BaseURL); err != nil {
				return err
			}
		}
		if src.MinDelay < 0 {
			return fmt.Errorf("sources.%s.min_delay must not be negative, got %v", name, src.MinDelay)
		}
	}
	if ps := cfg.Sources.OpenFoodFacts.PageSize; ps < 1 || ps > 100 {
		return fmt.Errorf("sources.openfoodfacts.page_size must be between 1 and 100, got %d", ps)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must not be negative, got %v", cfg.Retry.BaseDelay)
	}
	if cfg.Retry.Timeout <= 0 {
		return fmt.Errorf("retry.timeout must be positive, got %v", cfg.Retry.Timeout)
	}

	if cfg.Jobs.MaxConcurrent < 0 {
		return fmt.Errorf("jobs.max_concurrent must not be negative, got %d", cfg.Jobs.MaxConcurrent)
	}
	if cfg.Jobs.Retention < 0 {
		return fmt.Errorf("jobs.retention must not be negative, got %v", cfg.Jobs.Retention)
	}
	if cfg.Jobs.SweepInterval <= 0 {
		return fmt.Errorf("jobs.sweep_interval must be positive, got %v", cfg.Jobs.SweepInterval)
	}

	if cfg.Cache.Enabled && cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when cache.enabled is true, got %v", cfg.Cache.TTL)
	}

	switch cfg.Events.Type {
	case "log":
	case "nats":
		if !strings.HasPrefix(cfg.Events.URL, "nats://") && !strings.HasPrefix(cfg.Events.URL, "tls://") {
			return fmt.Errorf("events.url must start with nats:// or tls://, got %q", cfg.Events.URL)
		}
	default:
		return fmt.Errorf("events.type must be \"log\" or \"nats\", got %q", cfg.Events.Type)
	}

	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host, got %q", key, raw)
	}
	return nil
}
