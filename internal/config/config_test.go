package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	t.Setenv("USDA_API_KEY", "secret-key")
	path := writeConfig(t, `
server:
  addr: ":8080"
  max_upload_bytes: 2048
  allowed_mime_types: [image/jpeg]
  rate_limit:
    requests_per_second: 5
    burst: 10
detector:
  url: http://detector:8000/detect
  max_dimension: 320
  timeout: 30s
sources:
  openfoodfacts:
    page_size: 5
    min_delay: 500ms
  usda:
    api_key: ${USDA_API_KEY}
retry:
  max_attempts: 4
  base_delay: 250ms
  timeout: 5s
jobs:
  max_concurrent: 8
  retention: 30m
  sweep_interval: 10s
cache:
  enabled: true
  path: /tmp/cache.db
  ttl: 24h
events:
  type: nats
  url: nats://bus:4222
metrics:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.MaxUploadBytes != 2048 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedMIMETypes) != 1 || cfg.Server.AllowedMIMETypes[0] != "image/jpeg" {
		t.Errorf("AllowedMIMETypes = %v", cfg.Server.AllowedMIMETypes)
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 5 || cfg.Server.RateLimit.Burst != 10 {
		t.Errorf("RateLimit = %+v", cfg.Server.RateLimit)
	}
	if cfg.Detector.URL != "http://detector:8000/detect" || cfg.Detector.MaxDimension != 320 || cfg.Detector.Timeout != 30*time.Second {
		t.Errorf("Detector = %+v", cfg.Detector)
	}
	if cfg.Sources.OpenFoodFacts.PageSize != 5 || cfg.Sources.OpenFoodFacts.MinDelay != 500*time.Millisecond {
		t.Errorf("OpenFoodFacts = %+v", cfg.Sources.OpenFoodFacts)
	}
	if cfg.Sources.USDA.APIKey != "secret-key" {
		t.Errorf("USDA.APIKey = %q, want expanded env var", cfg.Sources.USDA.APIKey)
	}
	if cfg.Retry.MaxAttempts != 4 || cfg.Retry.BaseDelay != 250*time.Millisecond || cfg.Retry.Timeout != 5*time.Second {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Jobs.MaxConcurrent != 8 || cfg.Jobs.Retention != 30*time.Minute || cfg.Jobs.SweepInterval != 10*time.Second {
		t.Errorf("Jobs = %+v", cfg.Jobs)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Path != "/tmp/cache.db" || cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Events.Type != "nats" || cfg.Events.URL != "nats://bus:4222" || cfg.Events.Subject != defaultSubject {
		t.Errorf("Events = %+v", cfg.Events)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("PORT", "")
	cfg := Default()

	if cfg.Server.Addr != ":10000" {
		t.Errorf("Addr = %q, want :10000", cfg.Server.Addr)
	}
	if cfg.Server.MaxUploadBytes != 10<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.Server.MaxUploadBytes)
	}
	if strings.Join(cfg.Server.AllowedMIMETypes, ",") != "image/jpeg,image/png,image/webp" {
		t.Errorf("AllowedMIMETypes = %v", cfg.Server.AllowedMIMETypes)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != time.Second || cfg.Retry.Timeout != 10*time.Second {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Sources.OpenFoodFacts.PageSize != 10 {
		t.Errorf("PageSize = %d, want 10", cfg.Sources.OpenFoodFacts.PageSize)
	}
	if cfg.Detector.MaxDimension != 640 || cfg.Detector.Timeout != 60*time.Second {
		t.Errorf("Detector = %+v", cfg.Detector)
	}
	if cfg.Jobs.MaxConcurrent != 0 || cfg.Jobs.Retention != time.Hour || cfg.Jobs.SweepInterval != time.Minute {
		t.Errorf("Jobs = %+v", cfg.Jobs)
	}
	if cfg.Cache.Enabled || cfg.Cache.TTL != 168*time.Hour {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Events.Type != "log" || cfg.Metrics.Enabled {
		t.Errorf("Events = %+v, Metrics = %+v", cfg.Events, cfg.Metrics)
	}
}

func TestDefault_PortEnv(t *testing.T) {
	t.Setenv("PORT", "9999")
	if got := Default().Server.Addr; got != ":9999" {
		t.Errorf("Addr = %q, want :9999", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [broken"))
	if err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestLoad_RetentionZeroDisablesEviction(t *testing.T) {
	cfg, err := Load(writeConfig(t, "jobs:\n  retention: 0s\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Jobs.Retention != 0 {
		t.Errorf("Retention = %v, want 0", cfg.Jobs.Retention)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad duration", "retry:\n  timeout: soon\n", "retry.timeout"},
		{"zero retry timeout", "retry:\n  timeout: 0s\n", "retry.timeout must be positive"},
		{"negative attempts", "retry:\n  max_attempts: -1\n", "retry.max_attempts"},
		{"non image mime", "server:\n  allowed_mime_types: [text/plain]\n", "not an image type"},
		{"detector url scheme", "detector:\n  url: ftp://x/detect\n", "detector.url"},
		{"page size too large", "sources:\n  openfoodfacts:\n    page_size: 500\n", "page_size"},
		{"negative concurrency", "jobs:\n  max_concurrent: -2\n", "jobs.max_concurrent"},
		{"unknown events type", "events:\n  type: kafka\n", "events.type"},
		{"nats url scheme", "events:\n  type: nats\n  url: http://bus\n", "events.url"},
		{"negative min delay", "sources:\n  usda:\n    min_delay: -1s\n", "sources.usda.min_delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load: expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
