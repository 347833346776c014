package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/polisai/polis-matrix/pkg/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	if cfg.Remote.BaseURL != DefaultBaseURL {
		t.Errorf("Expected default base URL, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.InitMethod != "POST" {
		t.Errorf("Expected init_method POST, got %q", cfg.Remote.InitMethod)
	}
	if cfg.Run.Size != DefaultSize {
		t.Errorf("Expected size %d, got %d", DefaultSize, cfg.Run.Size)
	}
	if cfg.Remote.RequestTimeout != 30*time.Second {
		t.Errorf("Expected request timeout 30s, got %s", cfg.Remote.RequestTimeout)
	}
	if cfg.Run.Timeout != 10*time.Minute {
		t.Errorf("Expected run timeout 10m, got %s", cfg.Run.Timeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Metrics.Address != "" {
		t.Errorf("Expected metrics listener disabled, got %q", cfg.Metrics.Address)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: "http://localhost:9000/api/numbers"
  init_method: get
  request_timeout: 5s
  requests_per_second: 200
  burst: 50
run:
  size: 4
  concurrent_datasets: true
  fetch_concurrency: 16
  multiply_workers: 2
  timeout: 1m
logging:
  level: DEBUG
  format: json
telemetry:
  service_name: matrix-dev
  otlp_endpoint: "localhost:4317"
  insecure: true
metrics:
  address: ":9464"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Remote.BaseURL != "http://localhost:9000/api/numbers" {
		t.Errorf("Unexpected base_url %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.InitMethod != "GET" {
		t.Errorf("Expected init_method to normalize to GET, got %q", cfg.Remote.InitMethod)
	}
	if cfg.Remote.RequestTimeout != 5*time.Second {
		t.Errorf("Expected request_timeout 5s, got %s", cfg.Remote.RequestTimeout)
	}
	if cfg.Run.Size != 4 || !cfg.Run.ConcurrentDatasets || cfg.Run.FetchConcurrency != 16 || cfg.Run.MultiplyWorkers != 2 {
		t.Errorf("Unexpected run config: %+v", cfg.Run)
	}
	if cfg.Run.Timeout != time.Minute {
		t.Errorf("Expected run timeout 1m, got %s", cfg.Run.Timeout)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Telemetry.ServiceName != "matrix-dev" || cfg.Telemetry.OTLPEndpoint != "localhost:4317" || !cfg.Telemetry.Insecure {
		t.Errorf("Unexpected telemetry config: %+v", cfg.Telemetry)
	}
	if cfg.Metrics.Address != ":9464" {
		t.Errorf("Unexpected metrics address %q", cfg.Metrics.Address)
	}

	rl := cfg.RateLimit()
	if rl.RequestsPerSecond != 200 || rl.BurstSize != 50 {
		t.Errorf("Unexpected rate limit %+v", rl)
	}
	timeouts := cfg.Timeouts()
	if timeouts.RequestTimeout != 5*time.Second || timeouts.RunTimeout != time.Minute {
		t.Errorf("Unexpected timeouts %+v", timeouts)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
run:
  size: 4
logging:
  level: info
`)
	t.Setenv("MATRIX_BASE_URL", "https://numbers.internal/api/numbers")
	t.Setenv("MATRIX_SIZE", "8")
	t.Setenv("MATRIX_LOG_LEVEL", "warn")
	t.Setenv("MATRIX_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("MATRIX_OTLP_INSECURE", "true")
	t.Setenv("MATRIX_METRICS_ADDR", "127.0.0.1:9464")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Remote.BaseURL != "https://numbers.internal/api/numbers" {
		t.Errorf("MATRIX_BASE_URL not applied: %q", cfg.Remote.BaseURL)
	}
	if cfg.Run.Size != 8 {
		t.Errorf("MATRIX_SIZE not applied: %d", cfg.Run.Size)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("MATRIX_LOG_LEVEL not applied: %q", cfg.Logging.Level)
	}
	if cfg.Telemetry.OTLPEndpoint != "collector:4317" || !cfg.Telemetry.Insecure {
		t.Errorf("telemetry overrides not applied: %+v", cfg.Telemetry)
	}
	if cfg.Metrics.Address != "127.0.0.1:9464" {
		t.Errorf("MATRIX_METRICS_ADDR not applied: %q", cfg.Metrics.Address)
	}
}

func TestEnvOverrideBadSize(t *testing.T) {
	t.Setenv("MATRIX_SIZE", "lots")

	_, err := Load("")
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Fatalf("Expected ErrConfigInvalid, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "run: [size")
	if _, err := Load(path); err == nil {
		t.Fatal("Expected a parse error")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative base url", func(c *Config) { c.Remote.BaseURL = "/api/numbers" }},
		{"ftp base url", func(c *Config) { c.Remote.BaseURL = "ftp://example.com/api" }},
		{"unknown init method", func(c *Config) { c.Remote.InitMethod = "PUT" }},
		{"zero request timeout", func(c *Config) { c.Remote.RequestTimeout = 0 }},
		{"negative rate", func(c *Config) { c.Remote.RequestsPerSecond = -1 }},
		{"negative burst", func(c *Config) { c.Remote.Burst = -1 }},
		{"zero size", func(c *Config) { c.Run.Size = 0 }},
		{"negative fetch concurrency", func(c *Config) { c.Run.FetchConcurrency = -2 }},
		{"negative workers", func(c *Config) { c.Run.MultiplyWorkers = -1 }},
		{"negative run timeout", func(c *Config) { c.Run.Timeout = -time.Second }},
		{"run shorter than request", func(c *Config) { c.Run.Timeout = time.Second }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation to fail")
			}
			if !errors.Is(err, domain.ErrConfigInvalid) {
				t.Errorf("Expected error to wrap ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestValidateFillsBlanks(t *testing.T) {
	cfg := Default()
	cfg.Remote.InitMethod = ""
	cfg.Logging.Level = ""
	cfg.Logging.Format = ""
	cfg.Telemetry.ServiceName = " "

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Remote.InitMethod != "POST" {
		t.Errorf("Expected POST, got %q", cfg.Remote.InitMethod)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Telemetry.ServiceName != "polis-matrix" {
		t.Errorf("Unexpected service name %q", cfg.Telemetry.ServiceName)
	}
}
