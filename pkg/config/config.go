// Package config provides configuration structures and loading logic for a
// pipeline run.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polisai/polis-matrix/internal/governance"
	"github.com/polisai/polis-matrix/pkg/domain"
	"github.com/polisai/polis-matrix/pkg/logging"
	"github.com/polisai/polis-matrix/pkg/telemetry"
)

// DefaultBaseURL is the public numbers service.
const DefaultBaseURL = "https://recruitment-test.investcloud.com/api/numbers"

// DefaultSize is the matrix dimension used when none is configured.
const DefaultSize = 1000

// Config holds the whole configuration for a run.
type Config struct {
	Remote    RemoteConfig    `yaml:"remote"`
	Run       RunConfig       `yaml:"run"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// RemoteConfig describes the numbers service and how hard to hit it.
type RemoteConfig struct {
	BaseURL           string        `yaml:"base_url"`
	InitMethod        string        `yaml:"init_method"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// RunConfig shapes a single pipeline run.
type RunConfig struct {
	Size               int           `yaml:"size"`
	ConcurrentDatasets bool          `yaml:"concurrent_datasets"`
	FetchConcurrency   int           `yaml:"fetch_concurrency"`
	MultiplyWorkers    int           `yaml:"multiply_workers"`
	Timeout            time.Duration `yaml:"timeout"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// MetricsConfig holds the Prometheus listener. Empty disables it.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	timeouts := governance.DefaultTimeoutConfig()
	return &Config{
		Remote: RemoteConfig{
			BaseURL:        DefaultBaseURL,
			InitMethod:     "POST",
			RequestTimeout: timeouts.RequestTimeout,
		},
		Run: RunConfig{
			Size:    DefaultSize,
			Timeout: timeouts.RunTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName: telemetry.DefaultServiceName,
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is supplied by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("MATRIX_BASE_URL"); val != "" {
		cfg.Remote.BaseURL = val
	}
	if val := os.Getenv("MATRIX_SIZE"); val != "" {
		size, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: MATRIX_SIZE %q is not an integer", domain.ErrConfigInvalid, val)
		}
		cfg.Run.Size = size
	}
	if val := os.Getenv("MATRIX_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("MATRIX_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("MATRIX_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("MATRIX_METRICS_ADDR"); val != "" {
		cfg.Metrics.Address = val
	}
	return nil
}

// Validate checks the entire configuration and normalizes a few fields.
// Every failure wraps domain.ErrConfigInvalid.
func (c *Config) Validate() error {
	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("%w: remote configuration: %w", domain.ErrConfigInvalid, err)
	}
	if err := c.Run.Validate(); err != nil {
		return fmt.Errorf("%w: run configuration: %w", domain.ErrConfigInvalid, err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: logging configuration: %w", domain.ErrConfigInvalid, err)
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = telemetry.DefaultServiceName
	}
	if err := c.Timeouts().Validate(); err != nil {
		return fmt.Errorf("%w: timeouts: %w", domain.ErrConfigInvalid, err)
	}
	return nil
}

// Validate performs validation of the remote service configuration.
func (c *RemoteConfig) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url %q must be an absolute http or https URL", c.BaseURL)
	}

	method := strings.ToUpper(strings.TrimSpace(c.InitMethod))
	switch method {
	case "":
		c.InitMethod = "POST"
	case "GET", "POST":
		c.InitMethod = method
	default:
		return fmt.Errorf("init_method %q, supported methods: GET, POST", c.InitMethod)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	if c.Burst < 0 {
		return fmt.Errorf("burst must not be negative")
	}
	return nil
}

// Validate performs validation of the run configuration.
func (c *RunConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("size must be positive, got %d", c.Size)
	}
	if c.FetchConcurrency < 0 {
		return fmt.Errorf("fetch_concurrency must not be negative")
	}
	if c.MultiplyWorkers < 0 {
		return fmt.Errorf("multiply_workers must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// Validate performs validation of logging configuration.
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}
	level := strings.TrimSpace(strings.ToLower(c.Level))
	if !logging.ValidLevel(level) {
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}
	c.Level = level

	format := strings.TrimSpace(strings.ToLower(c.Format))
	switch format {
	case "":
		c.Format = "text"
	case "text", "json":
		c.Format = format
	default:
		return fmt.Errorf("invalid log format %q, supported formats: text, json", c.Format)
	}
	return nil
}

// Timeouts maps the configuration onto governance timeouts.
func (c *Config) Timeouts() governance.TimeoutConfig {
	return governance.TimeoutConfig{
		RequestTimeout: c.Remote.RequestTimeout,
		RunTimeout:     c.Run.Timeout,
	}
}

// RateLimit maps the configuration onto a governance rate limiter config.
func (c *Config) RateLimit() governance.RateLimiterConfig {
	return governance.RateLimiterConfig{
		RequestsPerSecond: c.Remote.RequestsPerSecond,
		BurstSize:         c.Remote.Burst,
	}
}
