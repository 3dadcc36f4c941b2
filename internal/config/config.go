// Package config loads html2json settings from the environment.
//
// Every variable carries the HTML2JSON_ prefix; nested groups add their own
// segment (HTML2JSON_TIMEOUT, HTML2JSON_LOG_LEVEL, HTML2JSON_SINK_DSN,
// HTML2JSON_METRICS_PUSHGATEWAY_URL, ...). Command-line flags override the
// loaded values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix.
const Prefix = "HTML2JSON"

// Config holds all runtime configuration.
type Config struct {
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"30s"`
	MaxHTMLBytes int64         `envconfig:"MAX_HTML_BYTES" default:"104857600"`
	MaxSpecBytes int64         `envconfig:"MAX_SPEC_BYTES" default:"1048576"`
	UserAgent    string        `envconfig:"USER_AGENT" default:"html2json/1.0"`

	Workers        int `envconfig:"WORKERS" default:"4"`
	RegexSizeLimit int `envconfig:"REGEX_SIZE_LIMIT" default:"1000000"`

	Log     LogConfig
	Metrics MetricsConfig
	Sink    SinkConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Backend        string `envconfig:"BACKEND" default:"none"` // none|datadog|pushgateway
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL"`
	Tags           string `envconfig:"TAGS"` // "k:v,k2:v2"
	Job            string `envconfig:"JOB" default:"html2json"`
}

// SinkConfig selects where extracted results are stored, if anywhere.
type SinkConfig struct {
	Kind  string `envconfig:"KIND"` // ""|sqlite|postgres|mssql
	DSN   string `envconfig:"DSN"`
	Table string `envconfig:"TABLE" default:"extractions"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no variable is set.
func Default() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		MaxHTMLBytes:   100 << 20,
		MaxSpecBytes:   1 << 20,
		UserAgent:      "html2json/1.0",
		Workers:        4,
		RegexSizeLimit: 1_000_000,
		Log:            LogConfig{Level: "info"},
		Metrics:        MetricsConfig{Backend: "none", Job: "html2json"},
		Sink:           SinkConfig{Table: "extractions"},
	}
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Issue is one validation finding.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// Validate checks cfg for values that cannot work. Warnings describe settings
// that will be ignored.
func Validate(cfg *Config) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Timeout <= 0 {
		add(SeverityError, "timeout", "must be positive, got %s", cfg.Timeout)
	}
	if cfg.MaxHTMLBytes <= 0 {
		add(SeverityError, "max_html_bytes", "must be positive, got %d", cfg.MaxHTMLBytes)
	}
	if cfg.MaxSpecBytes <= 0 {
		add(SeverityError, "max_spec_bytes", "must be positive, got %d", cfg.MaxSpecBytes)
	}
	if cfg.Workers < 1 {
		add(SeverityError, "workers", "must be at least 1, got %d", cfg.Workers)
	}
	if cfg.RegexSizeLimit < 1 {
		add(SeverityError, "regex_size_limit", "must be at least 1, got %d", cfg.RegexSizeLimit)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		add(SeverityError, "log.level", "unknown level %q", cfg.Log.Level)
	}

	switch strings.ToLower(cfg.Metrics.Backend) {
	case "", "none", "datadog":
		if cfg.Metrics.PushgatewayURL != "" {
			add(SeverityWarn, "metrics.pushgateway_url", "ignored unless metrics backend is pushgateway")
		}
	case "pushgateway", "prom", "prometheus":
		if cfg.Metrics.PushgatewayURL == "" {
			add(SeverityError, "metrics.pushgateway_url", "required for the pushgateway backend")
		}
	default:
		add(SeverityError, "metrics.backend", "unknown backend %q", cfg.Metrics.Backend)
	}

	switch strings.ToLower(cfg.Sink.Kind) {
	case "":
		if cfg.Sink.DSN != "" {
			add(SeverityWarn, "sink.dsn", "ignored because no sink kind is set")
		}
	case "sqlite", "postgres", "mssql":
		if cfg.Sink.DSN == "" {
			add(SeverityError, "sink.dsn", "required for sink %q", cfg.Sink.Kind)
		}
		if cfg.Sink.Table == "" {
			add(SeverityError, "sink.table", "must not be empty")
		}
	default:
		add(SeverityError, "sink.kind", "unknown sink %q", cfg.Sink.Kind)
	}

	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
