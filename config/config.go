// Package config loads the metering engine configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/outlaylabs/outlay/types"
)

// Config holds the full engine configuration.
type Config struct {
	Ledger  LedgerConfig  `yaml:"ledger"`
	Markup  MarkupConfig  `yaml:"markup"`
	Worker  WorkerConfig  `yaml:"worker"`
	Rates   RatesConfig   `yaml:"rates"`
	Journal JournalConfig `yaml:"journal"`
	Webhook WebhookConfig `yaml:"webhook"`
	Logging LoggingConfig `yaml:"logging"`
}

// LedgerConfig holds the remote ledger service connection settings.
type LedgerConfig struct {
	BaseURL    string `yaml:"base_url"`
	Token      string `yaml:"token"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxRetries int    `yaml:"max_retries"`
}

// MarkupConfig holds the pricing markup applied to customer payments.
type MarkupConfig struct {
	Percent string `yaml:"percent"` // e.g. "25" or "12.5"
}

// WorkerConfig holds the chat completion vendor settings.
type WorkerConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// RatesConfig holds currency conversion settings. Static rates are
// decimal strings in units of local currency per 1 USD; when a base
// URL is set, rates are fetched from the service instead.
type RatesConfig struct {
	BaseURL string            `yaml:"base_url"`
	Static  map[string]string `yaml:"static"`
}

// JournalConfig holds the reconciliation journal settings.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// WebhookConfig holds the payment webhook settings.
type WebhookConfig struct {
	Listen          string   `yaml:"listen"`
	InternalDomains []string `yaml:"internal_domains"` // email domains excluded from seat counts
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Load reads configuration from a YAML file, expands ${VAR}
// references, applies defaults and validates.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Ledger.TimeoutSec <= 0 {
		c.Ledger.TimeoutSec = 10
	}
	if c.Ledger.MaxRetries <= 0 {
		c.Ledger.MaxRetries = 3
	}
	if c.Markup.Percent == "" {
		c.Markup.Percent = "0"
	}
	if c.Worker.DefaultModel == "" {
		c.Worker.DefaultModel = "gpt-4o-mini"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "outlay-journal.db"
	}
	if c.Webhook.Listen == "" {
		c.Webhook.Listen = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Ledger.BaseURL == "" {
		return fmt.Errorf("ledger.base_url is required")
	}
	if _, err := types.PercentFromString(c.Markup.Percent); err != nil {
		return fmt.Errorf("markup.percent %q: %w", c.Markup.Percent, err)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// ok
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	for code, rate := range c.Rates.Static {
		if strings.TrimSpace(rate) == "" {
			return fmt.Errorf("rates.static.%s is empty", code)
		}
	}
	return nil
}

// MarkupPercent parses the configured markup.
func (c *Config) MarkupPercent() (types.Percent, error) {
	return types.PercentFromString(c.Markup.Percent)
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
