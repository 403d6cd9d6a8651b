package config

import (
	"fmt"

	"github.com/harun/hive/internal/logger"
	"github.com/harun/hive/pkg/agent"
	"gopkg.in/yaml.v3"
)

// Config represents the hive configuration
type Config struct {
	// Provider selects the completion backend
	Provider agent.ProviderConfig `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is used for catalog agents that do not name one
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// Run defaults
	Run RunConfig `json:"run" yaml:"run" mapstructure:"run"`

	// CatalogPath points at a YAML agent catalog. Empty selects the built-in
	// demo catalog.
	CatalogPath string `json:"catalog_path" yaml:"catalog_path" mapstructure:"catalog_path"`

	// Data directory
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	Logging LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`
	Gateway GatewayConfig `json:"gateway" yaml:"gateway" mapstructure:"gateway"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
}

// RunConfig holds per-run defaults
type RunConfig struct {
	MaxTurns     int  `json:"max_turns" yaml:"max_turns" mapstructure:"max_turns"` // negative for unlimited
	ExecuteTools bool `json:"execute_tools" yaml:"execute_tools" mapstructure:"execute_tools"`
	Debug        bool `json:"debug" yaml:"debug" mapstructure:"debug"`
	Stream       bool `json:"stream" yaml:"stream" mapstructure:"stream"`

	// ValidateArguments checks tool arguments against their schemas before
	// invoking tools.
	ValidateArguments bool `json:"validate_arguments" yaml:"validate_arguments" mapstructure:"validate_arguments"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" mapstructure:"level"`
	File       string `json:"file" yaml:"file" mapstructure:"file"`
	AuditFile  string `json:"audit_file" yaml:"audit_file" mapstructure:"audit_file"`
	Pretty     bool   `json:"pretty" yaml:"pretty" mapstructure:"pretty"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" mapstructure:"max_backups"`
	Compress   bool   `json:"compress" yaml:"compress" mapstructure:"compress"`
	Redaction  bool   `json:"redaction" yaml:"redaction" mapstructure:"redaction"`

	RedactPatterns []string `json:"redact_patterns,omitempty" yaml:"redact_patterns,omitempty" mapstructure:"redact_patterns"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Host              string `json:"host" yaml:"host" mapstructure:"host"`
	Port              int    `json:"port" yaml:"port" mapstructure:"port"`
	SharedSecret      string `json:"shared_secret" yaml:"shared_secret" mapstructure:"shared_secret"`
	RequestsPerMinute int    `json:"requests_per_minute" yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int    `json:"burst" yaml:"burst" mapstructure:"burst"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	lc := logger.DefaultConfig()
	return &Config{
		Provider: agent.ProviderConfig{
			Provider: "openai",
		},
		Model: agent.DefaultModel,
		Run: RunConfig{
			MaxTurns:     -1,
			ExecuteTools: true,
		},
		Logging: LoggingConfig{
			Level:      lc.Level,
			Pretty:     lc.Pretty,
			MaxSizeMB:  lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			Compress:   lc.Compress,
			Redaction:  lc.Redaction,
		},
		Gateway: GatewayConfig{
			Host:              "127.0.0.1",
			Port:              8080,
			RequestsPerMinute: 30,
			Burst:             5,
		},
		Tracing: TracingConfig{
			ServiceName: "hive",
			SampleRatio: 1,
		},
	}
}

// LoggerConfig converts the logging section for internal/logger
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		Console:    true,
		Pretty:     c.Logging.Pretty,
		Redaction:  c.Logging.Redaction,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		Compress:   c.Logging.Compress,
		Patterns:   c.Logging.RedactPatterns,
		Secrets:    []string{c.Provider.APIKey, c.Gateway.SharedSecret},
	}
}

// String returns a YAML representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Provider.APIKey != "" {
		masked.Provider.APIKey = "***"
	}
	if masked.Gateway.SharedSecret != "" {
		masked.Gateway.SharedSecret = "***"
	}
	data, _ := yaml.Marshal(&masked)
	return string(data)
}

// Validate checks the settings every command needs
func (c *Config) Validate() error {
	switch c.Provider.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("invalid provider %q (must be: openai, anthropic)", c.Provider.Provider)
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("no API key configured for provider %s", c.Provider.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}
