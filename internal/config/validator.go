package config

import (
	"fmt"
	"slices"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

var (
	validProviders = []string{"openai", "anthropic"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// ValidateProvider validates a provider name
func (v *Validator) ValidateProvider(provider string) error {
	if slices.Contains(validProviders, provider) {
		return nil
	}
	return fmt.Errorf("invalid provider: %s (must be one of: %s)", provider, strings.Join(validProviders, ", "))
}

// ValidateAPIKey validates an API key format. Keys for a custom base URL
// are not checked.
func (v *Validator) ValidateAPIKey(key, provider, baseURL string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}
	if baseURL != "" {
		return nil
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if strings.ContainsAny(model, " \t\n") {
		return fmt.Errorf("model name cannot contain whitespace: %q", model)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	if slices.Contains(validLogLevels, level) {
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLogLevels, ", "))
}

// ValidateGateway validates the gateway listener and limits
func (v *Validator) ValidateGateway(gw GatewayConfig) []error {
	var errs []error
	if gw.Port < 1 || gw.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway port must be between 1 and 65535, got %d", gw.Port))
	}
	if gw.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("gateway requests_per_minute must be >= 0"))
	}
	if gw.Burst < 0 {
		errs = append(errs, fmt.Errorf("gateway burst must be >= 0"))
	}
	if gw.SharedSecret != "" && len(gw.SharedSecret) < 16 {
		errs = append(errs, fmt.Errorf("gateway shared_secret must be at least 16 characters"))
	}
	return errs
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if err := v.ValidateProvider(cfg.Provider.Provider); err != nil {
		errs = append(errs, err)
	} else if err := v.ValidateAPIKey(cfg.Provider.APIKey, cfg.Provider.Provider, cfg.Provider.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Provider.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("provider max_tokens must be >= 0"))
	}

	if err := v.ValidateModel(cfg.Model); err != nil {
		errs = append(errs, err)
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, v.ValidateGateway(cfg.Gateway)...)

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing sample_ratio must be between 0 and 1, got %g", cfg.Tracing.SampleRatio))
	}

	return errs
}
