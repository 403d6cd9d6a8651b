package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "openai", cfg.Provider.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, -1, cfg.Run.MaxTurns)
	assert.True(t, cfg.Run.ExecuteTools)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestConfigValidate(t *testing.T) {
	t.Run("should require an API key", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no API key")
	})

	t.Run("should reject unknown providers", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Provider.Provider = "gemini"
		cfg.Provider.APIKey = "key"
		assert.Error(t, cfg.Validate())
	})

	t.Run("should accept a complete config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Provider.APIKey = "sk-test"
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider.APIKey = "sk-very-secret"
	cfg.Gateway.SharedSecret = "gateway-secret-value"

	out := cfg.String()

	assert.NotContains(t, out, "sk-very-secret")
	assert.NotContains(t, out, "gateway-secret-value")
	assert.Contains(t, out, "provider: openai")
	assert.Equal(t, "sk-very-secret", cfg.Provider.APIKey)
}

func TestLoggerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider.APIKey = "sk-abc"
	cfg.Logging.Level = "debug"

	lc := cfg.LoggerConfig()

	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.Console)
	assert.Contains(t, lc.Secrets, "sk-abc")
}
