package cli

import (
	"path/filepath"
	"testing"

	"github.com/harun/hive/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		out, _, err := execute("", "configure", "--help")

		require.NoError(t, err)
		assert.Contains(t, out, "interactive configuration wizard")
	})

	t.Run("writes the answers to the config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "hive.yaml")

		out, _, err := execute("anthropic\nsk-ant-test-key\nclaude-sonnet-4-5\nwarn\n", "configure", "--config", path)

		require.NoError(t, err)
		assert.Contains(t, out, "Configuration saved to: "+path)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "anthropic", cfg.Provider.Provider)
		assert.Equal(t, "sk-ant-test-key", cfg.Provider.APIKey)
		assert.Equal(t, "claude-sonnet-4-5", cfg.Model)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 8080, cfg.Gateway.Port)
	})

	t.Run("starts from the existing file", func(t *testing.T) {
		path := writeConfig(t, "model: gpt-4o-mini\n")

		_, _, err := execute("\n\n\n\n", "configure", "--config", path)

		require.NoError(t, err)
		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "openai", cfg.Provider.Provider)
		assert.Equal(t, "sk-test-key-1234", cfg.Provider.APIKey)
		assert.Equal(t, "gpt-4o-mini", cfg.Model)
		assert.Equal(t, "error", cfg.Logging.Level)
	})

	t.Run("fails when input ends early", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hive.yaml")

		_, _, err := execute("", "configure", "--config", path)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration failed")
	})
}
