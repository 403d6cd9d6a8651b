package cli

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/harun/hive/pkg/agent"
	"github.com/harun/hive/pkg/catalog"
	"github.com/harun/hive/pkg/gateway"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusSecret = "status-secret-123456"

func newGateway(t *testing.T) *httptest.Server {
	t.Helper()

	runner, err := agent.NewRunner(agent.Config{Provider: &fakeProvider{}, Logger: zerolog.Nop()})
	require.NoError(t, err)
	agents, err := catalog.Demo(catalog.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	server, err := gateway.NewServer(gateway.Config{
		SharedSecret: statusSecret,
		TickInterval: -1,
		Runner:       runner,
		Agents:       agents,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestStatusCommand(t *testing.T) {
	t.Run("command exists", func(t *testing.T) {
		found := false
		for _, c := range GetRootCmd().Commands() {
			if c.Name() == "status" {
				found = true
				break
			}
		}
		assert.True(t, found, "status command should exist")
	})

	t.Run("reports a stopped gateway", func(t *testing.T) {
		ts := httptest.NewServer(nil)
		url := ts.URL
		ts.Close()
		path := writeConfig(t, "")

		out, _, err := execute("", "status", "--config", path, "--url", url)

		require.NoError(t, err)
		assert.Equal(t, "Status: stopped\n", out)
	})

	t.Run("reports a running gateway and its clients", func(t *testing.T) {
		ts := newGateway(t)
		path := writeConfig(t, "gateway:\n  shared_secret: "+statusSecret+"\n")

		out, _, err := execute("", "status", "--config", path, "--url", ts.URL+"/")

		require.NoError(t, err)
		assert.Contains(t, out, "Status: running")
		assert.Contains(t, out, "Address: "+ts.URL+"\n")
		assert.Contains(t, out, "Clients: 0")
	})

	t.Run("fails with the wrong secret", func(t *testing.T) {
		ts := newGateway(t)
		path := writeConfig(t, "gateway:\n  shared_secret: wrong-secret-1234567\n")

		_, _, err := execute("", "status", "--config", path, "--url", ts.URL)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("skips clients without a secret", func(t *testing.T) {
		ts := newGateway(t)
		path := writeConfig(t, "")

		out, _, err := execute("", "status", "--config", path, "--url", ts.URL)

		require.NoError(t, err)
		assert.Contains(t, out, "Status: running")
		assert.NotContains(t, out, "Clients:")
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			assert.Equal(t, tt.expected, result)
		})
	}
}
