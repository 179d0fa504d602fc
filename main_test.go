package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/tiltlink/config"
)

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName != "tiltlink" {
		t.Errorf("Expected app name tiltlink, got %s", AppName)
	}
}

// runLoadConfig runs the CLI with args and returns the resolved config
func runLoadConfig(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()

	var cfg config.Config
	var loadErr error

	cmd := newCommand()
	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		cfg, loadErr = loadConfig(c)
		return nil
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{AppName}, args...)))
	return cfg, loadErr
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := runLoadConfig(t)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Ngrok.Enabled)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiltlink.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 4000\nhost = \"127.0.0.1\"\n\n[log]\nlevel = \"warn\"\n"), 0o644))

	cfg, err := runLoadConfig(t, "--config", path, "--port", "5000")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_EnvSources(t *testing.T) {
	t.Setenv("PORT", "8123")
	t.Setenv("NGROK_ENABLED", "true")
	t.Setenv("NGROK_AUTH_TOKEN", "secret")

	cfg, err := runLoadConfig(t)
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Server.Port)
	assert.True(t, cfg.Ngrok.Enabled)
	assert.Equal(t, "secret", cfg.Ngrok.AuthToken)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := runLoadConfig(t, "--ngrok")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = runLoadConfig(t, "--log-format", "xml")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestCommands(t *testing.T) {
	cmd := newCommand()

	names := make([]string, 0, len(cmd.Commands))
	for _, sub := range cmd.Commands {
		names = append(names, sub.Name)
	}
	assert.ElementsMatch(t, []string{"serve", "mcp"}, names)
	assert.NotNil(t, cmd.Action, "serve should be the default action")
}

func TestLoopbackURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"", "http://localhost:3000"},
		{"0.0.0.0", "http://localhost:3000"},
		{"127.0.0.1", "http://127.0.0.1:3000"},
		{"::1", "http://[::1]:3000"},
	}

	for _, tt := range tests {
		cfg := config.Default()
		cfg.Server.Host = tt.host
		assert.Equal(t, tt.want, loopbackURL(cfg), "host %q", tt.host)
	}
}

func TestAppHandler(t *testing.T) {
	cfg := config.Default()
	cfg.Server.StaticDirs = nil

	a := newApp(cfg, "http://localhost:3000")
	server := httptest.NewServer(a.handler)
	defer server.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.EqualValues(t, 0, body["sessions"])
	})

	t.Run("mcp rejects GET", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/mcp")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("mcp lists tools", func(t *testing.T) {
		body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
		resp, err := http.Post(server.URL+"/mcp", "application/json", body)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var rpc map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpc))
		assert.Contains(t, rpc, "result")
	})
}

func TestServerAvailable(t *testing.T) {
	cfg := config.Default()
	cfg.Server.StaticDirs = nil
	server := httptest.NewServer(newApp(cfg, "http://localhost:3000").handler)
	defer server.Close()

	assert.True(t, serverAvailable(context.Background(), server.URL))

	server.Close()
	assert.False(t, serverAvailable(context.Background(), server.URL))
}
