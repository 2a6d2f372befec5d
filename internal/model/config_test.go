package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 6001, cfg.WebSockets.Port)
	assert.Equal(t, "http://localhost:8000/api", cfg.API.BaseURL)
	assert.True(t, cfg.Reconnect.Enabled)
	assert.Equal(t, 8, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoadConfigLayering(t *testing.T) {
	path := writeConfig(t, `
websockets:
  host: file.example.com
  key: app-key
api:
  base_url: https://file.example.com/api
`)

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := LoadConfig(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "file.example.com", cfg.WebSockets.Host)
		assert.Equal(t, "app-key", cfg.WebSockets.Key)
		assert.Equal(t, 6001, cfg.WebSockets.Port)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("GGCRAFT_WEBSOCKETS_HOST", "env.example.com")
		cfg, err := LoadConfig(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "env.example.com", cfg.WebSockets.Host)
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("GGCRAFT_WEBSOCKETS_HOST", "env.example.com")
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("ws-host", "", "")
		flags.String("api-url", "", "")
		require.NoError(t, flags.Parse([]string{"--ws-host=flag.example.com"}))

		cfg, err := LoadConfig(path, flags)
		require.NoError(t, err)
		assert.Equal(t, "flag.example.com", cfg.WebSockets.Host)
		assert.Equal(t, "https://file.example.com/api", cfg.API.BaseURL)
	})
}

func TestLoadConfigRejectsBadStorage(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		path := writeConfig(t, "storage:\n  driver: mongo\n")
		_, err := LoadConfig(path, nil)
		assert.ErrorContains(t, err, "unknown storage driver")
	})

	t.Run("redis without url", func(t *testing.T) {
		path := writeConfig(t, "storage:\n  driver: Redis\n")
		_, err := LoadConfig(path, nil)
		assert.ErrorContains(t, err, "redis_url")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "storage: [\n")
		_, err := LoadConfig(path, nil)
		assert.Error(t, err)
	})
}

func TestSaveConfigIsReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	cfg.WebSockets.Host = "saved.example.com"
	cfg.Reconnect.MaxAttempts = 3

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "saved.example.com", loaded.WebSockets.Host)
	assert.Equal(t, 3, loaded.Reconnect.MaxAttempts)
}

func TestAuthEndpoint(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://ggcraft.example.com/api", "https://ggcraft.example.com/api/broadcasting/auth"},
		{"https://ggcraft.example.com/api/", "https://ggcraft.example.com/api/broadcasting/auth"},
		{"https://ggcraft.example.com", "https://ggcraft.example.com/api/broadcasting/auth"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			assert.Equal(t, tt.want, APIConfig{BaseURL: tt.base}.AuthEndpoint())
		})
	}
}

func TestWebSocketURL(t *testing.T) {
	plain := WebSocketConfig{Host: "localhost", Port: 6001, Key: "local", Scheme: "http"}
	assert.Equal(t, "ws://localhost:6001/app/local", plain.URL())

	secure := WebSocketConfig{Host: "push.example.com", Port: 443, Key: "k", Scheme: "https"}
	assert.Equal(t, "wss://push.example.com:443/app/k", secure.URL())
}

func TestReconnectIntervals(t *testing.T) {
	var zero ReconnectConfig
	assert.Equal(t, time.Second, zero.InitialInterval())
	assert.Equal(t, 30*time.Second, zero.MaxInterval())

	set := ReconnectConfig{InitialIntervalMs: 250, MaxIntervalSec: 5}
	assert.Equal(t, 250*time.Millisecond, set.InitialInterval())
	assert.Equal(t, 5*time.Second, set.MaxInterval())
}
