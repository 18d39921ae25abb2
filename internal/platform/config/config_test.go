package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, "9090", cfg.StatusPort)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, time.Second, cfg.ReconnectBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.ReconnectMaxBackoff)
	assert.Equal(t, 5, cfg.ReconnectMaxAttempts)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_URL", "https://sprint.example.com")
	t.Setenv("HEARTBEAT_INTERVAL", "10s")
	t.Setenv("HEARTBEAT_TIMEOUT", "2s")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://sprint.example.com", cfg.ServerURL)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 8, cfg.ReconnectMaxAttempts)
}

func TestValidate_RejectsBadServerURL(t *testing.T) {
	t.Setenv("SERVER_URL", "not a url")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SERVER_URL", "ftp://example.com")
	_, err = Load()
	assert.Error(t, err)
}

func TestValidate_RejectsBadWebsocketURL(t *testing.T) {
	t.Setenv("WEBSOCKET_URL", "http://example.com")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_TimeoutMustBeShorterThanInterval(t *testing.T) {
	t.Setenv("HEARTBEAT_INTERVAL", "5s")
	t.Setenv("HEARTBEAT_TIMEOUT", "5s")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_BackoffBounds(t *testing.T) {
	t.Setenv("RECONNECT_BASE_DELAY", "10s")
	t.Setenv("RECONNECT_MAX_BACKOFF", "1s")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("RECONNECT_BASE_DELAY", "1s")
	t.Setenv("RECONNECT_MAX_BACKOFF", "30s")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "0")
	_, err = Load()
	assert.Error(t, err)
}
