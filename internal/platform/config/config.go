// Package config provides environment-based configuration.
//
// Loads from .env file (godotenv), maps to Config struct via go-simpler/env
// struct tags. Validates required fields and timing bounds.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	ServerURL string `env:"SERVER_URL" default:"http://localhost:8080"`
	// WebsocketURL overrides the derived ws endpoint; empty means derive it
	// from ServerURL (https becomes wss).
	WebsocketURL string `env:"WEBSOCKET_URL"`
	StatusPort   string `env:"STATUS_PORT" default:"9090"`
	LogLevel     string `env:"LOG_LEVEL" default:"info"`
	LogFormat    string `env:"LOG_FORMAT" default:"text"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
	HeartbeatTimeout  time.Duration `env:"HEARTBEAT_TIMEOUT" default:"5s"`

	ReconnectBaseDelay   time.Duration `env:"RECONNECT_BASE_DELAY" default:"1s"`
	ReconnectMaxBackoff  time.Duration `env:"RECONNECT_MAX_BACKOFF" default:"30s"`
	ReconnectMaxAttempts int           `env:"RECONNECT_MAX_ATTEMPTS" default:"5"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.ServerURL == "" {
		return errors.New("SERVER_URL is required")
	}
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("SERVER_URL must be an absolute http(s) URL, got %q", cfg.ServerURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("SERVER_URL scheme must be http or https, got %q", u.Scheme)
	}

	if cfg.WebsocketURL != "" {
		wu, err := url.Parse(cfg.WebsocketURL)
		if err != nil || (wu.Scheme != "ws" && wu.Scheme != "wss") {
			return fmt.Errorf("WEBSOCKET_URL must be a ws(s) URL, got %q", cfg.WebsocketURL)
		}
	}

	if cfg.HeartbeatInterval <= 0 {
		return errors.New("HEARTBEAT_INTERVAL must be positive")
	}
	if cfg.HeartbeatTimeout <= 0 || cfg.HeartbeatTimeout >= cfg.HeartbeatInterval {
		return errors.New("HEARTBEAT_TIMEOUT must be positive and shorter than HEARTBEAT_INTERVAL")
	}

	if cfg.ReconnectBaseDelay <= 0 {
		return errors.New("RECONNECT_BASE_DELAY must be positive")
	}
	if cfg.ReconnectMaxBackoff < cfg.ReconnectBaseDelay {
		return errors.New("RECONNECT_MAX_BACKOFF must be at least RECONNECT_BASE_DELAY")
	}
	if cfg.ReconnectMaxAttempts < 1 {
		return errors.New("RECONNECT_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}
