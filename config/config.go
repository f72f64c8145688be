// Package config loads environment variables and provides a typed Config used across the client.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required server settings, use ValidateServerReady.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	// Chat backend
	BaseURL   string
	APIPrefix string
	WSURL     string

	// Local HTTP surface (health/status/metrics)
	HTTPAddr string

	// Storage
	DataDir string

	// TokenKey is an optional base64-encoded 32-byte AES key. When set, the
	// auth token is encrypted at rest in the credential store.
	TokenKey string

	// RelaxedTimeouts widens the per-request deadline from 10s to 15s.
	RelaxedTimeouts bool

	// TypingDebounce is the minimum gap between outbound typing signals.
	TypingDebounce time.Duration
}

// Load reads environment variables and applies defaults. It doesn't fail if the
// server URL is missing; use ValidateServerReady() when you require a backend.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.BaseURL = strings.TrimRight(os.Getenv("CHAT_SERVER_URL"), "/")

	cfg.APIPrefix = os.Getenv("CHAT_API_PREFIX")
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if !strings.HasPrefix(cfg.APIPrefix, "/") {
		cfg.APIPrefix = "/" + cfg.APIPrefix
	}

	cfg.WSURL = strings.TrimRight(os.Getenv("CHAT_WS_URL"), "/")
	if cfg.WSURL == "" && cfg.BaseURL != "" {
		// Derive ws:// or wss:// from the http base when not set explicitly.
		switch {
		case strings.HasPrefix(cfg.BaseURL, "https://"):
			cfg.WSURL = "wss://" + strings.TrimPrefix(cfg.BaseURL, "https://")
		case strings.HasPrefix(cfg.BaseURL, "http://"):
			cfg.WSURL = "ws://" + strings.TrimPrefix(cfg.BaseURL, "http://")
		}
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	cfg.TokenKey = os.Getenv("CHAT_TOKEN_KEY")
	cfg.RelaxedTimeouts = os.Getenv("CHAT_RELAXED_TIMEOUTS") == "1"

	cfg.TypingDebounce = 2 * time.Second
	if v := os.Getenv("CHAT_TYPING_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CHAT_TYPING_DEBOUNCE: %w", err)
		}
		cfg.TypingDebounce = d
	}

	return cfg, nil
}

// ValidateServerReady checks required fields for talking to a chat backend.
func (c *Config) ValidateServerReady() error {
	if c.BaseURL == "" {
		return fmt.Errorf("missing chat env: require CHAT_SERVER_URL")
	}
	if c.WSURL == "" {
		return fmt.Errorf("cannot derive websocket url: set CHAT_WS_URL or use an http(s) CHAT_SERVER_URL")
	}
	return nil
}
