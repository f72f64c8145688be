package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHAT_SERVER_URL", "")
	t.Setenv("CHAT_API_PREFIX", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("DATA_DIR", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIPrefix != "/api/v1" {
		t.Errorf("APIPrefix = %q, want /api/v1", cfg.APIPrefix)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q, want data", cfg.DataDir)
	}
	if cfg.TypingDebounce != 2*time.Second {
		t.Errorf("TypingDebounce = %v, want 2s", cfg.TypingDebounce)
	}
}

func TestLoadDerivesWebsocketURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		ws      string
		wantWS  string
	}{
		{name: "https to wss", base: "https://chat.example.com", wantWS: "wss://chat.example.com"},
		{name: "http to ws", base: "http://localhost:9000", wantWS: "ws://localhost:9000"},
		{name: "explicit ws wins", base: "https://chat.example.com", ws: "wss://push.example.com", wantWS: "wss://push.example.com"},
		{name: "trailing slash trimmed", base: "http://localhost:9000/", wantWS: "ws://localhost:9000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CHAT_SERVER_URL", tt.base)
			t.Setenv("CHAT_WS_URL", tt.ws)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if cfg.WSURL != tt.wantWS {
				t.Errorf("WSURL = %q, want %q", cfg.WSURL, tt.wantWS)
			}
		})
	}
}

func TestValidateServerReady(t *testing.T) {
	t.Setenv("CHAT_SERVER_URL", "http://localhost:9000")
	t.Setenv("CHAT_WS_URL", "")
	cfg, _ := Load()
	if err := cfg.ValidateServerReady(); err != nil {
		t.Errorf("expected valid server config, got %v", err)
	}

	t.Setenv("CHAT_SERVER_URL", "")
	cfg, _ = Load()
	if err := cfg.ValidateServerReady(); err == nil {
		t.Errorf("expected error for missing CHAT_SERVER_URL")
	}
}

func TestRelaxedTimeouts(t *testing.T) {
	t.Setenv("CHAT_RELAXED_TIMEOUTS", "1")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.RelaxedTimeouts {
		t.Errorf("RelaxedTimeouts = false, want true")
	}
}
