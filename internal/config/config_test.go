package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"HOST", "PORT", "TOKEN", "SIMULATOR_MODE", "LOG_LEVEL", "AGENT_STALE_AFTER",
		"ACTION_RATE_LIMIT", "ACTION_RATE_BURST", "SHUTDOWN_TIMEOUT", "REDIS_URL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "8787")
	t.Setenv("TOKEN", "default-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Addr() != "0.0.0.0:8787" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
	if cfg.Token != DefaultToken {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.SimulatorMode {
		t.Error("SimulatorMode should default to false")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.AgentStaleAfter != 0 {
		t.Errorf("AgentStaleAfter = %v", cfg.AgentStaleAfter)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
	if cfg.ActionRateLimit != 50 || cfg.ActionRateBurst != 20 {
		t.Errorf("rate = %v/%d", cfg.ActionRateLimit, cfg.ActionRateBurst)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("TOKEN", "s3cret")
	t.Setenv("SIMULATOR_MODE", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("AGENT_STALE_AFTER", "2m")
	t.Setenv("ACTION_RATE_LIMIT", "0.5")
	t.Setenv("ACTION_RATE_BURST", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" || cfg.Token != "s3cret" || !cfg.SimulatorMode {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.AgentStaleAfter != 2*time.Minute {
		t.Errorf("AgentStaleAfter = %v", cfg.AgentStaleAfter)
	}
	if cfg.ActionRateLimit != 0.5 || cfg.ActionRateBurst != 3 {
		t.Errorf("rate = %v/%d", cfg.ActionRateLimit, cfg.ActionRateBurst)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad duration", "AGENT_STALE_AFTER", "soon"},
		{"bad shutdown", "SHUTDOWN_TIMEOUT", "5"},
		{"bad burst", "ACTION_RATE_BURST", "many"},
		{"bad limit", "ACTION_RATE_LIMIT", "fast"},
		{"empty token", "TOKEN", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TOKEN", "x")
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.val)
			}
		})
	}
}
