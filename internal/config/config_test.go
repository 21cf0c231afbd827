package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Agent.Command != "claude" {
		t.Errorf("Agent.Command = %q, want %q", cfg.Agent.Command, "claude")
	}
	if cfg.Agent.MaxAttempts != 3 {
		t.Errorf("Agent.MaxAttempts = %d, want 3", cfg.Agent.MaxAttempts)
	}
	if cfg.Agent.RetryDelay != 5*time.Second {
		t.Errorf("Agent.RetryDelay = %v, want 5s", cfg.Agent.RetryDelay)
	}
	if cfg.Display.RefreshInterval != 250*time.Millisecond {
		t.Errorf("Display.RefreshInterval = %v, want 250ms", cfg.Display.RefreshInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".weft")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	doc := "agent:\n  command: mockagent\n  max_attempts: 5\nlogging:\n  level: debug\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(doc), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Agent.Command != "mockagent" {
		t.Errorf("Agent.Command = %q, want %q", cfg.Agent.Command, "mockagent")
	}
	if cfg.Agent.MaxAttempts != 5 {
		t.Errorf("Agent.MaxAttempts = %d, want 5", cfg.Agent.MaxAttempts)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.Agent.RetryDelay != 5*time.Second {
		t.Errorf("Agent.RetryDelay = %v, want default 5s", cfg.Agent.RetryDelay)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("WEFT_AGENT_COMMAND", "env-agent")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.Command != "env-agent" {
		t.Errorf("Agent.Command = %q, want env override", cfg.Agent.Command)
	}
}

func TestLoad_BadConfigFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".weft")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(root); err == nil {
		t.Error("Load() with malformed config should error")
	}
}
