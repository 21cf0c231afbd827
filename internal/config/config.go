// Package config loads weft's tool-level configuration. Workflow
// behavior (auto-commit, parallel settings) lives in the task file;
// this package covers what doesn't belong there: the agent command,
// retry policy, logging, and display tuning. Sources are layered:
// defaults, then an optional .weft/config.yaml, then WEFT_* env vars.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete tool configuration.
type Config struct {
	Agent   AgentConfig   `mapstructure:"agent"`
	Logging LoggingConfig `mapstructure:"logging"`
	Display DisplayConfig `mapstructure:"display"`
}

// AgentConfig controls the external agent invocation.
type AgentConfig struct {
	// Command is the agent binary to run.
	Command string `mapstructure:"command"`
	// MaxAttempts is how many times a failed run is tried.
	MaxAttempts int `mapstructure:"max_attempts"`
	// RetryDelay is the wait between attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// Timeout bounds a single agent run. Zero means unlimited.
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig controls run logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// DisplayConfig controls the live progress display.
type DisplayConfig struct {
	// RefreshInterval is the re-render period while a batch runs.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Agent: AgentConfig{
			Command:     "claude",
			MaxAttempts: 3,
			RetryDelay:  5 * time.Second,
			Timeout:     30 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
		Display: DisplayConfig{RefreshInterval: 250 * time.Millisecond},
	}
}

// Load reads configuration for the given project root. A missing
// config file is fine; defaults and environment variables still apply.
func Load(root string) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("agent.command", def.Agent.Command)
	v.SetDefault("agent.max_attempts", def.Agent.MaxAttempts)
	v.SetDefault("agent.retry_delay", def.Agent.RetryDelay)
	v.SetDefault("agent.timeout", def.Agent.Timeout)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("display.refresh_interval", def.Display.RefreshInterval)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if root != "" {
		v.AddConfigPath(filepath.Join(root, ".weft"))
	}

	v.SetEnvPrefix("WEFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
