// Package config handles configuration loading for agentflow.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for agentflow.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Bedrock   BedrockConfig   `mapstructure:"bedrock"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Control   ControlConfig   `mapstructure:"control"`
	State     StateConfig     `mapstructure:"state"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// BedrockConfig holds AWS Bedrock settings. When Enabled, the client
// authenticates through the AWS credential chain instead of an API key.
type BedrockConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

// DefaultsConfig holds default run limits.
type DefaultsConfig struct {
	// TurnBudget caps turns per task unless the task overrides it.
	TurnBudget int `mapstructure:"turn_budget"`
	// MaxIterations is the global run-loop ceiling.
	MaxIterations int `mapstructure:"max_iterations"`
}

// TimeoutsConfig holds per-call deadlines.
type TimeoutsConfig struct {
	Turn      time.Duration `mapstructure:"turn"`
	UserInput time.Duration `mapstructure:"user_input"`
}

// RetryConfig holds whole-flow retry settings.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

// ControlConfig holds control-directory settings.
type ControlConfig struct {
	// Dir is watched for a cancel file and a decisions.md instruction
	// file. Empty disables the watcher.
	Dir string `mapstructure:"dir"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// DBPath points at the checkpoint database. Empty means the
	// project-local default.
	DBPath string `mapstructure:"db_path"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (AGENTFLOW_*, ANTHROPIC_API_KEY)
// 2. Project config (.agentflow/config.yaml in current directory or parent)
// 3. User config (~/.config/agentflow/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("AGENTFLOW")
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("bedrock.region", "AWS_REGION")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("bedrock.enabled", cfg.Bedrock.Enabled)
	v.Set("bedrock.region", cfg.Bedrock.Region)
	v.Set("bedrock.profile", cfg.Bedrock.Profile)
	v.Set("defaults.turn_budget", cfg.Defaults.TurnBudget)
	v.Set("defaults.max_iterations", cfg.Defaults.MaxIterations)
	v.Set("timeouts.turn", cfg.Timeouts.Turn.String())
	v.Set("timeouts.user_input", cfg.Timeouts.UserInput.String())
	v.Set("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.Set("retry.backoff", cfg.Retry.Backoff.String())
	v.Set("control.dir", cfg.Control.Dir)
	v.Set("state.db_path", cfg.State.DBPath)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")

	v.SetDefault("bedrock.enabled", false)
	v.SetDefault("bedrock.region", "")
	v.SetDefault("bedrock.profile", "")

	v.SetDefault("defaults.turn_budget", 10)
	v.SetDefault("defaults.max_iterations", 1000)

	v.SetDefault("timeouts.turn", "5m")
	v.SetDefault("timeouts.user_input", "10m")

	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.backoff", "5s")

	v.SetDefault("control.dir", "")
	v.SetDefault("state.db_path", "")
}

// getUserConfigDir returns the XDG config directory for agentflow.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "agentflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "agentflow")
	}
	return filepath.Join(home, ".config", "agentflow")
}

// findProjectConfig searches for .agentflow/config.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".agentflow", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Defaults: DefaultsConfig{
			TurnBudget:    10,
			MaxIterations: 1000,
		},
		Timeouts: TimeoutsConfig{
			Turn:      5 * time.Minute,
			UserInput: 10 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 1,
			Backoff:     5 * time.Second,
		},
	}
}
