package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file
func (l *Loader) Load() (*Config, error) {
	// Determine config path
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".orchid", "orchid.json")
	}

	// Setup viper
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// Read environment variables
	v.SetEnvPrefix("ORCHID")
	v.AutomaticEnv()

	cfg := DefaultConfig()

	// Missing config file is fine; env and defaults still apply
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Environment overrides for the fields used most in CI and scripts
	if model := v.GetString("model"); model != "" {
		cfg.Model = model
	}
	if key := v.GetString("anthropic_api_key"); key != "" {
		cfg.Providers.AnthropicAPIKey = key
	}
	if key := v.GetString("openai_api_key"); key != "" {
		cfg.Providers.OpenAIAPIKey = key
	}
	if key := v.GetString("search_api_key"); key != "" {
		cfg.Capabilities.SearchAPIKey = key
	}

	// Set data directory if not specified
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".orchid")
	}

	// Derived paths
	if cfg.TraceDir == "" {
		cfg.TraceDir = filepath.Join(cfg.DataDir, "runs")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "orchid.log")
	}

	return cfg, nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".orchid", "orchid.json")
}
