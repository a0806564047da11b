package config

import (
	"fmt"
	"strings"
)

// Config represents the main orchid configuration
type Config struct {
	// Model is the reasoning model in "provider:model" form,
	// e.g. "anthropic:claude-sonnet-4" or "openai:gpt-5.2".
	Model string `json:"model" mapstructure:"model"`

	// SkillsDir is the skill source directory
	SkillsDir string `json:"skills_dir" mapstructure:"skills_dir"`

	// TraceDir is where per-run trace artifacts are written
	TraceDir string `json:"trace_dir" mapstructure:"trace_dir"`

	// DataDir is the base data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Run configures the orchestrator decision loop
	Run RunConfig `json:"run" mapstructure:"run"`

	// Compaction configures run-context compaction
	Compaction CompactionConfig `json:"compaction" mapstructure:"compaction"`

	// Capabilities configures the built-in capabilities
	Capabilities CapabilitiesConfig `json:"capabilities" mapstructure:"capabilities"`

	// Providers holds credentials for reasoning providers
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`

	// Logging configures the process logger
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// RunConfig bounds a single orchestrator run
type RunConfig struct {
	// MaxSteps is the global decision-step ceiling for a run
	MaxSteps int `json:"max_steps" mapstructure:"max_steps"`

	// StrictOutput upgrades skill output schema mismatches from
	// warnings to activation failures
	StrictOutput bool `json:"strict_output" mapstructure:"strict_output"`
}

// CompactionConfig controls run-context compaction
type CompactionConfig struct {
	// ThresholdTokens is the estimated size at which compaction triggers
	ThresholdTokens int `json:"threshold_tokens" mapstructure:"threshold_tokens"`

	// KeepRecent is the number of newest entries never folded
	KeepRecent int `json:"keep_recent" mapstructure:"keep_recent"`
}

// CapabilitiesConfig configures built-in capabilities
type CapabilitiesConfig struct {
	// SearchAPIKey authenticates the web_search capability
	SearchAPIKey string `json:"search_api_key" mapstructure:"search_api_key"`

	// FetchMaxBytes caps fetch_url response bodies
	FetchMaxBytes int `json:"fetch_max_bytes" mapstructure:"fetch_max_bytes"`

	// CallTimeoutSeconds is the per-call capability timeout
	CallTimeoutSeconds int `json:"call_timeout_seconds" mapstructure:"call_timeout_seconds"`
}

// ProvidersConfig holds reasoning provider credentials
type ProvidersConfig struct {
	AnthropicAPIKey string `json:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string `json:"openai_api_key" mapstructure:"openai_api_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Model:     "anthropic:claude-sonnet-4",
		SkillsDir: "skills",
		Run: RunConfig{
			MaxSteps: 50,
		},
		Compaction: CompactionConfig{
			ThresholdTokens: 8192,
			KeepRecent:      6,
		},
		Capabilities: CapabilitiesConfig{
			FetchMaxBytes:      64 * 1024,
			CallTimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}

// SplitModel splits the "provider:model" string into its parts.
func (c *Config) SplitModel() (provider, model string, err error) {
	parts := strings.SplitN(c.Model, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("model must be in provider:model form, got %q", c.Model)
	}
	return parts[0], parts[1], nil
}
