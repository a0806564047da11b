package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for errors that would prevent a run
func (c *Config) Validate() error {
	if c.Model == "" {
		return errors.New("model is required")
	}

	provider, _, err := c.SplitModel()
	if err != nil {
		return err
	}
	switch provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unsupported provider: %s", provider)
	}

	if c.SkillsDir == "" {
		return errors.New("skills_dir is required")
	}

	if c.Run.MaxSteps <= 0 {
		return fmt.Errorf("run.max_steps must be positive, got %d", c.Run.MaxSteps)
	}

	if c.Compaction.ThresholdTokens <= 0 {
		return fmt.Errorf("compaction.threshold_tokens must be positive, got %d", c.Compaction.ThresholdTokens)
	}
	if c.Compaction.KeepRecent < 0 {
		return fmt.Errorf("compaction.keep_recent must be non-negative, got %d", c.Compaction.KeepRecent)
	}

	if c.Capabilities.FetchMaxBytes <= 0 {
		return fmt.Errorf("capabilities.fetch_max_bytes must be positive, got %d", c.Capabilities.FetchMaxBytes)
	}
	if c.Capabilities.CallTimeoutSeconds <= 0 {
		return fmt.Errorf("capabilities.call_timeout_seconds must be positive, got %d", c.Capabilities.CallTimeoutSeconds)
	}

	return nil
}
