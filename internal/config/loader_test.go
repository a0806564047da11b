package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderLoad(t *testing.T) {
	t.Run("returns defaults when config file is absent", func(t *testing.T) {
		loader := NewLoader(filepath.Join(t.TempDir(), "orchid.json"))

		cfg, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, "anthropic:claude-sonnet-4", cfg.Model)
		assert.NotEmpty(t, cfg.DataDir)
		assert.NotEmpty(t, cfg.TraceDir)
		assert.NotEmpty(t, cfg.Logging.File)
	})

	t.Run("loads values from config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "orchid.json")
		content := `{
			"model": "openai:gpt-5.2",
			"skills_dir": "/opt/skills",
			"run": {"max_steps": 12, "strict_output": true},
			"compaction": {"threshold_tokens": 2048, "keep_recent": 3}
		}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)

		assert.Equal(t, "openai:gpt-5.2", cfg.Model)
		assert.Equal(t, "/opt/skills", cfg.SkillsDir)
		assert.Equal(t, 12, cfg.Run.MaxSteps)
		assert.True(t, cfg.Run.StrictOutput)
		assert.Equal(t, 2048, cfg.Compaction.ThresholdTokens)
		assert.Equal(t, 3, cfg.Compaction.KeepRecent)
	})

	t.Run("environment overrides model selection", func(t *testing.T) {
		t.Setenv("ORCHID_MODEL", "openai:gpt-5.2")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "orchid.json")).Load()
		require.NoError(t, err)
		assert.Equal(t, "openai:gpt-5.2", cfg.Model)
	})

	t.Run("rejects malformed config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "orchid.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

		_, err := NewLoader(path).Load()
		assert.Error(t, err)
	})
}
