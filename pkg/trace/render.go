package trace

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	contentCapJSON = 5000
	summaryPreview = 200
)

// RenderInfo carries run-level fields that belong in the rendered
// artifacts but not in the step log itself.
type RenderInfo struct {
	Scenario     string                 `json:"scenario,omitempty"`
	ScenarioPath string                 `json:"scenario_path,omitempty"`
	Model        string                 `json:"model"`
	Extra        map[string]interface{} `json:"-"`
}

// Save writes trace.json, trace.md, and metadata.json into runDir
func Save(runDir string, steps []Step, summary Summary, info RenderInfo) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	if err := writeTraceJSON(filepath.Join(runDir, "trace.json"), steps); err != nil {
		return err
	}
	if err := writeTraceMarkdown(filepath.Join(runDir, "trace.md"), steps, summary, info); err != nil {
		return err
	}
	if err := writeMetadata(filepath.Join(runDir, "metadata.json"), summary, info); err != nil {
		return err
	}

	return nil
}

func writeTraceJSON(path string, steps []Step) error {
	capped := make([]Step, len(steps))
	copy(capped, steps)
	for i := range capped {
		capped[i].Content = truncateUTF8(capped[i].Content, contentCapJSON)
	}

	data, err := json.MarshalIndent(capped, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}

	return writeAtomic(path, data)
}

func writeTraceMarkdown(path string, steps []Step, summary Summary, info RenderInfo) error {
	var b strings.Builder

	title := info.Scenario
	if title == "" {
		title = summary.RunID
	}
	fmt.Fprintf(&b, "# Trace: %s\n\n", title)
	fmt.Fprintf(&b, "**Model:** %s\n", info.Model)
	fmt.Fprintf(&b, "**Latency:** %.1fs\n", summary.ElapsedSeconds)
	fmt.Fprintf(&b, "**Steps:** %d\n\n---\n\n", summary.TotalSteps)

	for _, step := range steps {
		fmt.Fprintf(&b, "### Step %d: %s\n", step.Number, step.Type)
		if step.SkillName != "" {
			fmt.Fprintf(&b, "**Skill:** %s\n", step.SkillName)
		}
		b.WriteString("\n")

		// Long content goes behind a collapsible block
		if len(step.Content) > summaryPreview {
			fmt.Fprintf(&b, "<details>\n<summary>%s...</summary>\n\n", truncateUTF8(step.Content, summaryPreview))
			fmt.Fprintf(&b, "```\n%s\n```\n</details>\n", step.Content)
		} else {
			fmt.Fprintf(&b, "```\n%s\n```\n", step.Content)
		}
		b.WriteString("\n")
	}

	return writeAtomic(path, []byte(b.String()))
}

func writeMetadata(path string, summary Summary, info RenderInfo) error {
	metadata := map[string]interface{}{
		"run_id":              summary.RunID,
		"scenario":            info.Scenario,
		"scenario_path":       info.ScenarioPath,
		"model":               info.Model,
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
		"latency_seconds":     math.Round(summary.ElapsedSeconds*100) / 100,
		"total_steps":         summary.TotalSteps,
		"step_types":          summary.StepCounts,
		"capability_calls":    summary.CapabilityCalls,
		"capabilities_used":   summary.CapabilitiesUsed,
		"compaction_occurred": summary.CompactionOccurred,
		"skills_invoked":      summary.SkillsInvoked,
	}
	for key, value := range info.Extra {
		metadata[key] = value
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	return writeAtomic(path, data)
}

// writeAtomic writes via temp file and rename so readers never see a
// partial artifact
// truncateUTF8 caps s at limit bytes, backing up so a multi-byte rune
// is never split mid-sequence.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}
