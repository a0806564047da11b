package trace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func buildTestTrace() (*Recorder, []Step, Summary) {
	r := NewRecorder("run-render")
	r.Record(StepReasoning, "", "short plan", nil)
	r.Record(StepCapabilityCall, "research-analyst", strings.Repeat("long content ", 50), map[string]interface{}{"capability": "web_search"})
	r.Record(StepFinalOutput, "", "the answer", nil)
	return r, r.Steps(), r.Finalize()
}

func TestSave(t *testing.T) {
	_, steps, summary := buildTestTrace()
	runDir := filepath.Join(t.TempDir(), "runs", summary.RunID)

	err := Save(runDir, steps, summary, RenderInfo{
		Scenario: "release-summary",
		Model:    "anthropic:claude-sonnet-4",
		Extra:    map[string]interface{}{"expectations_met": 2},
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Run("trace.json", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(runDir, "trace.json"))
		if err != nil {
			t.Fatalf("reading trace.json: %v", err)
		}

		var decoded []Step
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("trace.json is not valid JSON: %v", err)
		}
		if len(decoded) != 3 {
			t.Errorf("expected 3 steps, got %d", len(decoded))
		}
		if decoded[0].Type != StepReasoning {
			t.Errorf("unexpected first step type: %s", decoded[0].Type)
		}
	})

	t.Run("trace.md", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(runDir, "trace.md"))
		if err != nil {
			t.Fatalf("reading trace.md: %v", err)
		}
		md := string(data)

		if !strings.Contains(md, "# Trace: release-summary") {
			t.Error("missing title")
		}
		if !strings.Contains(md, "### Step 1: reasoning") {
			t.Error("missing step heading")
		}
		if !strings.Contains(md, "<details>") {
			t.Error("long content should be collapsible")
		}
		if !strings.Contains(md, "**Skill:** research-analyst") {
			t.Error("missing skill attribution")
		}
	})

	t.Run("metadata.json", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(runDir, "metadata.json"))
		if err != nil {
			t.Fatalf("reading metadata.json: %v", err)
		}

		var metadata map[string]interface{}
		if err := json.Unmarshal(data, &metadata); err != nil {
			t.Fatalf("metadata.json is not valid JSON: %v", err)
		}
		if metadata["scenario"] != "release-summary" {
			t.Errorf("unexpected scenario: %v", metadata["scenario"])
		}
		if metadata["model"] != "anthropic:claude-sonnet-4" {
			t.Errorf("unexpected model: %v", metadata["model"])
		}
		if metadata["total_steps"] != float64(3) {
			t.Errorf("unexpected total_steps: %v", metadata["total_steps"])
		}
		if metadata["expectations_met"] != float64(2) {
			t.Errorf("extra metadata lost: %v", metadata["expectations_met"])
		}
		if metadata["compaction_occurred"] != false {
			t.Errorf("unexpected compaction flag: %v", metadata["compaction_occurred"])
		}
	})
}

func TestSave_CapsJSONContent(t *testing.T) {
	r := NewRecorder("run-cap")
	r.Record(StepCapabilityResult, "", strings.Repeat("x", 20000), nil)

	runDir := t.TempDir()
	if err := Save(runDir, r.Steps(), r.Finalize(), RenderInfo{Model: "test"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(runDir, "trace.json"))
	if err != nil {
		t.Fatalf("reading trace.json: %v", err)
	}

	var decoded []Step
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded[0].Content) != contentCapJSON {
		t.Errorf("expected content capped at %d, got %d", contentCapJSON, len(decoded[0].Content))
	}

	// Cap applies only to the rendered artifact, not the recorder
	if len(r.Steps()[0].Content) != 20000 {
		t.Error("recorder content was mutated by rendering")
	}
}

func TestSave_TruncationKeepsValidUTF8(t *testing.T) {
	// Three bytes per rune, so both byte caps land mid-rune
	r := NewRecorder("run-utf8")
	r.Record(StepCapabilityResult, "", strings.Repeat("日本語", 4000), nil)

	runDir := t.TempDir()
	if err := Save(runDir, r.Steps(), r.Finalize(), RenderInfo{Model: "test"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(runDir, "trace.json"))
	if err != nil {
		t.Fatalf("reading trace.json: %v", err)
	}
	var decoded []Step
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !utf8.ValidString(decoded[0].Content) {
		t.Error("trace.json content ends in a split rune")
	}
	if len(decoded[0].Content) > contentCapJSON {
		t.Errorf("content exceeds cap: %d bytes", len(decoded[0].Content))
	}

	md, err := os.ReadFile(filepath.Join(runDir, "trace.md"))
	if err != nil {
		t.Fatalf("reading trace.md: %v", err)
	}
	if !utf8.Valid(md) {
		t.Error("trace.md contains invalid UTF-8")
	}
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"under limit", "hello", 10, "hello"},
		{"exact limit", "hello", 5, "hello"},
		{"ascii cut", "hello", 3, "hel"},
		{"backs off mid-rune", "aé", 2, "a"},
		{"keeps whole rune at boundary", "aé", 3, "aé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateUTF8(tt.in, tt.limit)
			if got != tt.want {
				t.Errorf("truncateUTF8(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
		})
	}
}
