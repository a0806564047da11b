package skill

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/orchid-dev/orchid/pkg/vfs"
)

type fakeCapSet map[string]bool

func (f fakeCapSet) Has(name string) bool { return f[name] }

func TestLoadAll(t *testing.T) {
	caps := fakeCapSet{"web_search": true, "fetch_url": true}
	logger := zerolog.Nop()

	t.Run("loads all skills in directory", func(t *testing.T) {
		root := t.TempDir()
		writeSkill(t, root, "summarize", inlineSkillSource("summarize"))
		writeSkill(t, root, "analyze", inlineSkillSource("analyze"))

		r, err := LoadAll(root, caps, logger)
		if err != nil {
			t.Fatalf("LoadAll failed: %v", err)
		}
		if r.Count() != 2 {
			t.Errorf("expected 2 skills, got %d", r.Count())
		}
		if !r.Exists("summarize") || !r.Exists("analyze") {
			t.Error("expected both skills to be registered")
		}
	})

	t.Run("skips non-skill directories", func(t *testing.T) {
		root := t.TempDir()
		writeSkill(t, root, "summarize", inlineSkillSource("summarize"))
		if err := os.MkdirAll(filepath.Join(root, "notes"), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}

		r, err := LoadAll(root, caps, logger)
		if err != nil {
			t.Fatalf("LoadAll failed: %v", err)
		}
		if r.Count() != 1 {
			t.Errorf("expected 1 skill, got %d", r.Count())
		}
	})

	t.Run("one malformed skill fails the whole load", func(t *testing.T) {
		root := t.TempDir()
		writeSkill(t, root, "summarize", inlineSkillSource("summarize"))
		writeSkill(t, root, "broken", "no frontmatter here")

		if _, err := LoadAll(root, caps, logger); err == nil {
			t.Fatal("expected load failure for malformed skill")
		}
	})

	t.Run("unknown capability fails load", func(t *testing.T) {
		root := t.TempDir()
		src := `---
name: summarize
description: Summarizes text
dispatch: inline
allowed_capabilities:
  - shell_exec
max_iterations: 5
timeout_seconds: 60
---
` + validInlineBody
		writeSkill(t, root, "summarize", src)

		_, err := LoadAll(root, caps, logger)
		if err == nil || !strings.Contains(err.Error(), "shell_exec") {
			t.Fatalf("expected unknown capability error, got %v", err)
		}
	})

	t.Run("missing directory fails", func(t *testing.T) {
		_, err := LoadAll(filepath.Join(t.TempDir(), "absent"), caps, logger)
		if err == nil {
			t.Fatal("expected error for missing skill directory")
		}
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			t.Fatalf("expected *LoadError, got %T", err)
		}
	})
}

func TestRegistryDirectory(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "zeta", inlineSkillSource("zeta"))
	writeSkill(t, root, "alpha", inlineSkillSource("alpha"))

	r, err := LoadAll(root, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	dir := r.Directory()
	if len(dir) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(dir))
	}
	if dir[0].Name != "alpha" || dir[1].Name != "zeta" {
		t.Errorf("expected ordered entries, got %s, %s", dir[0].Name, dir[1].Name)
	}
	for _, entry := range dir {
		if entry.Description == "" {
			t.Errorf("entry %s missing description", entry.Name)
		}
	}
}

func TestRegistryGet(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "summarize", inlineSkillSource("summarize"))

	r, err := LoadAll(root, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	t.Run("known skill", func(t *testing.T) {
		s, err := r.Get("summarize")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if s.Name != "summarize" {
			t.Errorf("unexpected skill: %s", s.Name)
		}
	})

	t.Run("unknown skill", func(t *testing.T) {
		_, err := r.Get("missing")
		if !errors.Is(err, ErrSkillNotFound) {
			t.Errorf("expected ErrSkillNotFound, got %v", err)
		}
	})

	t.Run("body of known skill", func(t *testing.T) {
		body, err := r.BodyOf("summarize")
		if err != nil {
			t.Fatalf("BodyOf failed: %v", err)
		}
		if !strings.Contains(body, "## Purpose") {
			t.Error("body missing sections")
		}
	})
}

func TestRegistryPopulate(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "summarize", inlineSkillSource("summarize"))
	refDir := filepath.Join(root, "summarize", referencesDir)
	if err := os.MkdirAll(refDir, 0o755); err != nil {
		t.Fatalf("mkdir references: %v", err)
	}
	if err := os.WriteFile(filepath.Join(refDir, "style.md"), []byte("house style"), 0o644); err != nil {
		t.Fatalf("write reference: %v", err)
	}

	r, err := LoadAll(root, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	fs := vfs.New()
	if err := r.Populate(fs); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}

	body, err := fs.Read("skills/summarize/SKILL.md")
	if err != nil {
		t.Fatalf("reading populated skill: %v", err)
	}
	if !strings.Contains(body, "## Purpose") {
		t.Error("populated body missing sections")
	}

	ref, err := fs.Read("skills/summarize/references/style.md")
	if err != nil {
		t.Fatalf("reading populated reference: %v", err)
	}
	if ref != "house style" {
		t.Errorf("unexpected reference content: %q", ref)
	}

	t.Run("populate after seal fails", func(t *testing.T) {
		sealed := vfs.New()
		sealed.Seal()
		if err := r.Populate(sealed); err == nil {
			t.Fatal("expected error populating sealed filesystem")
		}
	})
}

// The skills shipped under examples/ must always pass bootstrap
// validation, otherwise the example scenario cannot run at all.
func TestLoadAllShippedExamples(t *testing.T) {
	caps := fakeCapSet{"web_search": true, "fetch_url": true}

	r, err := LoadAll(filepath.Join("..", "..", "examples", "skills"), caps, zerolog.Nop())
	if err != nil {
		t.Fatalf("shipped example skills failed to load: %v", err)
	}

	for _, name := range []string{"web-research", "summarize"} {
		s, err := r.Get(name)
		if err != nil {
			t.Fatalf("example skill %s missing: %v", name, err)
		}
		if s.MaxIterations <= 0 || s.TimeoutSeconds <= 0 {
			t.Errorf("example skill %s has non-positive budgets: %d iterations, %d seconds",
				name, s.MaxIterations, s.TimeoutSeconds)
		}
	}
}
