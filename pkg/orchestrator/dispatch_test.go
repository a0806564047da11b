package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/orchid-dev/orchid/pkg/capability"
	"github.com/orchid-dev/orchid/pkg/provider"
	"github.com/orchid-dev/orchid/pkg/skill"
	"github.com/orchid-dev/orchid/pkg/trace"
	"github.com/orchid-dev/orchid/pkg/vfs"
)

const schemaSkill = `---
name: release-reporter
description: Reports a release version as structured JSON
dispatch: isolated
max_iterations: 3
timeout_seconds: 60
output_schema:
  type: object
  required:
    - version
  properties:
    version:
      type: string
---
## Purpose

Report the latest release.

## Output Requirements

A JSON object with a version field.

## Guardrails

No prose outside the JSON.

## Final Message

Emit the JSON object as your final message.
`

func newDispatchFixture(t *testing.T, strict bool, reasoner provider.Reasoner) (*Dispatcher, *skill.Skill, *trace.Recorder) {
	t.Helper()

	gateway := capability.New(capability.Config{Logger: zerolog.Nop()})

	skillsDir := t.TempDir()
	writeOrchestratorSkill(t, skillsDir, "release-reporter", schemaSkill)

	registry, err := skill.LoadAll(skillsDir, gateway, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	fs := vfs.New()
	if err := registry.Populate(fs); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	fs.Seal()

	recorder := trace.NewRecorder("run-dispatch")
	dispatcher, err := NewDispatcher(DispatcherConfig{
		Reasoner:     reasoner,
		Model:        "test-model",
		Gateway:      gateway,
		FS:           fs,
		Recorder:     recorder,
		Logger:       zerolog.Nop(),
		StrictOutput: strict,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	s, err := registry.Get("release-reporter")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	return dispatcher, s, recorder
}

func TestActivate_OutputSchema(t *testing.T) {
	t.Run("conforming output passes", func(t *testing.T) {
		d, s, _ := newDispatchFixture(t, false,
			provider.NewScripted(provider.Response{Content: `{"version": "2.0"}`}))

		result := d.Activate(context.Background(), s, s.Body, "report the release", nil)

		if result.Failed() {
			t.Fatalf("unexpected failure: %v", result.Failure)
		}
		if result.SchemaWarning != nil {
			t.Errorf("unexpected warning: %v", result.SchemaWarning)
		}
	})

	t.Run("mismatch is a warning by default", func(t *testing.T) {
		d, s, _ := newDispatchFixture(t, false,
			provider.NewScripted(provider.Response{Content: `{"release": "2.0"}`}))

		result := d.Activate(context.Background(), s, s.Body, "report the release", nil)

		if result.Failed() {
			t.Fatalf("warning must not fail the activation: %v", result.Failure)
		}
		if result.SchemaWarning == nil {
			t.Fatal("expected schema warning")
		}
		if result.Output != `{"release": "2.0"}` {
			t.Errorf("output replaced instead of annotated: %q", result.Output)
		}
	})

	t.Run("non-JSON output is a mismatch", func(t *testing.T) {
		d, s, _ := newDispatchFixture(t, false,
			provider.NewScripted(provider.Response{Content: "version two point oh"}))

		result := d.Activate(context.Background(), s, s.Body, "report the release", nil)

		if result.SchemaWarning == nil {
			t.Fatal("expected schema warning for non-JSON output")
		}
	})

	t.Run("strict mode upgrades mismatch to failure", func(t *testing.T) {
		d, s, _ := newDispatchFixture(t, true,
			provider.NewScripted(provider.Response{Content: `{"release": "2.0"}`}))

		result := d.Activate(context.Background(), s, s.Body, "report the release", nil)

		if !result.Failed() {
			t.Fatal("expected failure in strict mode")
		}
		var mismatch *SchemaMismatchError
		if !errors.As(result.Failure, &mismatch) {
			t.Fatalf("expected SchemaMismatchError, got %T", result.Failure)
		}
	})
}

// blockingReasoner never answers; it waits for cancellation
type blockingReasoner struct{}

func (b *blockingReasoner) Provider() string { return "blocking" }

func (b *blockingReasoner) Call(ctx context.Context, request provider.Request) (*provider.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestActivate_Timeout(t *testing.T) {
	d, s, recorder := newDispatchFixture(t, false, &blockingReasoner{})

	// The skill declares 60s; tighten it for the test
	s.TimeoutSeconds = 1

	start := time.Now()
	result := d.Activate(context.Background(), s, s.Body, "report the release", nil)
	elapsed := time.Since(start)

	if !result.Failed() {
		t.Fatal("expected timeout failure")
	}
	if !errors.Is(result.Failure, ErrTimeoutExceeded) {
		t.Fatalf("expected ErrTimeoutExceeded, got %v", result.Failure)
	}
	if elapsed > 5*time.Second {
		t.Errorf("timeout not enforced promptly: %v", elapsed)
	}

	steps := recorder.Steps()
	last := steps[len(steps)-1]
	if last.Type != trace.StepActivationEnd {
		t.Errorf("activation boundary not closed after timeout: %s", last.Type)
	}
	if _, ok := last.Metadata["error"]; !ok {
		t.Error("timeout not error-tagged on the boundary")
	}
}

func TestReadBody_RecordsDisclosure(t *testing.T) {
	d, s, recorder := newDispatchFixture(t, false, provider.NewScripted())

	body, err := d.ReadBody(s)
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	if body == "" {
		t.Fatal("empty body")
	}

	steps := recorder.Steps()
	if len(steps) != 1 || steps[0].Type != trace.StepSkillRead || steps[0].SkillName != "release-reporter" {
		t.Errorf("skill_read step missing or wrong: %v", steps)
	}
}

func TestReadBody_UnknownPath(t *testing.T) {
	d, _, _ := newDispatchFixture(t, false, provider.NewScripted())

	ghost := &skill.Skill{Name: "ghost"}
	if _, err := d.ReadBody(ghost); !errors.Is(err, vfs.ErrPathNotFound) {
		t.Fatalf("expected ErrPathNotFound, got %v", err)
	}
}
