package tracing

import (
	"context"
	"testing"
)

func TestContextValues(t *testing.T) {
	t.Run("round-trips trace and run IDs", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithTraceID(ctx, "trace-1")
		ctx = WithRunID(ctx, "run-1")

		if got := GetTraceID(ctx); got != "trace-1" {
			t.Errorf("expected trace-1, got %s", got)
		}
		if got := GetRunID(ctx); got != "run-1" {
			t.Errorf("expected run-1, got %s", got)
		}
	})

	t.Run("round-trips skill and activation identity", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithSkillName(ctx, "research-analyst")
		ctx = WithActivationID(ctx, "act-42")

		if got := GetSkillName(ctx); got != "research-analyst" {
			t.Errorf("expected research-analyst, got %s", got)
		}
		if got := GetActivationID(ctx); got != "act-42" {
			t.Errorf("expected act-42, got %s", got)
		}
	})

	t.Run("returns empty string for unset values", func(t *testing.T) {
		ctx := context.Background()

		if got := GetTraceID(ctx); got != "" {
			t.Errorf("expected empty trace ID, got %s", got)
		}
		if got := GetSkillName(ctx); got != "" {
			t.Errorf("expected empty skill name, got %s", got)
		}
	})
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithSkillName(ctx, "draft-writer")

	tc := FromContext(ctx)

	if tc.TraceID != "trace-1" {
		t.Errorf("expected trace-1, got %s", tc.TraceID)
	}
	if tc.RunID != "run-1" {
		t.Errorf("expected run-1, got %s", tc.RunID)
	}
	if tc.SkillName != "draft-writer" {
		t.Errorf("expected draft-writer, got %s", tc.SkillName)
	}
	if tc.ActivationID != "" {
		t.Errorf("expected empty activation ID, got %s", tc.ActivationID)
	}
}

func TestNewContext(t *testing.T) {
	tc := &TraceContext{
		TraceID:      "trace-1",
		RunID:        "run-1",
		SkillName:    "research-analyst",
		ActivationID: "act-1",
	}

	ctx := NewContext(context.Background(), tc)

	got := FromContext(ctx)
	if *got != *tc {
		t.Errorf("expected %+v, got %+v", tc, got)
	}
}

func TestNewRunContext(t *testing.T) {
	ctx := NewRunContext(context.Background())

	if GetTraceID(ctx) == "" {
		t.Error("expected trace ID to be generated")
	}
	if GetRunID(ctx) == "" {
		t.Error("expected run ID to be generated")
	}

	other := NewRunContext(context.Background())
	if GetRunID(ctx) == GetRunID(other) {
		t.Error("expected distinct run IDs per run")
	}
}
