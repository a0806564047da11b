package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for run ID
	RunIDKey ContextKey = "run_id"
	// SkillNameKey is the context key for the skill currently executing
	SkillNameKey ContextKey = "skill_name"
	// ActivationIDKey is the context key for the current activation ID
	ActivationIDKey ContextKey = "activation_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID      string
	RunID        string
	SkillName    string
	ActivationID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithSkillName adds the active skill name to the context
func WithSkillName(ctx context.Context, skillName string) context.Context {
	return context.WithValue(ctx, SkillNameKey, skillName)
}

// WithActivationID adds an activation ID to the context
func WithActivationID(ctx context.Context, activationID string) context.Context {
	return context.WithValue(ctx, ActivationIDKey, activationID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// GetSkillName retrieves the active skill name from the context
func GetSkillName(ctx context.Context) string {
	if skillName, ok := ctx.Value(SkillNameKey).(string); ok {
		return skillName
	}
	return ""
}

// GetActivationID retrieves the activation ID from the context
func GetActivationID(ctx context.Context) string {
	if activationID, ok := ctx.Value(ActivationIDKey).(string); ok {
		return activationID
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:      GetTraceID(ctx),
		RunID:        GetRunID(ctx),
		SkillName:    GetSkillName(ctx),
		ActivationID: GetActivationID(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.RunID != "" {
		ctx = WithRunID(ctx, tc.RunID)
	}
	if tc.SkillName != "" {
		ctx = WithSkillName(ctx, tc.SkillName)
	}
	if tc.ActivationID != "" {
		ctx = WithActivationID(ctx, tc.ActivationID)
	}
	return ctx
}

// NewRunContext creates a context for a new orchestrator run with fresh
// trace and run IDs.
func NewRunContext(ctx context.Context) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	return WithRunID(ctx, NewRunID())
}
