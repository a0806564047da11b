package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToActivation derives a context for a skill activation. The trace
// and run IDs of the parent run are kept; the skill name and activation ID
// identify the new scope.
func PropagateToActivation(ctx context.Context, skillName, activationID string) context.Context {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = NewTraceID()
	}

	newCtx := WithTraceID(ctx, traceID)
	newCtx = WithSkillName(newCtx, skillName)
	newCtx = WithActivationID(newCtx, activationID)

	if runID := GetRunID(ctx); runID != "" {
		newCtx = WithRunID(newCtx, runID)
	}

	return newCtx
}

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.RunID != "" {
		logger = logger.With().Str("run_id", tc.RunID).Logger()
	}
	if tc.SkillName != "" {
		logger = logger.With().Str("skill_name", tc.SkillName).Logger()
	}
	if tc.ActivationID != "" {
		logger = logger.With().Str("activation_id", tc.ActivationID).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}
