package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/orchid-dev/orchid/internal/observability"
	"github.com/orchid-dev/orchid/internal/tracing"
	"github.com/orchid-dev/orchid/pkg/capability"
	"github.com/orchid-dev/orchid/pkg/provider"
	"github.com/orchid-dev/orchid/pkg/skill"
	"github.com/orchid-dev/orchid/pkg/trace"
	"github.com/orchid-dev/orchid/pkg/vfs"
)

const baseInstructions = `You are a multi-step orchestrator that completes tasks by activating skills.

## Deciding
- Consult the skill menu below. Activate a skill when the task matches its description.
- Activate one skill at a time; use each activation's result to decide the next step.
- When no listed skill fits the task, say so instead of improvising.
- When the task is complete, respond with the final answer directly.

## Stop Conditions
- Stop as soon as the task is complete.
- Never activate the same skill twice with the same input.`

// Config configures an Orchestrator
type Config struct {
	Logger       zerolog.Logger
	Reasoner     provider.Reasoner
	Model        string
	Registry     *skill.Registry
	FS           *vfs.FS
	Gateway      *capability.Gateway
	MaxSteps     int
	StrictOutput bool
	// Compaction settings for the run context
	CompactionThresholdTokens int
	CompactionKeepRecent      int
}

// Orchestrator owns the router loop. Safe for concurrent runs: all
// per-run state (context manager, recorder, dispatcher) is allocated
// inside Run, while the registry, filesystem, and gateway are read-only
// after bootstrap.
type Orchestrator struct {
	cfg          Config
	systemPrompt string
}

// New creates an orchestrator
func New(cfg Config) (*Orchestrator, error) {
	observability.EnsureRegistered()

	if cfg.Reasoner == nil {
		return nil, errors.New("reasoner is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("skill registry is required")
	}
	if cfg.FS == nil {
		return nil, errors.New("virtual filesystem is required")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("capability gateway is required")
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 50
	}

	return &Orchestrator{
		cfg:          cfg,
		systemPrompt: baseInstructions + "\n\n" + skillMenu(cfg.Registry.Directory()),
	}, nil
}

// Run executes one request to completion. The returned result is always
// populated, budget breaches and cancellations included; the trace holds
// every step up to the point of failure.
func (o *Orchestrator) Run(ctx context.Context, request string) *RunResult {
	runID := tracing.NewRunID()
	ctx = tracing.WithRunID(ctx, runID)
	ctx, span := tracing.StartSpan(
		ctx,
		"orchid.orchestrator",
		"orchestrator.run",
		attribute.String("run_id", runID),
		attribute.String("model", o.cfg.Model),
	)
	defer span.End()
	logger := o.cfg.Logger.With().Str("run_id", runID).Logger()

	startTime := time.Now()
	recorder := trace.NewRecorder(runID)

	cm := NewContextManager(ContextConfig{
		ThresholdTokens: o.cfg.CompactionThresholdTokens,
		KeepRecent:      o.cfg.CompactionKeepRecent,
		Recorder:        recorder,
		Logger:          logger,
	})
	cm.Track("user", request)

	dispatcher, err := NewDispatcher(DispatcherConfig{
		Reasoner:     o.cfg.Reasoner,
		Model:        o.cfg.Model,
		Gateway:      o.cfg.Gateway,
		FS:           o.cfg.FS,
		Recorder:     recorder,
		Logger:       logger,
		StrictOutput: o.cfg.StrictOutput,
	})
	if err != nil {
		return o.finish(recorder, logger, startTime, "", StatusFailed, err.Error())
	}

	logger.Info().Str("model", o.cfg.Model).Msg("Run started")

	for step := 0; step < o.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return o.finish(recorder, logger, startTime, "", StatusCancelled, "run cancelled")
		}

		// Compaction happens at the decision boundary, never inside an
		// activation
		cm.MaybeCompact()

		decision, err := o.decideNext(ctx, cm, recorder)
		if err != nil {
			if ctx.Err() != nil {
				return o.finish(recorder, logger, startTime, "", StatusCancelled, "run cancelled")
			}
			return o.finish(recorder, logger, startTime, "", StatusFailed, err.Error())
		}

		switch decision.Kind {
		case DecisionRespond:
			recorder.Record(trace.StepFinalOutput, "", decision.FinalText, nil)
			return o.finish(recorder, logger, startTime, decision.FinalText, StatusCompleted, "")

		case DecisionNoSkill:
			recorder.Record(trace.StepFinalOutput, "", decision.Reason, map[string]interface{}{
				"no_skill_applicable": true,
			})
			return o.finish(recorder, logger, startTime, decision.Reason, StatusNoSkillApplicable, "")

		case DecisionActivate:
			o.executeActivation(ctx, decision, cm, dispatcher, logger)
		}
	}

	reason := fmt.Sprintf("%v: no final response within %d steps", ErrRunBudgetExceeded, o.cfg.MaxSteps)
	return o.finish(recorder, logger, startTime, "", StatusBudgetExceeded, reason)
}

// decideNext runs one router step. The router sees only the compact
// skill menu in its system prompt; bodies are disclosed later via
// skill_read.
func (o *Orchestrator) decideNext(ctx context.Context, cm *ContextManager, recorder *trace.Recorder) (*Decision, error) {
	response, err := o.cfg.Reasoner.Call(ctx, provider.Request{
		Model:        o.cfg.Model,
		SystemPrompt: o.systemPrompt,
		Messages:     cm.Messages(),
		Tools:        routerTools(),
	})
	if err != nil {
		return nil, fmt.Errorf("router call failed: %w", err)
	}

	decision := parseDecision(response)

	recorder.Record(trace.StepReasoning, "", decision.Reasoning, map[string]interface{}{
		"decision": string(decision.Kind),
	})

	return decision, nil
}

// executeActivation reads the skill body, dispatches, and folds the
// result back into the run context as an observation
func (o *Orchestrator) executeActivation(ctx context.Context, decision *Decision, cm *ContextManager, dispatcher *Dispatcher, logger zerolog.Logger) {
	s, err := o.cfg.Registry.Get(decision.SkillName)
	if err != nil {
		logger.Warn().Str("skill", decision.SkillName).Err(err).Msg("Router chose an unknown skill")
		cm.Track("user", fmt.Sprintf("Observation: %v. Choose only skills from the menu.", err))
		return
	}

	body, err := dispatcher.ReadBody(s)
	if err != nil {
		logger.Error().Str("skill", s.Name).Err(err).Msg("Skill body read failed")
		cm.Track("user", fmt.Sprintf("Observation: could not read skill %s: %v", s.Name, err))
		return
	}

	result := dispatcher.Activate(ctx, s, body, decision.Input, cm)

	if result.Failed() {
		cm.Track("user", fmt.Sprintf(
			"Observation: activation of skill %s failed: %v. You may retry, use a fallback skill, or report the gap.",
			s.Name, result.Failure))
		return
	}

	observation := fmt.Sprintf("Observation from skill %s: %s", s.Name, result.Output)
	if result.SchemaWarning != nil {
		observation += fmt.Sprintf("\n(Warning: %v)", result.SchemaWarning)
	}
	cm.Track("user", observation)
}

func (o *Orchestrator) finish(recorder *trace.Recorder, logger zerolog.Logger, startTime time.Time, output string, status RunStatus, reason string) *RunResult {
	if status != StatusCompleted && status != StatusNoSkillApplicable {
		// Partial traces must mark the failure as their last step
		recorder.Record(trace.StepFinalOutput, "", reason, map[string]interface{}{
			"status": string(status),
		})
	}

	summary := recorder.Finalize()
	success := status == StatusCompleted || status == StatusNoSkillApplicable
	observability.RecordRun(o.cfg.Reasoner.Provider(), time.Since(startTime), summary.TotalSteps, success)

	logger.Info().
		Str("status", string(status)).
		Int("steps", summary.TotalSteps).
		Int("capability_calls", summary.CapabilityCalls).
		Bool("compaction", summary.CompactionOccurred).
		Msg("Run finished")

	return &RunResult{
		RunID:   summary.RunID,
		Output:  output,
		Status:  status,
		Reason:  reason,
		Summary: summary,
		Steps:   recorder.Steps(),
	}
}

// routerTools returns the decision protocol tools shown to the router
func routerTools() []provider.ToolSpec {
	return []provider.ToolSpec{
		{
			Name:        "activate_skill",
			Description: "Activate a skill from the menu to work on the task",
			InputSchema: map[string]interface{}{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]interface{}{
					"skill": map[string]interface{}{
						"type":        "string",
						"description": "Name of the skill to activate",
					},
					"input": map[string]interface{}{
						"type":        "string",
						"description": "The input to hand the skill",
					},
				},
				"required": []string{"skill", "input"},
			},
		},
		{
			Name:        "no_skill_applicable",
			Description: "Report that no available skill fits the task",
			InputSchema: map[string]interface{}{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]interface{}{
					"reason": map[string]interface{}{
						"type":        "string",
						"description": "Why none of the skills apply",
					},
				},
				"required": []string{"reason"},
			},
		},
	}
}

// parseDecision turns a router response into a Decision. Plain text
// with no tool call is the final response.
func parseDecision(response *provider.Response) *Decision {
	for _, call := range response.ToolCalls {
		switch call.Name {
		case "activate_skill":
			skillName, _ := call.Parameters["skill"].(string)
			input, _ := call.Parameters["input"].(string)
			return &Decision{
				Kind:      DecisionActivate,
				SkillName: skillName,
				Input:     input,
				Reasoning: reasoningText(response.Content, fmt.Sprintf("Activate skill %s", skillName)),
			}
		case "no_skill_applicable":
			reason, _ := call.Parameters["reason"].(string)
			if reason == "" {
				reason = "No available skill fits this task."
			}
			return &Decision{
				Kind:      DecisionNoSkill,
				Reason:    reason,
				Reasoning: reasoningText(response.Content, reason),
			}
		}
	}

	return &Decision{
		Kind:      DecisionRespond,
		FinalText: response.Content,
		Reasoning: reasoningText(response.Content, "Respond with final answer"),
	}
}

func reasoningText(content, fallback string) string {
	if strings.TrimSpace(content) != "" {
		return content
	}
	return fallback
}

// skillMenu renders the compact skill directory for the system prompt
func skillMenu(directory []skill.DirectoryEntry) string {
	if len(directory) == 0 {
		return "## Available Skills\n\nNo skills are registered."
	}

	var b strings.Builder
	b.WriteString("## Available Skills\n\n")
	b.WriteString("Activate a skill with the activate_skill tool. Full instructions are loaded for you after activation.\n\n")

	for _, entry := range directory {
		fmt.Fprintf(&b, "- **%s** (%s): %s\n", entry.Name, entry.Dispatch, entry.Description)
	}

	return b.String()
}
