package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/orchid-dev/orchid/internal/observability"
	"github.com/orchid-dev/orchid/internal/tracing"
	"github.com/orchid-dev/orchid/pkg/capability"
	"github.com/orchid-dev/orchid/pkg/provider"
	"github.com/orchid-dev/orchid/pkg/skill"
	"github.com/orchid-dev/orchid/pkg/trace"
	"github.com/orchid-dev/orchid/pkg/vfs"
)

// Dispatcher executes one skill activation at a time. Inline activations
// run against the caller's own context manager; isolated activations get
// a fresh SubContext that is discarded after the final message is
// extracted.
type Dispatcher struct {
	reasoner     provider.Reasoner
	model        string
	gateway      *capability.Gateway
	fs           *vfs.FS
	recorder     *trace.Recorder
	logger       zerolog.Logger
	strictOutput bool
}

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	Reasoner     provider.Reasoner
	Model        string
	Gateway      *capability.Gateway
	FS           *vfs.FS
	Recorder     *trace.Recorder
	Logger       zerolog.Logger
	StrictOutput bool
}

// NewDispatcher creates a dispatcher for one run
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Reasoner == nil {
		return nil, fmt.Errorf("reasoner is required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("capability gateway is required")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("trace recorder is required")
	}

	return &Dispatcher{
		reasoner:     cfg.Reasoner,
		model:        cfg.Model,
		gateway:      cfg.Gateway,
		fs:           cfg.FS,
		recorder:     cfg.Recorder,
		logger:       cfg.Logger,
		strictOutput: cfg.StrictOutput,
	}, nil
}

// ReadBody pulls the skill body from the virtual filesystem and records
// the skill_read step. Full instructions enter context only here, after
// the router has already chosen the skill.
func (d *Dispatcher) ReadBody(s *skill.Skill) (string, error) {
	body, err := d.fs.Read(fmt.Sprintf("skills/%s/SKILL.md", s.Name))
	if err != nil {
		return "", err
	}

	d.recorder.Record(trace.StepSkillRead, s.Name,
		fmt.Sprintf("Read skill instructions (%d bytes)", len(body)), nil)

	return body, nil
}

// Activate executes one skill activation in the skill's dispatch mode
func (d *Dispatcher) Activate(ctx context.Context, s *skill.Skill, body, input string, cm *ContextManager) *ActivationResult {
	activationID, err := gonanoid.New()
	if err != nil {
		return &ActivationResult{SkillName: s.Name, Failure: fmt.Errorf("failed to generate activation id: %w", err)}
	}

	startTime := time.Now()
	view := d.gateway.Filtered(s.AllowedCapabilities)

	ctx = tracing.PropagateToActivation(ctx, s.Name, activationID)
	ctx, span := tracing.StartSpan(
		ctx,
		"orchid.dispatch",
		"skill.activate",
		attribute.String("skill", s.Name),
		attribute.String("mode", string(s.Dispatch)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, d.logger)

	d.recorder.Record(trace.StepActivationStart, s.Name, input, map[string]interface{}{
		"activation_id": activationID,
		"mode":          string(s.Dispatch),
	})

	var result *ActivationResult
	switch s.Dispatch {
	case skill.DispatchInline:
		result = d.runInline(ctx, s, body, input, view, cm)
	case skill.DispatchIsolated:
		result = d.runIsolated(ctx, s, body, input, view)
	default:
		result = &ActivationResult{
			SkillName: s.Name,
			Failure:   fmt.Errorf("unknown dispatch mode %q", s.Dispatch),
		}
	}

	result.ActivationID = activationID
	result.ElapsedSeconds = time.Since(startTime).Seconds()

	if !result.Failed() {
		d.validateOutput(s, result)
	}

	status := "success"
	endContent := result.Output
	endMetadata := map[string]interface{}{
		"activation_id":    activationID,
		"capability_calls": result.CapabilityCallCount,
	}
	if result.Failed() {
		status = "failure"
		endContent = result.Failure.Error()
		endMetadata["error"] = result.Failure.Error()
		span.RecordError(result.Failure)
		span.SetStatus(codes.Error, result.Failure.Error())
	}
	if result.SchemaWarning != nil {
		endMetadata["schema_warning"] = result.SchemaWarning.Error()
	}

	d.recorder.Record(trace.StepActivationEnd, s.Name, endContent, endMetadata)
	observability.RecordActivation(s.Name, string(s.Dispatch), status, time.Since(startTime))

	logger.Info().
		Str("skill", s.Name).
		Str("activation_id", activationID).
		Str("mode", string(s.Dispatch)).
		Str("status", status).
		Int("capability_calls", result.CapabilityCallCount).
		Msg("Skill activation finished")

	return result
}

// runInline executes the skill inside the orchestrator's own context.
// Steps interleave into the run trace and failures propagate to the
// caller directly.
func (d *Dispatcher) runInline(ctx context.Context, s *skill.Skill, body, input string, view *capability.Filtered, cm *ContextManager) *ActivationResult {
	result := &ActivationResult{SkillName: s.Name}

	cm.Track("user", fmt.Sprintf("Execute the following skill instructions now.\n\n%s\n\nInput: %s", body, input))

	messages := cm.Messages()
	output, err := d.reasoningLoop(ctx, s, "", messages, view, s.MaxIterations, result)
	if err != nil {
		result.Failure = err
		return result
	}

	cm.Track("assistant", output)
	result.Output = output
	return result
}

// runIsolated executes the skill in a fresh SubContext seeded only with
// the skill body and input. Nothing survives but the final message; the
// SubContext lives and dies inside this call.
func (d *Dispatcher) runIsolated(ctx context.Context, s *skill.Skill, body, input string, view *capability.Filtered) *ActivationResult {
	result := &ActivationResult{SkillName: s.Name}

	timeout := time.Duration(s.TimeoutSeconds) * time.Second
	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages := []provider.Message{
		{Role: "user", Content: input},
	}

	output, err := d.reasoningLoop(subCtx, s, body, messages, view, s.MaxIterations, result)
	if err != nil {
		result.Failure = err
		return result
	}

	result.Output = output
	return result
}

// reasoningLoop runs the bounded model/capability loop shared by both
// dispatch modes. Returns the first response without tool calls as the
// terminal message.
func (d *Dispatcher) reasoningLoop(ctx context.Context, s *skill.Skill, systemPrompt string, messages []provider.Message, view *capability.Filtered, maxIterations int, result *ActivationResult) (string, error) {
	tools := capabilityTools(view)

	for iteration := 0; iteration < maxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return "", d.deadlineError(ctx, s)
		default:
		}

		response, err := d.reasoner.Call(ctx, provider.Request{
			Model:        d.model,
			SystemPrompt: systemPrompt,
			Messages:     messages,
			Tools:        tools,
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", d.deadlineError(ctx, s)
			}
			return "", fmt.Errorf("reasoner call failed: %w", err)
		}

		d.recorder.Record(trace.StepReasoning, s.Name, response.Content, map[string]interface{}{
			"iteration": iteration + 1,
		})

		if len(response.ToolCalls) == 0 {
			return response.Content, nil
		}

		messages = append(messages, provider.Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		for _, call := range response.ToolCalls {
			callArgs, _ := json.Marshal(call.Parameters)
			d.recorder.Record(trace.StepCapabilityCall, s.Name,
				fmt.Sprintf("%s(%s)", call.Name, callArgs),
				map[string]interface{}{"capability": call.Name})
			result.CapabilityCallCount++

			callResult := view.Call(ctx, call.Name, call.Parameters)

			resultContent := callResult.Output
			resultMetadata := map[string]interface{}{"capability": call.Name}
			if !callResult.Success {
				resultContent = callResult.Error
				resultMetadata["error"] = callResult.Error
			}
			d.recorder.Record(trace.StepCapabilityResult, s.Name, resultContent, resultMetadata)

			// The model sees the error text and can adapt; the gateway
			// result is passed through verbatim either way
			messages = append(messages, provider.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    resultContent,
			})
		}
	}

	return "", fmt.Errorf("%w: skill %s produced no terminal message within %d iterations",
		ErrIterationBudgetExceeded, s.Name, maxIterations)
}

func (d *Dispatcher) deadlineError(ctx context.Context, s *skill.Skill) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: skill %s exceeded %d seconds", ErrTimeoutExceeded, s.Name, s.TimeoutSeconds)
	}
	return ctx.Err()
}

// validateOutput checks the final output against the skill's declared
// schema when one exists
func (d *Dispatcher) validateOutput(s *skill.Skill, result *ActivationResult) {
	if len(s.OutputSchema) == 0 {
		return
	}

	mismatch := func(detail string) {
		warning := &SchemaMismatchError{SkillName: s.Name, Detail: detail}
		if d.strictOutput {
			result.Failure = warning
		} else {
			result.SchemaWarning = warning
		}
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(result.Output), &decoded); err != nil {
		mismatch("output is not valid JSON")
		return
	}

	schemaResult, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(s.OutputSchema),
		gojsonschema.NewGoLoader(decoded),
	)
	if err != nil {
		mismatch(err.Error())
		return
	}

	if !schemaResult.Valid() {
		details := ""
		for _, verr := range schemaResult.Errors() {
			if details != "" {
				details += "; "
			}
			details += verr.String()
		}
		mismatch(details)
	}
}

func capabilityTools(view *capability.Filtered) []provider.ToolSpec {
	specs := view.Specs()
	tools := make([]provider.ToolSpec, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, provider.ToolSpec{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		})
	}
	return tools
}
