// Package orchestrator drives one run end to end: the router consults
// the skill directory, the dispatch engine executes activations inline
// or in isolated sub-contexts, and the context manager bounds the
// orchestrator's own history growth. Every step lands in the trace.
package orchestrator

import (
	"errors"
	"fmt"

	"github.com/orchid-dev/orchid/pkg/trace"
)

// Budget errors. Iteration and timeout breaches are recoverable at the
// router's discretion; the run budget is terminal.
var (
	ErrIterationBudgetExceeded = errors.New("iteration budget exceeded")
	ErrTimeoutExceeded         = errors.New("timeout exceeded")
	ErrRunBudgetExceeded       = errors.New("run step budget exceeded")
)

// SchemaMismatchError reports a final output that does not conform to
// the skill's declared output schema. A warning by default; strict mode
// upgrades it to an activation failure.
type SchemaMismatchError struct {
	SkillName string
	Detail    string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("output of skill %s does not match its declared schema: %s", e.SkillName, e.Detail)
}

// DecisionKind classifies one router decision
type DecisionKind string

const (
	DecisionActivate DecisionKind = "activate"
	DecisionRespond  DecisionKind = "respond"
	DecisionNoSkill  DecisionKind = "no_skill_applicable"
)

// Decision is the outcome of one router step
type Decision struct {
	Kind      DecisionKind
	SkillName string
	Input     string
	FinalText string
	Reason    string
	Reasoning string
}

// ActivationResult is the structured outcome of one skill activation.
// Budget breaches and capability errors come back as failure markers on
// the result, never as panics, so the router can decide how to continue.
type ActivationResult struct {
	SkillName           string
	ActivationID        string
	Output              string
	CapabilityCallCount int
	ElapsedSeconds      float64
	// Failure is empty on success, otherwise the budget or capability
	// error that ended the activation
	Failure error
	// SchemaWarning is set when the output violated the declared schema
	// but strict mode is off
	SchemaWarning *SchemaMismatchError
}

// Failed reports whether the activation ended in a failure marker
func (r *ActivationResult) Failed() bool {
	return r.Failure != nil
}

// RunStatus is the terminal state of a run
type RunStatus string

const (
	StatusCompleted         RunStatus = "completed"
	StatusNoSkillApplicable RunStatus = "no_skill_applicable"
	StatusBudgetExceeded    RunStatus = "budget_exceeded"
	StatusCancelled         RunStatus = "cancelled"
	StatusFailed            RunStatus = "failed"
)

// RunResult is the final structured output of one run plus its
// aggregated trace metadata
type RunResult struct {
	RunID   string
	Output  string
	Status  RunStatus
	Reason  string
	Summary trace.Summary
	Steps   []trace.Step
}

// Incomplete reports whether the run terminated before producing a
// normal final output
func (r *RunResult) Incomplete() bool {
	return r.Status != StatusCompleted && r.Status != StatusNoSkillApplicable
}
