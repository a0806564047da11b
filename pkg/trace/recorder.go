// Package trace captures the typed, ordered execution log of one run.
// The trace is the authoritative debugging record: every reasoning step,
// skill read, activation boundary, capability call, and compaction lands
// here in the order it happened.
package trace

import (
	"sort"
	"sync"
	"time"
)

// StepType classifies one execution step
type StepType string

const (
	StepReasoning        StepType = "reasoning"
	StepSkillRead        StepType = "skill_read"
	StepActivationStart  StepType = "activation_start"
	StepActivationEnd    StepType = "activation_end"
	StepCapabilityCall   StepType = "capability_call"
	StepCapabilityResult StepType = "capability_result"
	StepCompaction       StepType = "compaction"
	StepFinalOutput      StepType = "final_output"
)

// Step is one record in the trace. SkillName is empty for
// orchestrator-level steps.
type Step struct {
	Number    int                    `json:"step"`
	Type      StepType               `json:"type"`
	SkillName string                 `json:"skill_name,omitempty"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Summary aggregates a finished (or aborted) trace
type Summary struct {
	RunID              string           `json:"run_id"`
	Elapsed            time.Duration    `json:"-"`
	ElapsedSeconds     float64          `json:"latency_seconds"`
	TotalSteps         int              `json:"total_steps"`
	StepCounts         map[StepType]int `json:"step_types"`
	CapabilityCalls    int              `json:"capability_calls"`
	CapabilitiesUsed   []string         `json:"capabilities_used"`
	CompactionOccurred bool             `json:"compaction_occurred"`
	SkillsInvoked      []string         `json:"skills_invoked"`
}

// Recorder appends steps for a single run. Each run owns exactly one
// recorder; the run loop is the only writer, so the mutex only guards
// against readers snapshotting mid-append.
type Recorder struct {
	runID     string
	steps     []Step
	counter   int
	startTime time.Time
	endTime   time.Time
	mu        sync.Mutex
}

// NewRecorder creates a recorder and starts the run clock
func NewRecorder(runID string) *Recorder {
	return &Recorder{
		runID:     runID,
		startTime: time.Now(),
	}
}

// RunID returns the run this recorder belongs to
func (r *Recorder) RunID() string {
	return r.runID
}

// Record appends one step and returns it
func (r *Recorder) Record(stepType StepType, skillName, content string, metadata map[string]interface{}) Step {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counter++
	step := Step{
		Number:    r.counter,
		Type:      stepType,
		SkillName: skillName,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
	r.steps = append(r.steps, step)

	return step
}

// Steps returns a snapshot of the recorded steps in order
func (r *Recorder) Steps() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// Len returns the number of recorded steps
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}

// Finalize stops the run clock and aggregates the trace. It can be
// called on a partial trace after a failure or cancellation; the steps
// recorded so far are what gets summarized.
func (r *Recorder) Finalize() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.endTime.IsZero() {
		r.endTime = time.Now()
	}
	elapsed := r.endTime.Sub(r.startTime)

	counts := make(map[StepType]int)
	capCalls := 0
	capsUsed := make(map[string]bool)
	compacted := false
	var skills []string

	for _, step := range r.steps {
		counts[step.Type]++

		switch step.Type {
		case StepCapabilityCall:
			capCalls++
			if name, ok := step.Metadata["capability"].(string); ok && name != "" {
				capsUsed[name] = true
			}
		case StepCompaction:
			compacted = true
		case StepActivationStart:
			skills = append(skills, step.SkillName)
		}
	}

	used := make([]string, 0, len(capsUsed))
	for name := range capsUsed {
		used = append(used, name)
	}
	sort.Strings(used)

	return Summary{
		RunID:              r.runID,
		Elapsed:            elapsed,
		ElapsedSeconds:     elapsed.Seconds(),
		TotalSteps:         len(r.steps),
		StepCounts:         counts,
		CapabilityCalls:    capCalls,
		CapabilitiesUsed:   used,
		CompactionOccurred: compacted,
		SkillsInvoked:      skills,
	}
}
