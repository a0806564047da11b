package skill

import (
	"errors"
	"fmt"
)

// DispatchMode determines how a skill activation executes
type DispatchMode string

const (
	// DispatchInline runs the skill inside the orchestrator's own context
	DispatchInline DispatchMode = "inline"
	// DispatchIsolated runs the skill in a fresh bounded sub-context
	DispatchIsolated DispatchMode = "isolated"
)

// Valid reports whether the dispatch mode is one of the recognized values
func (m DispatchMode) Valid() bool {
	return m == DispatchInline || m == DispatchIsolated
}

// Skill is one loaded unit of declarative behavior: routing metadata plus
// the full instruction body. Immutable for the duration of a run.
type Skill struct {
	Name                string                 `json:"name"`
	Description         string                 `json:"description"`
	Version             string                 `json:"version"`
	Dispatch            DispatchMode           `json:"dispatch"`
	AllowedCapabilities []string               `json:"allowed_capabilities"`
	MaxIterations       int                    `json:"max_iterations"`
	TimeoutSeconds      int                    `json:"timeout_seconds"`
	OutputSchema        map[string]interface{} `json:"output_schema,omitempty"`
	Body                string                 `json:"-"`
	References          map[string]string      `json:"-"`
	Path                string                 `json:"path"`
}

// DirectoryEntry is the compact view of one skill exposed to the router.
// It deliberately carries no body: full instructions are disclosed only
// after a routing decision selects the skill.
type DirectoryEntry struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Dispatch    DispatchMode `json:"dispatch"`
}

// ErrSkillNotFound is returned when a skill name is not registered.
var ErrSkillNotFound = errors.New("skill not found")

// LoadError reports a malformed skill source. It is fatal at bootstrap.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("skill load failed at %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("skill load failed at %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
