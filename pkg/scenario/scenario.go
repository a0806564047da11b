// Package scenario loads YAML request descriptors: a named user request
// plus optional advisory expectation checks evaluated against the
// finished run. Expectations report, they never fail a run.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orchid-dev/orchid/pkg/orchestrator"
)

// Expectation check types
const (
	CheckOutputContains = "output_contains"
	CheckSkillInvoked   = "skill_invoked"
	CheckCapabilityUsed = "capability_used"
	CheckMaxSteps       = "max_steps"
)

// Expectation is one advisory check on a finished run
type Expectation struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// Scenario is one request descriptor
type Scenario struct {
	Name         string        `yaml:"name"`
	Model        string        `yaml:"model"`
	Input        Input         `yaml:"input"`
	Expectations []Expectation `yaml:"expectations"`
}

// Input holds the user-facing request
type Input struct {
	UserRequest string `yaml:"user_request"`
}

// CheckResult is the outcome of one expectation check
type CheckResult struct {
	Expectation Expectation `json:"expectation"`
	Met         bool        `json:"met"`
	Detail      string      `json:"detail,omitempty"`
}

// Load parses a scenario file
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}

	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if s.Input.UserRequest == "" {
		return nil, fmt.Errorf("scenario %s has no input.user_request", s.Name)
	}

	for i, exp := range s.Expectations {
		switch exp.Type {
		case CheckOutputContains, CheckSkillInvoked, CheckCapabilityUsed, CheckMaxSteps:
		default:
			return nil, fmt.Errorf("scenario %s expectation %d has unknown type %q", s.Name, i+1, exp.Type)
		}
	}

	return &s, nil
}

// Evaluate runs every expectation against a finished run. Results are
// advisory: they land in run metadata, never in the run status.
func (s *Scenario) Evaluate(result *orchestrator.RunResult) []CheckResult {
	checks := make([]CheckResult, 0, len(s.Expectations))

	for _, exp := range s.Expectations {
		check := CheckResult{Expectation: exp}

		switch exp.Type {
		case CheckOutputContains:
			check.Met = strings.Contains(strings.ToLower(result.Output), strings.ToLower(exp.Value))
			if !check.Met {
				check.Detail = fmt.Sprintf("output does not mention %q", exp.Value)
			}

		case CheckSkillInvoked:
			for _, name := range result.Summary.SkillsInvoked {
				if name == exp.Value {
					check.Met = true
					break
				}
			}
			if !check.Met {
				check.Detail = fmt.Sprintf("skill %s was never activated", exp.Value)
			}

		case CheckCapabilityUsed:
			for _, name := range result.Summary.CapabilitiesUsed {
				if name == exp.Value {
					check.Met = true
					break
				}
			}
			if !check.Met {
				check.Detail = fmt.Sprintf("capability %s was never called", exp.Value)
			}

		case CheckMaxSteps:
			var limit int
			if _, err := fmt.Sscanf(exp.Value, "%d", &limit); err != nil {
				check.Detail = fmt.Sprintf("invalid max_steps value %q", exp.Value)
				break
			}
			check.Met = result.Summary.TotalSteps <= limit
			if !check.Met {
				check.Detail = fmt.Sprintf("run took %d steps, limit was %d", result.Summary.TotalSteps, limit)
			}
		}

		checks = append(checks, check)
	}

	return checks
}

// MetCount returns how many checks were met
func MetCount(checks []CheckResult) int {
	met := 0
	for _, check := range checks {
		if check.Met {
			met++
		}
	}
	return met
}
