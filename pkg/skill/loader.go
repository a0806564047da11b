package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	skillFileName = "SKILL.md"
	referencesDir = "references"

	maxNameLen        = 64
	maxDescriptionLen = 1024
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Required body sections. Isolated skills additionally need the
// final-message section: their sub-context is discarded after the run
// and only the last message survives, so the body must say so.
var (
	purposeHeading      = regexp.MustCompile(`(?mi)^#{1,6}\s+purpose\b`)
	outputHeading       = regexp.MustCompile(`(?mi)^#{1,6}\s+output\s+requirements\b`)
	guardrailsHeading   = regexp.MustCompile(`(?mi)^#{1,6}\s+guardrails\b`)
	finalMessageHeading = regexp.MustCompile(`(?mi)^#{1,6}\s+final\s+message\b`)
)

type frontmatter struct {
	Name                string                 `yaml:"name"`
	Description         string                 `yaml:"description"`
	Version             string                 `yaml:"version"`
	Dispatch            string                 `yaml:"dispatch"`
	AllowedCapabilities []string               `yaml:"allowed_capabilities"`
	MaxIterations       int                    `yaml:"max_iterations"`
	TimeoutSeconds      int                    `yaml:"timeout_seconds"`
	OutputSchema        map[string]interface{} `yaml:"output_schema"`
}

// LoadFile parses and validates a single SKILL.md file
func LoadFile(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "read failed", Err: err}
	}

	fm, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, &LoadError{Path: path, Reason: err.Error()}
	}

	var parsed frontmatter
	if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
		return nil, &LoadError{Path: path, Reason: "invalid frontmatter", Err: err}
	}

	s := &Skill{
		Name:                strings.TrimSpace(parsed.Name),
		Description:         strings.TrimSpace(parsed.Description),
		Version:             strings.TrimSpace(parsed.Version),
		Dispatch:            DispatchMode(strings.TrimSpace(parsed.Dispatch)),
		AllowedCapabilities: dedupe(parsed.AllowedCapabilities),
		MaxIterations:       parsed.MaxIterations,
		TimeoutSeconds:      parsed.TimeoutSeconds,
		OutputSchema:        parsed.OutputSchema,
		Body:                strings.TrimSpace(body),
		Path:                path,
	}
	if s.Version == "" {
		s.Version = "0.1"
	}

	if err := validate(s); err != nil {
		return nil, &LoadError{Path: path, Reason: err.Error()}
	}

	refs, err := loadReferences(filepath.Dir(path))
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "failed to load references", Err: err}
	}
	s.References = refs

	return s, nil
}

func splitFrontmatter(content string) (string, string, error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return "", "", fmt.Errorf("missing frontmatter")
	}
	parts := strings.SplitN(trimmed, "---", 3)
	if len(parts) < 3 {
		return "", "", fmt.Errorf("invalid frontmatter")
	}
	return strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), nil
}

func validate(s *Skill) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Name) > maxNameLen {
		return fmt.Errorf("name exceeds %d characters", maxNameLen)
	}
	if !namePattern.MatchString(s.Name) {
		return fmt.Errorf("name must match %s", namePattern.String())
	}
	if dirName := filepath.Base(filepath.Dir(s.Path)); dirName != s.Name {
		return fmt.Errorf("name must match directory name (%s)", dirName)
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Description) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	}

	if !s.Dispatch.Valid() {
		return fmt.Errorf("dispatch must be %q or %q, got %q", DispatchInline, DispatchIsolated, s.Dispatch)
	}

	if s.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", s.MaxIterations)
	}
	if s.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", s.TimeoutSeconds)
	}

	if s.Body == "" {
		return fmt.Errorf("body is required")
	}
	if !purposeHeading.MatchString(s.Body) {
		return fmt.Errorf("body is missing a purpose section")
	}
	if !outputHeading.MatchString(s.Body) {
		return fmt.Errorf("body is missing an output requirements section")
	}
	if !guardrailsHeading.MatchString(s.Body) {
		return fmt.Errorf("body is missing a guardrails section")
	}
	if s.Dispatch == DispatchIsolated && !finalMessageHeading.MatchString(s.Body) {
		return fmt.Errorf("isolated skill body is missing a final message section")
	}

	return nil
}

func loadReferences(skillDir string) (map[string]string, error) {
	refsPath := filepath.Join(skillDir, referencesDir)
	info, err := os.Stat(refsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	refs := make(map[string]string)
	err = filepath.WalkDir(refsPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(skillDir, path)
		if err != nil {
			return err
		}
		refs[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return refs, nil
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
