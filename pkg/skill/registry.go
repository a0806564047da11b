package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/orchid-dev/orchid/pkg/vfs"
)

// CapabilitySet answers whether a capability name is registered. Implemented
// by the capability gateway; used to reject skills that reference unknown
// capabilities at load time.
type CapabilitySet interface {
	Has(name string) bool
}

// Registry holds all loaded skills, keyed by name. Immutable during a run;
// reloadable only between runs.
type Registry struct {
	skills map[string]*Skill
	order  []string
	logger zerolog.Logger
}

// LoadAll scans sourceDir for skill subdirectories with SKILL.md files and
// loads and validates every one of them. Any malformed skill fails the whole
// load: a broken skill source should prevent startup, not surface mid-run.
func LoadAll(sourceDir string, caps CapabilitySet, logger zerolog.Logger) (*Registry, error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, &LoadError{Path: sourceDir, Reason: "cannot read skill directory", Err: err}
	}

	r := &Registry{
		skills: make(map[string]*Skill),
		logger: logger,
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillPath := filepath.Join(sourceDir, entry.Name(), skillFileName)
		if _, err := os.Stat(skillPath); err != nil {
			continue
		}

		s, err := LoadFile(skillPath)
		if err != nil {
			return nil, err
		}

		for _, capName := range s.AllowedCapabilities {
			if caps != nil && !caps.Has(capName) {
				return nil, &LoadError{
					Path:   skillPath,
					Reason: fmt.Sprintf("unknown capability %q in allowed_capabilities", capName),
				}
			}
		}

		if _, exists := r.skills[s.Name]; exists {
			return nil, &LoadError{Path: skillPath, Reason: fmt.Sprintf("duplicate skill name %q", s.Name)}
		}

		r.skills[s.Name] = s
		r.order = append(r.order, s.Name)

		logger.Debug().
			Str("skill", s.Name).
			Str("dispatch", string(s.Dispatch)).
			Int("capabilities", len(s.AllowedCapabilities)).
			Msg("Skill loaded")
	}

	sort.Strings(r.order)

	logger.Info().Int("count", len(r.skills)).Str("dir", sourceDir).Msg("Skill registry loaded")

	return r, nil
}

// Directory returns the compact metadata sequence consumed by the router.
// Entries are ordered by name and never include skill bodies.
func (r *Registry) Directory() []DirectoryEntry {
	dir := make([]DirectoryEntry, 0, len(r.order))
	for _, name := range r.order {
		s := r.skills[name]
		dir = append(dir, DirectoryEntry{
			Name:        s.Name,
			Description: s.Description,
			Dispatch:    s.Dispatch,
		})
	}
	return dir
}

// Get retrieves a skill by name
func (r *Registry) Get(name string) (*Skill, error) {
	s, ok := r.skills[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, name)
	}
	return s, nil
}

// BodyOf returns the full instruction body of a skill
func (r *Registry) BodyOf(name string) (string, error) {
	s, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return s.Body, nil
}

// Exists reports whether a skill is registered
func (r *Registry) Exists(name string) bool {
	_, ok := r.skills[name]
	return ok
}

// Count returns the number of registered skills
func (r *Registry) Count() int {
	return len(r.skills)
}

// Populate writes every skill body and reference file into the virtual
// filesystem under skills/<name>/. Called once at bootstrap, before the
// filesystem is sealed.
func (r *Registry) Populate(fs *vfs.FS) error {
	for _, name := range r.order {
		s := r.skills[name]

		skillPath := fmt.Sprintf("skills/%s/%s", s.Name, skillFileName)
		if err := fs.Write(skillPath, s.Body); err != nil {
			return fmt.Errorf("failed to populate %s: %w", skillPath, err)
		}

		for rel, content := range s.References {
			refPath := fmt.Sprintf("skills/%s/%s", s.Name, rel)
			if err := fs.Write(refPath, content); err != nil {
				return fmt.Errorf("failed to populate %s: %w", refPath, err)
			}
		}
	}

	return nil
}
