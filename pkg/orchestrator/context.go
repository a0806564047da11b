package orchestrator

import (
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/orchid-dev/orchid/internal/observability"
	"github.com/orchid-dev/orchid/pkg/provider"
	"github.com/orchid-dev/orchid/pkg/trace"
)

// foldPreviewBytes caps how much of the first user entry survives
// verbatim inside a fold summary.
const foldPreviewBytes = 200

// Entry is one item of accumulated run history
type Entry struct {
	Role    string
	Content string
}

// EstimateTokens provides a rough token count estimation
func EstimateTokens(entries []Entry) int {
	totalChars := 0
	for _, entry := range entries {
		totalChars += len(entry.Content)
	}
	// Rough estimation: 1 token ≈ 4 characters
	return (totalChars + 3) / 4
}

// CompactionEvent describes one compaction of the run history
type CompactionEvent struct {
	EntriesFolded int
	Summary       string
}

// ContextManager owns the orchestrator's accumulated history for one
// run and bounds its growth. Compaction replaces the oldest contiguous
// entries with a single summary entry, keeping the most recent ones
// untouched, and always emits an explicit compaction trace step.
// SubContexts never pass through here; their lifetime is bounded by
// iteration and timeout budgets instead.
type ContextManager struct {
	entries         []Entry
	thresholdTokens int
	keepRecent      int
	recorder        *trace.Recorder
	logger          zerolog.Logger
	// dirty is set by Track and cleared by MaybeCompact, so compacting
	// an unchanged context never emits a second compaction event
	dirty bool
}

// ContextConfig configures a ContextManager
type ContextConfig struct {
	ThresholdTokens int
	KeepRecent      int
	Recorder        *trace.Recorder
	Logger          zerolog.Logger
}

// NewContextManager creates a context manager for one run
func NewContextManager(cfg ContextConfig) *ContextManager {
	if cfg.ThresholdTokens <= 0 {
		cfg.ThresholdTokens = 8192
	}
	if cfg.KeepRecent <= 0 {
		cfg.KeepRecent = 6
	}

	return &ContextManager{
		thresholdTokens: cfg.ThresholdTokens,
		keepRecent:      cfg.KeepRecent,
		recorder:        cfg.Recorder,
		logger:          cfg.Logger,
	}
}

// Track appends an entry and updates the size estimate
func (cm *ContextManager) Track(role, content string) {
	cm.entries = append(cm.entries, Entry{Role: role, Content: content})
	cm.dirty = true
}

// Entries returns the current history in order
func (cm *ContextManager) Entries() []Entry {
	out := make([]Entry, len(cm.entries))
	copy(out, cm.entries)
	return out
}

// Len returns the number of history entries
func (cm *ContextManager) Len() int {
	return len(cm.entries)
}

// TokenEstimate returns the running size estimate
func (cm *ContextManager) TokenEstimate() int {
	return EstimateTokens(cm.entries)
}

// Messages converts the history into provider messages
func (cm *ContextManager) Messages() []provider.Message {
	messages := make([]provider.Message, 0, len(cm.entries))
	for _, entry := range cm.entries {
		role := entry.Role
		if role != "user" && role != "assistant" {
			// Summary and observation entries travel as user turns so
			// every provider accepts them
			role = "user"
		}
		messages = append(messages, provider.Message{Role: role, Content: entry.Content})
	}
	return messages
}

// MaybeCompact folds the oldest entries into one summary entry when the
// size estimate crosses the threshold. Returns nil when nothing was
// compacted.
func (cm *ContextManager) MaybeCompact() *CompactionEvent {
	if !cm.dirty {
		return nil
	}

	tokenCount := EstimateTokens(cm.entries)
	if tokenCount <= cm.thresholdTokens {
		return nil
	}
	if len(cm.entries) <= cm.keepRecent {
		return nil
	}

	cm.logger.Info().
		Int("tokenCount", tokenCount).
		Int("threshold", cm.thresholdTokens).
		Msg("Compacting run context")

	folded := cm.entries[:len(cm.entries)-cm.keepRecent]
	recent := cm.entries[len(cm.entries)-cm.keepRecent:]

	summary := cm.summarize(folded)

	compacted := make([]Entry, 0, cm.keepRecent+1)
	compacted = append(compacted, Entry{Role: "summary", Content: summary})
	compacted = append(compacted, recent...)
	cm.entries = compacted
	cm.dirty = false

	event := &CompactionEvent{
		EntriesFolded: len(folded),
		Summary:       summary,
	}

	if cm.recorder != nil {
		cm.recorder.Record(trace.StepCompaction, "",
			fmt.Sprintf("Folded %d entries into a summary; execution continues uninterrupted", event.EntriesFolded),
			map[string]interface{}{
				"entries_folded": event.EntriesFolded,
				"summary":        event.Summary,
			})
	}
	observability.RecordCompaction(event.EntriesFolded)

	return event
}

// summarize condenses folded entries into a single history entry. The
// fold is structural, not model-generated: it names what happened so
// the router keeps its bearings without re-reading old observations.
func (cm *ContextManager) summarize(folded []Entry) string {
	preview := ""
	for _, entry := range folded {
		if entry.Role == "user" && preview == "" {
			preview = entry.Content
			if len(preview) > foldPreviewBytes {
				cut := foldPreviewBytes
				for cut > 0 && !utf8.RuneStart(preview[cut]) {
					cut--
				}
				preview = preview[:cut]
			}
		}
	}

	if preview != "" {
		return fmt.Sprintf("[Previous context summary: %d entries exchanged, beginning with: %s]", len(folded), preview)
	}
	return fmt.Sprintf("[Previous context summary: %d entries exchanged]", len(folded))
}
