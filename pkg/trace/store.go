package trace

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// StoredRun is one persisted run row
type StoredRun struct {
	RunID          string
	Scenario       string
	Model          string
	Status         string
	ElapsedSeconds float64
	TotalSteps     int
	CreatedAt      time.Time
}

// Store persists finished traces to sqlite so past runs survive process
// restarts and can be listed or replayed later.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore opens (or creates) the run database at dbPath
func NewStore(dbPath string, logger zerolog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode allows concurrent readers while a run is being saved
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("Trace store initialized")

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			scenario TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			elapsed_seconds REAL NOT NULL,
			total_steps INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

		CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			step_number INTEGER NOT NULL,
			step_type TEXT NOT NULL,
			skill_name TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			timestamp TEXT NOT NULL,
			PRIMARY KEY (run_id, step_number),
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun persists a run and its steps in one transaction
func (s *Store) SaveRun(steps []Step, summary Summary, status, scenario, model string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO runs (run_id, scenario, model, status, elapsed_seconds, total_steps, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		summary.RunID, scenario, model, status, summary.ElapsedSeconds, summary.TotalSteps, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM steps WHERE run_id = ?", summary.RunID); err != nil {
		return fmt.Errorf("failed to clear run steps: %w", err)
	}

	for _, step := range steps {
		metadata := "{}"
		if step.Metadata != nil {
			encoded, err := json.Marshal(step.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode step metadata: %w", err)
			}
			metadata = string(encoded)
		}

		_, err := tx.Exec(
			"INSERT INTO steps (run_id, step_number, step_type, skill_name, content, metadata, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)",
			summary.RunID, step.Number, string(step.Type), step.SkillName, step.Content, metadata, step.Timestamp.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to insert step %d: %w", step.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	s.logger.Debug().
		Str("run_id", summary.RunID).
		Int("steps", len(steps)).
		Str("status", status).
		Msg("Run persisted")

	return nil
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(limit int) ([]StoredRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		"SELECT run_id, scenario, model, status, elapsed_seconds, total_steps, created_at FROM runs ORDER BY created_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []StoredRun
	for rows.Next() {
		var run StoredRun
		var createdAt int64
		if err := rows.Scan(&run.RunID, &run.Scenario, &run.Model, &run.Status, &run.ElapsedSeconds, &run.TotalSteps, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.CreatedAt = time.Unix(createdAt, 0)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// LoadSteps returns the persisted steps of one run in order
func (s *Store) LoadSteps(runID string) ([]Step, error) {
	rows, err := s.db.Query(
		"SELECT step_number, step_type, skill_name, content, metadata, timestamp FROM steps WHERE run_id = ? ORDER BY step_number",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var step Step
		var stepType, metadata, timestamp string
		if err := rows.Scan(&step.Number, &stepType, &step.SkillName, &step.Content, &metadata, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		step.Type = StepType(stepType)
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &step.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode step metadata: %w", err)
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
			step.Timestamp = ts
		}
		steps = append(steps, step)
	}

	return steps, rows.Err()
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
