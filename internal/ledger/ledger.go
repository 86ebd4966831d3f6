// Package ledger archives run summaries in SQLite so past runs can be listed
// and inspected without walking artifact directories.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"storyforge/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    invocation_id TEXT NOT NULL,
    run_id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    project_path TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT NOT NULL,
    stages_completed INTEGER NOT NULL DEFAULT 0,
    stages_skipped INTEGER NOT NULL DEFAULT 0,
    stages_failed INTEGER NOT NULL DEFAULT 0,
    errors_json TEXT NOT NULL DEFAULT '[]',
    recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project_id, run_id);
`

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun appends one run summary to the ledger.
func (s *Store) RecordRun(ctx context.Context, summary *pipeline.Summary) error {
	var completed, skipped, failed int
	for _, result := range summary.Stages {
		switch result.Status {
		case "completed":
			completed++
		case "skipped":
			skipped++
		case "failed":
			failed++
		}
	}
	errorsJSON, err := json.Marshal(summary.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO runs (
            invocation_id, run_id, project_id, project_path, status,
            started_at, completed_at,
            stages_completed, stages_skipped, stages_failed,
            errors_json, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.InvocationID,
		summary.RunID,
		summary.ProjectID,
		summary.ProjectPath,
		summary.Status,
		summary.StartedAt,
		summary.CompletedAt,
		completed,
		skipped,
		failed,
		string(errorsJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

// Entry is one archived run invocation.
type Entry struct {
	ID              int64
	InvocationID    string
	RunID           string
	ProjectID       string
	ProjectPath     string
	Status          string
	StartedAt       string
	CompletedAt     string
	StagesCompleted int
	StagesSkipped   int
	StagesFailed    int
	Errors          []string
	RecordedAt      string
}

// List returns the most recent entries, newest first. A non-empty projectID
// filters to one project; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, projectID string, limit int) ([]Entry, error) {
	query := `SELECT id, invocation_id, run_id, project_id, project_path, status,
        started_at, completed_at, stages_completed, stages_skipped, stages_failed,
        errors_json, recorded_at FROM runs`
	args := []any{}
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var errorsJSON string
		if err := rows.Scan(
			&entry.ID, &entry.InvocationID, &entry.RunID, &entry.ProjectID,
			&entry.ProjectPath, &entry.Status, &entry.StartedAt, &entry.CompletedAt,
			&entry.StagesCompleted, &entry.StagesSkipped, &entry.StagesFailed,
			&errorsJSON, &entry.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		if err := json.Unmarshal([]byte(errorsJSON), &entry.Errors); err != nil {
			entry.Errors = []string{errorsJSON}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
