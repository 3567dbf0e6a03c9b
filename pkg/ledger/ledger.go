// Package ledger records sync runs in a local SQLite database so that the
// outcome of past runs can be inspected after the process exits.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Sternrassler/rickmorty-sync/pkg/record"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Run is one sync of one kind.
type Run struct {
	ID         string
	Kind       record.Kind
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     Status
	Pages      int
	Written    int
	Skipped    int
	Error      string
}

// Ledger stores runs in SQLite.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS runs (
		  id          TEXT PRIMARY KEY,
		  kind        TEXT NOT NULL,
		  started_at  INTEGER NOT NULL,
		  finished_at INTEGER,
		  status      TEXT NOT NULL,
		  pages       INTEGER NOT NULL DEFAULT 0,
		  written     INTEGER NOT NULL DEFAULT 0,
		  skipped     INTEGER NOT NULL DEFAULT 0,
		  error       TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started
		ON runs(started_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", 1)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

// Start inserts a RUNNING run for kind.
func (l *Ledger) Start(ctx context.Context, kind record.Kind) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		StartedAt: l.now().UTC(),
		Status:    StatusRunning,
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, started_at, status) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.StartedAt.UnixMilli(), string(run.Status))
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// Finish marks run COMPLETED, or FAILED with runErr's message, and stores
// its counters.
func (l *Ledger) Finish(ctx context.Context, run *Run, runErr error) error {
	run.FinishedAt = l.now().UTC()
	run.Status = StatusCompleted
	run.Error = ""
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}

	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, pages = ?, written = ?, skipped = ?, error = ? WHERE id = ?`,
		run.FinishedAt.UnixMilli(), string(run.Status), run.Pages, run.Written, run.Skipped,
		nullString(run.Error), run.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run: run %s not found", run.ID)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, kind, started_at, finished_at, status, pages, written, skipped, error
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			kind     string
			status   string
			started  int64
			finished sql.NullInt64
			errText  sql.NullString
		)
		if err := rows.Scan(&run.ID, &kind, &started, &finished, &status,
			&run.Pages, &run.Written, &run.Skipped, &errText); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Kind = record.Kind(kind)
		run.Status = Status(status)
		run.StartedAt = time.UnixMilli(started).UTC()
		if finished.Valid {
			run.FinishedAt = time.UnixMilli(finished.Int64).UTC()
		}
		run.Error = errText.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
