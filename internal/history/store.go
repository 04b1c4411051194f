// Package history persists completed refresh runs to a small SQLite
// database inside the workspace, so `status` can show what happened after
// the watching process is gone.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	ferrors "git.home.luguber.info/inful/bazelide/internal/foundation/errors"
)

// Entry is one recorded refresh run.
type Entry struct {
	ID          int64
	RunID       string
	Targets     string
	Generator   string
	Cause       string
	Succeeded   bool
	Artifact    string // "changed", "unchanged" or "unknown"
	ElapsedMS   int64
	ErrorDetail string
	FinishedAt  time.Time
}

// Store is a SQLite-backed refresh log. Use ":memory:" for tests.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates the database file (and its parent directory) if needed and
// initializes the schema.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "failed to create history directory").
				Warning().
				Build()
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "failed to open history database").
			Warning().
			Build()
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "failed to initialize history schema").
			Warning().
			Build()
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS refreshes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		targets TEXT NOT NULL,
		generator TEXT NOT NULL,
		cause TEXT NOT NULL,
		succeeded INTEGER NOT NULL,
		artifact TEXT NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		error_detail TEXT,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_refreshes_finished_at ON refreshes(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one completed run.
func (s *Store) Record(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	succeeded := 0
	if e.Succeeded {
		succeeded = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refreshes (run_id, targets, generator, cause, succeeded, artifact, elapsed_ms, error_detail, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Targets, e.Generator, e.Cause, succeeded, e.Artifact, e.ElapsedMS, e.ErrorDetail, e.FinishedAt.Unix(),
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryHistory, "failed to record refresh").
			Warning().
			Build()
	}
	return nil
}

// Last returns the most recent run, or ok=false when the log is empty.
func (s *Store) Last(ctx context.Context) (Entry, bool, error) {
	entries, err := s.Recent(ctx, 1)
	if err != nil {
		return Entry{}, false, err
	}
	if len(entries) == 0 {
		return Entry{}, false, nil
	}
	return entries[0], true, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, targets, generator, cause, succeeded, artifact, elapsed_ms, error_detail, finished_at
		 FROM refreshes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryHistory, "failed to query refresh history").
			Warning().
			Build()
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var succeeded int
		var errorDetail sql.NullString
		var finishedUnix int64

		if err := rows.Scan(&e.ID, &e.RunID, &e.Targets, &e.Generator, &e.Cause,
			&succeeded, &e.Artifact, &e.ElapsedMS, &errorDetail, &finishedUnix); err != nil {
			return nil, fmt.Errorf("scan refresh entry: %w", err)
		}
		e.Succeeded = succeeded != 0
		e.ErrorDetail = errorDetail.String
		e.FinishedAt = time.Unix(finishedUnix, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh entries: %w", err)
	}
	return entries, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
