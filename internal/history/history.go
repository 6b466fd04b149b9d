// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history records finished pipeline runs and the papers each one
// selected in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/arxiv-digest/pkg/types"
)

const defaultRecent = 20

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound means no run has the requested id.
var ErrNotFound = errors.New("run not found")

// Store is the run history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL,
			candidates INTEGER NOT NULL DEFAULT 0,
			selected INTEGER NOT NULL DEFAULT 0,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS selections (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			record_index INTEGER NOT NULL,
			paper_id TEXT NOT NULL,
			title TEXT,
			affiliation TEXT,
			url TEXT,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_selections_paper_id ON selections(paper_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record stores a finished run and its selected entries. Recording the same
// run id again replaces the earlier row.
func (s *Store) Record(ctx context.Context, sum types.RunSummary, entries []types.ReportEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, status, candidates, selected, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			started_at=excluded.started_at, finished_at=excluded.finished_at,
			status=excluded.status, candidates=excluded.candidates,
			selected=excluded.selected, error=excluded.error`,
		sum.RunID, formatTime(sum.StartedAt), formatTime(sum.FinishedAt),
		string(sum.Status), sum.Candidates, sum.Selected, sum.Error,
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM selections WHERE run_id = ?`, sum.RunID); err != nil {
		return fmt.Errorf("clearing selections: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO selections (run_id, position, record_index, paper_id, title, affiliation, url)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for pos, e := range entries {
		if _, err := stmt.ExecContext(ctx, sum.RunID, pos, e.Index, e.PaperID, e.Title, e.Affiliation, e.URL); err != nil {
			return fmt.Errorf("inserting selection %s: %w", e.PaperID, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to n runs, newest first. A non-positive n returns the
// last twenty.
func (s *Store) Recent(ctx context.Context, n int) ([]types.RunSummary, error) {
	if n <= 0 {
		n = defaultRecent
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status, candidates, selected, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []types.RunSummary
	for rows.Next() {
		sum, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Run returns one run and its selected entries.
func (s *Store) Run(ctx context.Context, id string) (types.RunSummary, []types.ReportEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, status, candidates, selected, error
		 FROM runs WHERE id = ?`, id)
	sum, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RunSummary{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.RunSummary{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT record_index, paper_id, title, affiliation, url
		 FROM selections WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return sum, nil, fmt.Errorf("querying selections: %w", err)
	}
	defer rows.Close()

	var entries []types.ReportEntry
	for rows.Next() {
		var e types.ReportEntry
		var title, aff, url sql.NullString
		if err := rows.Scan(&e.Index, &e.PaperID, &title, &aff, &url); err != nil {
			return sum, nil, fmt.Errorf("scanning selection: %w", err)
		}
		e.Title, e.Affiliation, e.URL = title.String, aff.String, url.String
		entries = append(entries, e)
	}
	return sum, entries, rows.Err()
}

// TimesSelected returns how many recorded runs selected paperID.
func (s *Store) TimesSelected(ctx context.Context, paperID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(DISTINCT run_id) FROM selections WHERE paper_id = ?`, paperID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting selections: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (types.RunSummary, error) {
	var (
		sum              types.RunSummary
		started          string
		finished, errMsg sql.NullString
		status           string
	)
	if err := row.Scan(&sum.RunID, &started, &finished, &status, &sum.Candidates, &sum.Selected, &errMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sum, err
		}
		return sum, fmt.Errorf("scanning run: %w", err)
	}
	sum.Status = types.RunStatus(status)
	sum.StartedAt = parseTime(started)
	sum.FinishedAt = parseTime(finished.String)
	sum.Error = errMsg.String
	return sum, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
