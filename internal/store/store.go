// Package store is the optional sqlite journal of what each sweep deleted.
// Sweeps only write to it; nothing read back from it changes what a later
// sweep does.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var errNotInitialized = errors.New("store is not initialized")

type Store struct {
	db *sql.DB
}

// Run is one invocation of the sweep.
type Run struct {
	ID         string
	Source     string
	Account    string
	DryRun     bool
	MaxAgeDays int
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Scanned    int
	Deleted    int
	Status     string
	Error      string
}

type RunInput struct {
	Source     string
	DryRun     bool
	MaxAgeDays int
	StartedAt  time.Time
}

// RunOutcome closes a run. A non-nil Err marks it failed.
type RunOutcome struct {
	Account    string
	FinishedAt time.Time
	Scanned    int
	Deleted    int
	Err        error
}

// Deletion is one post removed (or, in dry-run mode, selected) by a run.
type Deletion struct {
	RunID     string
	PostID    string
	Kind      string
	PostedAt  time.Time
	DeletedAt time.Time
	AgeDays   int
	Text      string
	DryRun    bool
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// PRAGMA foreign_keys is per connection.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun inserts a running row and returns its id.
func (s *Store) BeginRun(ctx context.Context, in RunInput) (string, error) {
	if s == nil || s.db == nil {
		return "", errNotInitialized
	}
	if strings.TrimSpace(in.Source) == "" {
		return "", errors.New("source is required")
	}
	if in.StartedAt.IsZero() {
		return "", errors.New("started_at is required")
	}

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source, dry_run, max_age_days, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, in.Source, boolInt(in.DryRun), in.MaxAgeDays, formatTime(in.StartedAt), StatusRunning)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome of a run started with BeginRun.
func (s *Store) FinishRun(ctx context.Context, id string, out RunOutcome) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if out.FinishedAt.IsZero() {
		return errors.New("finished_at is required")
	}

	status := StatusOK
	var errVal sql.NullString
	if out.Err != nil {
		status = StatusFailed
		errVal = sql.NullString{String: out.Err.Error(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET account = COALESCE(NULLIF(?, ''), account),
			finished_at = ?, scanned = ?, deleted = ?, status = ?, error = ?
		WHERE id = ?
	`, out.Account, formatTime(out.FinishedAt), out.Scanned, out.Deleted, status, errVal, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %q", id)
	}
	return nil
}

// RecordDeletion appends one deletion to a run. Recording the same post
// twice for a run is an error.
func (s *Store) RecordDeletion(ctx context.Context, d Deletion) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	switch {
	case d.RunID == "":
		return errors.New("run_id is required")
	case d.PostID == "":
		return errors.New("post_id is required")
	case d.DeletedAt.IsZero():
		return errors.New("deleted_at is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deletions (run_id, post_id, kind, posted_at, deleted_at, age_days, text, dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.RunID,
		d.PostID,
		d.Kind,
		formatTime(d.PostedAt),
		formatTime(d.DeletedAt),
		d.AgeDays,
		d.Text,
		boolInt(d.DryRun),
	)
	if err != nil {
		return fmt.Errorf("record deletion %s: %w", d.PostID, err)
	}
	return nil
}

// ListRuns returns runs started at or after since, newest first. A limit of
// zero or less means no limit.
func (s *Store) ListRuns(ctx context.Context, since time.Time, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}

	query := `
		SELECT id, source, account, dry_run, max_age_days, started_at, finished_at,
			scanned, deleted, status, error
		FROM runs
		WHERE started_at >= ?
		ORDER BY started_at DESC`
	args := []any{formatTime(since)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListDeletions returns the deletions of one run in the order they happened.
func (s *Store) ListDeletions(ctx context.Context, runID string) ([]Deletion, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, post_id, kind, posted_at, deleted_at, age_days, text, dry_run
		FROM deletions
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list deletions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Deletion
	for rows.Next() {
		var (
			d                   Deletion
			postedAt, deletedAt string
			dryRun              int
		)
		if err := rows.Scan(&d.RunID, &d.PostID, &d.Kind, &postedAt, &deletedAt, &d.AgeDays, &d.Text, &dryRun); err != nil {
			return nil, fmt.Errorf("scan deletion: %w", err)
		}
		if d.PostedAt, err = parseTime(postedAt); err != nil {
			return nil, fmt.Errorf("parse posted_at: %w", err)
		}
		if d.DeletedAt, err = parseTime(deletedAt); err != nil {
			return nil, fmt.Errorf("parse deleted_at: %w", err)
		}
		d.DryRun = dryRun != 0
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deletions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (Run, error) {
	var (
		run                Run
		dryRun             int
		startedAt          string
		finishedAt, errVal sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Source,
		&run.Account,
		&dryRun,
		&run.MaxAgeDays,
		&startedAt,
		&finishedAt,
		&run.Scanned,
		&run.Deleted,
		&run.Status,
		&errVal,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.DryRun = dryRun != 0
	if errVal.Valid {
		run.Error = errVal.String
	}

	var err error
	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		run.FinishedAt, err = parseTime(finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	return run, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(timeLayout, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
