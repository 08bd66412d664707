// Package report persists per-run outcome rows to Postgres so
// operators can audit sync history beyond what logs retain.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Run is one recorded sync invocation.
type Run struct {
	ID             int64
	Batch          string
	Kind           string // "process" or "lapsed"
	NewMembers     int
	UpdatedMembers int
	RemovedMembers int
	DryRun         bool
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
}

const (
	KindProcess = "process"
	KindLapsed  = "lapsed"
)

// Recorder writes run history rows.
type Recorder struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Recorder, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening run history database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging run history database: %w", err)
	}
	return &Recorder{db: db}, nil
}

// NewRecorder wraps an existing handle, used by tests.
func NewRecorder(db *sql.DB) *Recorder { return &Recorder{db: db} }

func (r *Recorder) Close() error { return r.db.Close() }

// EnsureSchema creates the run history table if missing.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sync_runs (
			id BIGSERIAL PRIMARY KEY,
			batch TEXT NOT NULL,
			kind TEXT NOT NULL,
			new_members INTEGER NOT NULL DEFAULT 0,
			updated_members INTEGER NOT NULL DEFAULT 0,
			removed_members INTEGER NOT NULL DEFAULT 0,
			dry_run BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating sync_runs table: %w", err)
	}
	return nil
}

// Record inserts one run row and returns its ID.
func (r *Recorder) Record(ctx context.Context, run Run) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sync_runs
			(batch, kind, new_members, updated_members, removed_members, dry_run, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		run.Batch, run.Kind, run.NewMembers, run.UpdatedMembers, run.RemovedMembers,
		run.DryRun, run.Error, run.StartedAt, run.FinishedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("recording sync run: %w", err)
	}
	return id, nil
}

// Recent returns the newest runs for a batch, most recent first.
func (r *Recorder) Recent(ctx context.Context, batch string, limit int) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, batch, kind, new_members, updated_members, removed_members, dry_run, error, started_at, finished_at
		FROM sync_runs
		WHERE batch = $1
		ORDER BY started_at DESC
		LIMIT $2`, batch, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		err := rows.Scan(&run.ID, &run.Batch, &run.Kind, &run.NewMembers, &run.UpdatedMembers,
			&run.RemovedMembers, &run.DryRun, &run.Error, &run.StartedAt, &run.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
