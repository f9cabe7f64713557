// Package store archives finished investigations in SQLite so they can be
// listed and replayed after their in-memory event logs are swept.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"dossier/internal/events"
	"dossier/internal/logging"
	"dossier/internal/pipeline"
	"dossier/internal/types"
)

// ErrNotFound is returned when a run is not in the archive.
var ErrNotFound = errors.New("run not archived")

// Archive is a SQLite-backed run archive. Safe for concurrent use.
type Archive struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// RunSummary is one row of ListRuns.
type RunSummary struct {
	ID           string             `json:"id"`
	Query        string             `json:"query"`
	Status       types.Status       `json:"status"`
	QualityCheck types.QualityCheck `json:"quality_check,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	FinishedAt   time.Time          `json:"finished_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	status TEXT NOT NULL,
	quality_check TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	snapshot TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

CREATE TABLE IF NOT EXISTS run_events (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	at INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Open opens or creates the archive at path. ":memory:" keeps it in memory.
func Open(path string) (*Archive, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.Open")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("%s failed: %v", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Store("Run archive ready at %s", path)
	return &Archive{db: db, dbPath: path}, nil
}

// Path returns the database location.
func (a *Archive) Path() string {
	return a.dbPath
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveRun stores the run snapshot and its full event log, replacing any
// earlier copy of the same run.
func (a *Archive) SaveRun(ctx context.Context, run pipeline.Run, log []events.Event) error {
	snapshot, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	var quality types.QualityCheck
	if run.Report != nil {
		quality = run.Report.QualityCheck
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, query, status, quality_check, created_at, finished_at, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			quality_check = excluded.quality_check,
			finished_at = excluded.finished_at,
			snapshot = excluded.snapshot`,
		run.ID, run.Query, string(run.Status), string(quality),
		toNanos(run.CreatedAt), toNanos(run.FinishedAt), string(snapshot))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_events WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_events (run_id, seq, kind, payload, at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range log {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode event %d: %w", ev.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, run.ID, ev.Seq, string(ev.Kind), string(payload), toNanos(ev.Time)); err != nil {
			return fmt.Errorf("failed to save event %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	logging.StoreDebug("Archived run %s (%s, %d events)", run.ID, run.Status, len(log))
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (a *Archive) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	q := `SELECT id, query, status, quality_check, created_at, finished_at FROM runs ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s                 RunSummary
			status, quality   string
			created, finished int64
		)
		if err := rows.Scan(&s.ID, &s.Query, &status, &quality, &created, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.Status = types.Status(status)
		s.QualityCheck = types.QualityCheck(quality)
		s.CreatedAt = fromNanos(created)
		s.FinishedAt = fromNanos(finished)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadRun returns the archived snapshot of a run.
func (a *Archive) LoadRun(ctx context.Context, id string) (pipeline.Run, error) {
	var snapshot string
	err := a.db.QueryRowContext(ctx, `SELECT snapshot FROM runs WHERE id = ?`, id).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return pipeline.Run{}, fmt.Errorf("failed to load run: %w", err)
	}

	var run pipeline.Run
	if err := json.Unmarshal([]byte(snapshot), &run); err != nil {
		return pipeline.Run{}, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return run, nil
}

// LoadEvents returns the archived events of a run with Seq > after.
// Payloads come back as json.RawMessage.
func (a *Archive) LoadEvents(ctx context.Context, id string, after int64) ([]events.Event, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT seq, kind, payload, at FROM run_events WHERE run_id = ? AND seq > ? ORDER BY seq`, id, after)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			ev      events.Event
			kind    string
			payload string
			at      int64
		)
		if err := rows.Scan(&ev.Seq, &kind, &payload, &at); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.RunID = id
		ev.Kind = events.Kind(kind)
		ev.Payload = json.RawMessage(payload)
		ev.Time = fromNanos(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// DeleteBefore removes runs created before cutoff and returns how many.
func (a *Archive) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Store("Pruned %d archived runs older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
