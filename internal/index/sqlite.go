// Package index implements the sync journal: run history and per-asset
// events recorded for the history command.
package index

import (
	"database/sql"
	"fmt"

	"psync-go/internal/index/migrations"
	"psync-go/internal/psync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteJournal implements psync.Journal on a local SQLite file.
type SQLiteJournal struct {
	db    *sql.DB
	clock psync.Clock
	path  string
}

var _ psync.Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal opens (or creates) the journal database at path and
// migrates it to the latest schema. path can be ":memory:" in tests.
func NewSQLiteJournal(path string, clock psync.Clock) (*SQLiteJournal, error) {
	db, err := openConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db, clock: clock, path: path}, nil
}

// openConnection opens and configures a SQLite connection.
func openConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	// Foreign keys default to OFF in SQLite for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return db, nil
}

// BeginRun inserts a run record in the "running" state and returns its id.
func (j *SQLiteJournal) BeginRun(mode, remote string) (int64, error) {
	res, err := j.db.Exec(
		`INSERT INTO sync_runs (mode, remote, started_at, status) VALUES (?, ?, ?, 'running')`,
		mode, remote, j.clock.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("creating run record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}
	return id, nil
}

// RecordEvent appends a per-asset event to a run.
func (j *SQLiteJournal) RecordEvent(runID int64, assetID, filename, action, detail string) error {
	_, err := j.db.Exec(
		`INSERT INTO asset_events (run_id, asset_id, filename, action, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, assetID, filename, action, detail, j.clock.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// FinishRun stamps the run with its final status and counters.
func (j *SQLiteJournal) FinishRun(runID int64, status string, published, deleted, failed int) error {
	_, err := j.db.Exec(
		`UPDATE sync_runs SET finished_at = ?, status = ?, published = ?, deleted = ?, failed = ? WHERE id = ?`,
		j.clock.Now().UTC(), status, published, deleted, failed, runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run record: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (j *SQLiteJournal) ListRuns(limit int) ([]*psync.Run, error) {
	rows, err := j.db.Query(
		`SELECT id, mode, remote, started_at, finished_at, status, published, deleted, failed
		 FROM sync_runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*psync.Run
	for rows.Next() {
		var run psync.Run
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Mode, &run.Remote, &run.StartedAt, &finished,
			&run.Status, &run.Published, &run.Deleted, &run.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// ListEvents returns a run's per-asset events in insertion order.
func (j *SQLiteJournal) ListEvents(runID int64) ([]*psync.Event, error) {
	rows, err := j.db.Query(
		`SELECT id, run_id, asset_id, filename, action, detail, created_at
		 FROM asset_events WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []*psync.Event
	for rows.Next() {
		var ev psync.Event
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.AssetID, &ev.Filename, &ev.Action,
			&ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

// Path returns the journal database file path.
func (j *SQLiteJournal) Path() string { return j.path }

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
