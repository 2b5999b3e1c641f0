package index

import (
	"fmt"
	"sync"

	"psync-go/internal/psync"
)

// MemoryJournal is an in-memory implementation of psync.Journal.
// Useful for tests and for running without a journal file.
// Safe for concurrent use.
type MemoryJournal struct {
	clock psync.Clock

	mu     sync.Mutex
	runs   []*psync.Run
	events []*psync.Event
	nextID int64
}

var _ psync.Journal = (*MemoryJournal)(nil)

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal(clock psync.Clock) *MemoryJournal {
	return &MemoryJournal{clock: clock, nextID: 1}
}

func (j *MemoryJournal) BeginRun(mode, remote string) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	run := &psync.Run{
		ID:        j.nextID,
		Mode:      mode,
		Remote:    remote,
		StartedAt: j.clock.Now().UTC(),
		Status:    "running",
	}
	j.nextID++
	j.runs = append(j.runs, run)
	return run.ID, nil
}

func (j *MemoryJournal) RecordEvent(runID int64, assetID, filename, action, detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.findRun(runID) == nil {
		return fmt.Errorf("no run with id %d", runID)
	}
	j.events = append(j.events, &psync.Event{
		ID:        int64(len(j.events) + 1),
		RunID:     runID,
		AssetID:   assetID,
		Filename:  filename,
		Action:    action,
		Detail:    detail,
		CreatedAt: j.clock.Now().UTC(),
	})
	return nil
}

func (j *MemoryJournal) FinishRun(runID int64, status string, published, deleted, failed int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	run := j.findRun(runID)
	if run == nil {
		return fmt.Errorf("no run with id %d", runID)
	}
	now := j.clock.Now().UTC()
	run.FinishedAt = &now
	run.Status = status
	run.Published = int64(published)
	run.Deleted = int64(deleted)
	run.Failed = int64(failed)
	return nil
}

func (j *MemoryJournal) ListRuns(limit int) ([]*psync.Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []*psync.Run
	for i := len(j.runs) - 1; i >= 0 && len(out) < limit; i-- {
		run := *j.runs[i]
		out = append(out, &run)
	}
	return out, nil
}

func (j *MemoryJournal) ListEvents(runID int64) ([]*psync.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []*psync.Event
	for _, ev := range j.events {
		if ev.RunID == runID {
			e := *ev
			out = append(out, &e)
		}
	}
	return out, nil
}

func (j *MemoryJournal) Close() error { return nil }

// findRun must be called with the lock held.
func (j *MemoryJournal) findRun(runID int64) *psync.Run {
	for _, run := range j.runs {
		if run.ID == runID {
			return run
		}
	}
	return nil
}
