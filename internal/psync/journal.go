package psync

import "time"

// Run is one recorded sync or delete invocation.
type Run struct {
	ID         int64
	Mode       string // "sync" or "delete"
	Remote     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string // "running", "success" or "error"
	Published  int64
	Deleted    int64
	Failed     int64
}

// Event is one per-asset outcome within a run.
type Event struct {
	ID        int64
	RunID     int64
	AssetID   string
	Filename  string
	Action    string // "published", "deleted" or "failed"
	Detail    string // error kind and message for failures
	CreatedAt time.Time
}

// Journal records run history for the history command. It is a local
// cache, not authoritative state: journal failures after a committed
// publish are logged but never fail the run.
type Journal interface {
	BeginRun(mode, remote string) (int64, error)
	RecordEvent(runID int64, assetID, filename, action, detail string) error
	FinishRun(runID int64, status string, published, deleted, failed int) error
	ListRuns(limit int) ([]*Run, error)
	ListEvents(runID int64) ([]*Event, error)
	Close() error
}
