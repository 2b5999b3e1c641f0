package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"psync-go/internal/archive"
	"psync-go/internal/config"
	"psync-go/internal/encryption"
	"psync-go/internal/index"
	"psync-go/internal/psync"
	"psync-go/internal/remote"
	"psync-go/internal/store"
)

// PsyncApp is the application layer between the CLI and SyncService.
// It constructs all dependencies from config and manages the journal and
// log file lifecycle on Close.
type PsyncApp struct {
	cfg       *config.Config
	journal   psync.Journal
	archive   psync.Archive
	encryptor psync.Encryptor
	service   *psync.SyncService
	logFile   *os.File
}

// NewPsyncApp creates a fully wired PsyncApp from the given config.
// operation identifies the CLI command being run (e.g. "sync", "delete").
// The caller must call Close when done.
func NewPsyncApp(cfg *config.Config, operation string) (*PsyncApp, error) {
	clock := psync.RealClock{}

	opID := clock.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	device, err := remote.NewClient(cfg.Remote)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating remote client: %w", err)
	}

	st, err := store.NewFilesystemStore(cfg.TargetDir, log)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating local store: %w", err)
	}

	journal, err := index.NewJournalFromConfig(cfg.Journal, clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating journal: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		journal.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	arc, err := archive.NewArchiveFromConfig(cfg.Archive, enc)
	if err != nil {
		journal.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	svc := psync.NewSyncService(device, st, journal, log, clock, cfg.Concurrency)
	if len(cfg.Exclude) > 0 || len(cfg.MediaTypes) > 0 {
		svc.SetFilter(psync.NewCatalogFilter(cfg.Exclude, cfg.MediaTypes))
	}
	if arc != nil {
		svc.SetArchive(arc)
	}

	log.Info("starting", "operation", operation, "remote", cfg.Remote)

	return &PsyncApp{
		cfg:       cfg,
		journal:   journal,
		archive:   arc,
		encryptor: enc,
		service:   svc,
		logFile:   logFile,
	}, nil
}

// SetProgress registers the per-item progress callback on the service.
func (a *PsyncApp) SetProgress(fn psync.ProgressFunc) {
	a.service.SetProgress(fn)
}

// Plan computes the sync diff without fetching anything.
func (a *PsyncApp) Plan(ctx context.Context) (psync.Plan, error) {
	return a.service.Plan(ctx)
}

// Sync mirrors every missing remote asset into the local tree.
func (a *PsyncApp) Sync(ctx context.Context) (*psync.Report, error) {
	return a.service.Sync(ctx)
}

// DeleteMirrored deletes remote assets that are provably mirrored locally.
func (a *PsyncApp) DeleteMirrored(ctx context.Context) (*psync.Report, error) {
	return a.service.DeleteMirrored(ctx)
}

// VerifyLocal rehashes every local record and reports each outcome.
func (a *PsyncApp) VerifyLocal() ([]psync.VerifyResult, error) {
	return a.service.VerifyLocal()
}

// History returns the most recent journal runs.
func (a *PsyncApp) History(limit int) ([]*psync.Run, error) {
	return a.journal.ListRuns(limit)
}

// RunEvents returns the per-asset events of one journal run.
func (a *PsyncApp) RunEvents(runID int64) ([]*psync.Event, error) {
	return a.journal.ListEvents(runID)
}

// Encryptor returns the configured encryptor, or nil when encryption is
// disabled. Used by the CLI for key setup and archive decryption.
func (a *PsyncApp) Encryptor() psync.Encryptor {
	return a.encryptor
}

// ArchiveGet fetches an archived asset by id. The metadata is read first
// to recover the content checksum, then the content is streamed to w.
// When dec is non-nil the content is decrypted on the way out.
func (a *PsyncApp) ArchiveGet(id string, w io.Writer, dec psync.DecryptionContext) error {
	if a.archive == nil {
		return fmt.Errorf("no archive configured")
	}

	metadata, err := a.archive.GetMetadata(id)
	if err != nil {
		return fmt.Errorf("fetching archived metadata: %w", err)
	}
	asset, err := psync.ParseAsset(metadata)
	if err != nil {
		return fmt.Errorf("parsing archived metadata: %w", err)
	}

	if dec == nil {
		if err := a.archive.GetContent(asset.ContentHash, w); err != nil {
			return fmt.Errorf("fetching archived content: %w", err)
		}
		return nil
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(a.archive.GetContent(asset.ContentHash, pw))
	}()
	if err := dec.Decrypt(pr, w); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("decrypting archived content: %w", err)
	}
	return nil
}

// Close closes the journal and the log file.
func (a *PsyncApp) Close() error {
	var firstErr error

	if err := a.journal.Close(); err != nil {
		firstErr = fmt.Errorf("closing journal: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
