package psync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Progress is reported once per planned item. Index follows remote
// catalog order and is assigned before any fetch starts, so a run's
// progress lines are stable regardless of completion order.
type Progress struct {
	Index int
	Total int
	Asset Asset
	Err   error
}

// ProgressFunc receives per-item progress during a run.
type ProgressFunc func(Progress)

// Failure is one per-asset error, itemized in the final report.
type Failure struct {
	AssetID  string
	Filename string
	Err      error
}

// Report summarizes a sync or deletion run.
type Report struct {
	Planned   int
	Published int
	Deleted   int
	Skipped   int
	Failures  []Failure
}

// SyncService drives the end-to-end flows: catalog → diff → download,
// or catalog → diff → prove → delete. Per-asset errors are collected and
// never abort the batch; catalog-level errors are fatal.
type SyncService struct {
	device      Device
	store       Store
	journal     Journal
	logger      Logger
	clock       Clock
	concurrency int

	archive  Archive        // optional offsite copy
	filter   *CatalogFilter // optional catalog excludes
	progress ProgressFunc   // optional per-item reporting
}

// NewSyncService creates a SyncService. concurrency bounds the number of
// parallel fetches; values below 1 are treated as 1 so a misconfigured
// limit can never hammer the device's single-threaded listener.
func NewSyncService(device Device, store Store, journal Journal, logger Logger, clock Clock, concurrency int) *SyncService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SyncService{
		device:      device,
		store:       store,
		journal:     journal,
		logger:      logger,
		clock:       clock,
		concurrency: concurrency,
	}
}

// SetArchive enables the offsite archive copy after each publish.
func (s *SyncService) SetArchive(a Archive) { s.archive = a }

// SetFilter applies catalog excludes before diffing.
func (s *SyncService) SetFilter(f *CatalogFilter) { s.filter = f }

// SetProgress registers the per-item progress callback.
func (s *SyncService) SetProgress(fn ProgressFunc) { s.progress = fn }

// snapshot fetches the remote catalog and the local inventory. A catalog
// failure is fatal to the run and wraps ErrCatalog.
func (s *SyncService) snapshot(ctx context.Context) ([]Asset, map[string]InventoryEntry, error) {
	catalog, err := s.device.Catalog(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCatalog, err)
	}
	if s.filter != nil {
		catalog = s.filter.Apply(catalog)
	}

	inventory, err := s.store.ListInventory()
	if err != nil {
		return nil, nil, fmt.Errorf("listing local inventory: %w", err)
	}
	return catalog, inventory, nil
}

// Plan computes the sync plan without fetching anything.
func (s *SyncService) Plan(ctx context.Context) (Plan, error) {
	catalog, inventory, err := s.snapshot(ctx)
	if err != nil {
		return Plan{}, err
	}
	return s.reconcile(ComputePlan(catalog, inventory))
}

// reconcile rehashes every record the diff considers present and moves
// corrupted ones back into the fetch list. A matching modification
// timestamp is not proof the stored bytes are still good; the hash is,
// and a record that fails it must be replaced, not reported forever.
func (s *SyncService) reconcile(plan Plan) (Plan, error) {
	out := Plan{ToFetch: plan.ToFetch}
	for _, asset := range plan.Present {
		ok, err := s.store.VerifyComplete(asset.ID)
		if err != nil {
			return Plan{}, fmt.Errorf("verifying %s: %w", asset.ID, err)
		}
		if !ok {
			s.logger.Warn("local record corrupt, scheduling refetch",
				"asset", asset.ID, "filename", asset.Filename)
			out.ToFetch = append(out.ToFetch, asset)
			continue
		}
		out.Present = append(out.Present, asset)
	}
	return out, nil
}

// Sync mirrors every missing asset locally. Individual transient or
// integrity failures are recorded and skipped; the run only fails outright
// on a catalog error or cancellation.
func (s *SyncService) Sync(ctx context.Context) (*Report, error) {
	runID := s.beginRun("sync")

	catalog, inventory, err := s.snapshot(ctx)
	if err != nil {
		s.finishRun(runID, "error", 0, 0, 0)
		return nil, err
	}

	plan, err := s.reconcile(ComputePlan(catalog, inventory))
	if err != nil {
		s.finishRun(runID, "error", 0, 0, 0)
		return nil, err
	}
	s.logger.Info("sync plan computed",
		"on_device", len(catalog), "to_fetch", len(plan.ToFetch), "present", len(plan.Present))

	report := &Report{Planned: len(plan.ToFetch), Skipped: len(plan.Present)}
	downloader := NewDownloader(s.device, s.store, s.logger)

	total := len(plan.ToFetch)

	// Completion order is unordered under concurrent fetch, but progress
	// must be reported strictly in catalog order. Finished items park in
	// done until every lower index has been emitted.
	var mu sync.Mutex
	done := make([]*Progress, total)
	next := 0
	emit := func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		done[p.Index-1] = &p
		for next < total && done[next] != nil {
			s.report(*done[next])
			next++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, asset := range plan.ToFetch {
		g.Go(func() error {
			record, err := downloader.Fetch(gctx, asset)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err // abort the pool, nothing half-written is visible
				}
				mu.Lock()
				report.Failures = append(report.Failures, Failure{AssetID: asset.ID, Filename: asset.Filename, Err: err})
				mu.Unlock()
				s.recordEvent(runID, asset.ID, asset.Filename, "failed", Kind(err)+": "+err.Error())
				emit(Progress{Index: i + 1, Total: total, Asset: asset, Err: err})
				return nil
			}

			mu.Lock()
			report.Published++
			mu.Unlock()
			s.recordEvent(runID, asset.ID, asset.Filename, "published", "")
			emit(Progress{Index: i + 1, Total: total, Asset: asset})

			if s.archive != nil {
				s.archiveRecord(runID, record)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.finishRun(runID, "error", report.Published, 0, len(report.Failures))
		return report, err
	}

	status := "success"
	if len(report.Failures) > 0 {
		status = "error"
	}
	s.finishRun(runID, status, report.Published, 0, len(report.Failures))
	return report, nil
}

// DeleteMirrored deletes remote assets that are provably mirrored locally.
// Deletions are sequential, one in flight at a time: each is a
// side-effecting operation on the device and must not race another.
func (s *SyncService) DeleteMirrored(ctx context.Context) (*Report, error) {
	runID := s.beginRun("delete")

	catalog, inventory, err := s.snapshot(ctx)
	if err != nil {
		s.finishRun(runID, "error", 0, 0, 0)
		return nil, err
	}

	plan, err := s.reconcile(ComputePlan(catalog, inventory))
	if err != nil {
		s.finishRun(runID, "error", 0, 0, 0)
		return nil, err
	}
	report := &Report{Planned: len(plan.Present), Skipped: len(plan.ToFetch)}
	prover := NewDeletionProver(s.device, s.store, s.logger)

	total := len(plan.Present)
	for i, asset := range plan.Present {
		if ctx.Err() != nil {
			s.finishRun(runID, "error", 0, report.Deleted, len(report.Failures))
			return report, ctx.Err()
		}

		if err := prover.Prove(ctx, asset.ID); err != nil {
			report.Failures = append(report.Failures, Failure{AssetID: asset.ID, Filename: asset.Filename, Err: err})
			s.recordEvent(runID, asset.ID, asset.Filename, "failed", Kind(err)+": "+err.Error())
			s.report(Progress{Index: i + 1, Total: total, Asset: asset, Err: err})
			continue
		}

		report.Deleted++
		s.recordEvent(runID, asset.ID, asset.Filename, "deleted", "")
		s.report(Progress{Index: i + 1, Total: total, Asset: asset})
	}

	status := "success"
	if len(report.Failures) > 0 {
		status = "error"
	}
	s.finishRun(runID, status, 0, report.Deleted, len(report.Failures))
	return report, nil
}

// VerifyResult is one local record's verification outcome.
type VerifyResult struct {
	Entry InventoryEntry
	OK    bool
}

// VerifyLocal rehashes every complete record and reports each outcome.
func (s *SyncService) VerifyLocal() ([]VerifyResult, error) {
	inventory, err := s.store.ListInventory()
	if err != nil {
		return nil, fmt.Errorf("listing local inventory: %w", err)
	}

	results := make([]VerifyResult, 0, len(inventory))
	for id, entry := range inventory {
		ok, err := s.store.VerifyComplete(id)
		if err != nil {
			return nil, fmt.Errorf("verifying %s: %w", id, err)
		}
		if !ok {
			s.logger.Warn("local record corrupt", "asset", id, "filename", entry.Filename)
		}
		results = append(results, VerifyResult{Entry: entry, OK: ok})
	}
	return results, nil
}

// archiveRecord copies a freshly published record to the offsite archive.
// The local mirror is the source of truth: archive failures are logged and
// evented but never fail the publish.
func (s *SyncService) archiveRecord(runID int64, record *LocalRecord) {
	content, err := s.store.OpenContent(record.ID)
	if err != nil {
		s.logger.Warn("archive copy skipped", "asset", record.ID, "error", err)
		s.recordEvent(runID, record.ID, record.Filename, "archive-failed", err.Error())
		return
	}
	defer content.Close()

	if err := s.archive.PutContent(record.ContentHash, content, record.Size); err != nil {
		s.logger.Warn("archiving content failed", "asset", record.ID, "error", err)
		s.recordEvent(runID, record.ID, record.Filename, "archive-failed", err.Error())
		return
	}
	if err := s.archive.PutMetadata(record.ID, record.Raw); err != nil {
		s.logger.Warn("archiving metadata failed", "asset", record.ID, "error", err)
		s.recordEvent(runID, record.ID, record.Filename, "archive-failed", err.Error())
		return
	}
	s.logger.Debug("asset archived", "asset", record.ID)
}

// beginRun opens a journal run record. The journal is best-effort: on
// failure the run proceeds unrecorded (runID 0).
func (s *SyncService) beginRun(mode string) int64 {
	if s.journal == nil {
		return 0
	}
	runID, err := s.journal.BeginRun(mode, s.device.Remote())
	if err != nil {
		s.logger.Warn("journal unavailable", "error", err)
		return 0
	}
	return runID
}

func (s *SyncService) recordEvent(runID int64, assetID, filename, action, detail string) {
	if s.journal == nil || runID == 0 {
		return
	}
	if err := s.journal.RecordEvent(runID, assetID, filename, action, detail); err != nil {
		s.logger.Warn("recording journal event failed", "asset", assetID, "error", err)
	}
}

func (s *SyncService) finishRun(runID int64, status string, published, deleted, failed int) {
	if s.journal == nil || runID == 0 {
		return
	}
	if err := s.journal.FinishRun(runID, status, published, deleted, failed); err != nil {
		s.logger.Warn("finishing journal run failed", "error", err)
	}
}

func (s *SyncService) report(p Progress) {
	if s.progress != nil {
		s.progress(p)
	}
}
