package psync_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"psync-go/internal/index"
	"psync-go/internal/psync"
	"psync-go/internal/store"
	"psync-go/internal/testutil"
)

func newTestService(t *testing.T, phone *testutil.FakePhone, concurrency int) (*psync.SyncService, *store.FilesystemStore, psync.Journal) {
	t.Helper()
	st := newTestStore(t)
	clock := testutil.NewStubClock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	journal := index.NewMemoryJournal(clock)
	svc := psync.NewSyncService(phone, st, journal, psync.NewNopLogger(), clock, concurrency)
	return svc, st, journal
}

func TestSyncService_Sync(t *testing.T) {
	ctx := context.Background()

	t.Run("mirrors everything and is idempotent", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		for i := 1; i <= 5; i++ {
			phone.AddSpec(testutil.AssetSpec{
				ID:       fmt.Sprintf("a%d", i),
				Filename: fmt.Sprintf("IMG_%04d.JPG", i),
				Data:     []byte(fmt.Sprintf("photo number %d", i)),
			})
		}
		svc, st, _ := newTestService(t, phone, 3)

		report, err := svc.Sync(ctx)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if report.Published != 5 || len(report.Failures) != 0 {
			t.Fatalf("Published = %d, Failures = %d, want 5, 0", report.Published, len(report.Failures))
		}

		inventory, err := st.ListInventory()
		if err != nil {
			t.Fatalf("ListInventory() error = %v", err)
		}
		if len(inventory) != 5 {
			t.Fatalf("inventory = %d records, want 5", len(inventory))
		}

		// A second run finds nothing to do.
		report, err = svc.Sync(ctx)
		if err != nil {
			t.Fatalf("second Sync() error = %v", err)
		}
		if report.Published != 0 || report.Skipped != 5 {
			t.Errorf("second run Published = %d, Skipped = %d, want 0, 5", report.Published, report.Skipped)
		}
	})

	t.Run("per-asset failures do not abort the run", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("one")})
		phone.AddSpec(testutil.AssetSpec{ID: "a2", Filename: "IMG_0002.JPG", Data: []byte("two")})
		phone.AddSpec(testutil.AssetSpec{ID: "a3", Filename: "IMG_0003.JPG", Data: []byte("three")})
		phone.ContentErr["a2"] = fmt.Errorf("%w: timeout", psync.ErrTransient)

		svc, _, _ := newTestService(t, phone, 1)
		report, err := svc.Sync(ctx)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}

		if report.Published != 2 {
			t.Errorf("Published = %d, want 2", report.Published)
		}
		if len(report.Failures) != 1 || report.Failures[0].AssetID != "a2" {
			t.Fatalf("Failures = %v, want one failure for a2", report.Failures)
		}
		if got := psync.Kind(report.Failures[0].Err); got != "transient" {
			t.Errorf("failure kind = %q, want %q", got, "transient")
		}
	})

	t.Run("progress follows catalog order under concurrency", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		total := 8
		for i := 1; i <= total; i++ {
			phone.AddSpec(testutil.AssetSpec{
				ID:       fmt.Sprintf("a%d", i),
				Filename: fmt.Sprintf("IMG_%04d.JPG", i),
				Data:     []byte(fmt.Sprintf("data %d", i)),
			})
		}

		svc, _, _ := newTestService(t, phone, 4)
		var seen []int
		svc.SetProgress(func(p psync.Progress) {
			seen = append(seen, p.Index)
			if p.Total != total {
				t.Errorf("Total = %d, want %d", p.Total, total)
			}
		})

		if _, err := svc.Sync(ctx); err != nil {
			t.Fatalf("Sync() error = %v", err)
		}

		if len(seen) != total {
			t.Fatalf("progress reported %d times, want %d", len(seen), total)
		}
		for i, idx := range seen {
			if idx != i+1 {
				t.Fatalf("progress order = %v, want strictly increasing indices", seen)
			}
		}
	})

	t.Run("catalog failure is fatal", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		phone.CatalogErr = fmt.Errorf("%w: device unreachable", psync.ErrTransient)

		svc, _, _ := newTestService(t, phone, 1)
		_, err := svc.Sync(ctx)
		if !errors.Is(err, psync.ErrCatalog) {
			t.Fatalf("Sync() error = %v, want ErrCatalog", err)
		}
	})

	t.Run("edited asset is refetched", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		captured := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
		phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", CapturedAt: captured, Data: []byte("v1")})

		svc, st, _ := newTestService(t, phone, 1)
		if _, err := svc.Sync(ctx); err != nil {
			t.Fatalf("first Sync() error = %v", err)
		}

		edited, data := testutil.MakeAsset(testutil.AssetSpec{
			ID: "a1", Filename: "IMG_0001.JPG", CapturedAt: captured,
			ModifiedAt: captured.Add(time.Hour), Data: []byte("v2"),
		})
		phone.Replace(edited, data)

		report, err := svc.Sync(ctx)
		if err != nil {
			t.Fatalf("second Sync() error = %v", err)
		}
		if report.Published != 1 {
			t.Fatalf("Published = %d, want 1: edited asset must be refetched", report.Published)
		}

		record, err := st.ReadRecord("a1")
		if err != nil {
			t.Fatalf("ReadRecord() error = %v", err)
		}
		if !record.ModifiedAt.Equal(edited.ModifiedAt) {
			t.Errorf("stored ModifiedAt = %v, want %v", record.ModifiedAt, edited.ModifiedAt)
		}
	})

	t.Run("corrupted record is refetched", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("pristine bytes")})

		svc, st, _ := newTestService(t, phone, 1)
		if _, err := svc.Sync(ctx); err != nil {
			t.Fatalf("first Sync() error = %v", err)
		}

		// Same length, same modification date, different bytes: presence
		// and timestamp cannot catch this, only the hash can.
		record, err := st.ReadRecord("a1")
		if err != nil {
			t.Fatalf("ReadRecord() error = %v", err)
		}
		if err := os.WriteFile(record.ContentPath, []byte("corrupted byte"), 0644); err != nil {
			t.Fatalf("corrupting content: %v", err)
		}

		plan, err := svc.Plan(ctx)
		if err != nil {
			t.Fatalf("Plan() error = %v", err)
		}
		if len(plan.ToFetch) != 1 || len(plan.Present) != 0 {
			t.Fatalf("ToFetch = %d, Present = %d, want 1, 0", len(plan.ToFetch), len(plan.Present))
		}

		report, err := svc.Sync(ctx)
		if err != nil {
			t.Fatalf("second Sync() error = %v", err)
		}
		if report.Published != 1 {
			t.Fatalf("Published = %d, want 1: corrupted record must be refetched", report.Published)
		}

		ok, err := st.VerifyComplete("a1")
		if err != nil {
			t.Fatalf("VerifyComplete() error = %v", err)
		}
		if !ok {
			t.Error("record still corrupt after refetch")
		}
	})

	t.Run("excluded assets are never fetched", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("keep")})
		phone.AddSpec(testutil.AssetSpec{ID: "s1", Filename: "Screenshot_01.PNG", Data: []byte("skip")})

		svc, st, _ := newTestService(t, phone, 1)
		svc.SetFilter(psync.NewCatalogFilter([]string{"Screenshot_*"}, nil))

		report, err := svc.Sync(ctx)
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if report.Published != 1 {
			t.Errorf("Published = %d, want 1", report.Published)
		}

		inventory, _ := st.ListInventory()
		if _, ok := inventory["s1"]; ok {
			t.Error("excluded asset was mirrored")
		}
	})

	t.Run("records the run in the journal", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("one")})

		svc, _, journal := newTestService(t, phone, 1)
		if _, err := svc.Sync(ctx); err != nil {
			t.Fatalf("Sync() error = %v", err)
		}

		runs, err := journal.ListRuns(10)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("runs = %d, want 1", len(runs))
		}
		if runs[0].Mode != "sync" || runs[0].Status != "success" || runs[0].Published != 1 {
			t.Errorf("run = %+v, want sync/success with 1 published", runs[0])
		}

		events, err := journal.ListEvents(runs[0].ID)
		if err != nil {
			t.Fatalf("ListEvents() error = %v", err)
		}
		if len(events) != 1 || events[0].Action != "published" {
			t.Errorf("events = %v, want one published event", events)
		}
	})
}

func TestSyncService_DeleteMirrored(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes only verified mirrored assets", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("one")})
		phone.AddSpec(testutil.AssetSpec{ID: "a2", Filename: "IMG_0002.JPG", Data: []byte("two")})

		svc, _, _ := newTestService(t, phone, 1)
		if _, err := svc.Sync(ctx); err != nil {
			t.Fatalf("Sync() error = %v", err)
		}

		// a3 appears after the sync, so it is not mirrored yet.
		phone.AddSpec(testutil.AssetSpec{ID: "a3", Filename: "IMG_0003.JPG", Data: []byte("three")})

		report, err := svc.DeleteMirrored(ctx)
		if err != nil {
			t.Fatalf("DeleteMirrored() error = %v", err)
		}
		if report.Deleted != 2 || report.Skipped != 1 {
			t.Errorf("Deleted = %d, Skipped = %d, want 2, 1", report.Deleted, report.Skipped)
		}
		if phone.Has("a1") || phone.Has("a2") {
			t.Error("mirrored assets still on the device")
		}
		if !phone.Has("a3") {
			t.Error("unmirrored asset was deleted")
		}
	})

	t.Run("device mismatch keeps the asset", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("hello")})

		svc, _, _ := newTestService(t, phone, 1)
		if _, err := svc.Sync(ctx); err != nil {
			t.Fatalf("Sync() error = %v", err)
		}

		// Same bytes length, same modification date, different content: the
		// plan still treats it as present, but the device's recomputed hash
		// will not match the proof.
		edited, data := testutil.MakeAsset(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("jello")})
		phone.Replace(edited, data)

		report, err := svc.DeleteMirrored(ctx)
		if err != nil {
			t.Fatalf("DeleteMirrored() error = %v", err)
		}
		if report.Deleted != 0 || len(report.Failures) != 1 {
			t.Fatalf("Deleted = %d, Failures = %d, want 0, 1", report.Deleted, len(report.Failures))
		}
		if got := psync.Kind(report.Failures[0].Err); got != "integrity" {
			t.Errorf("failure kind = %q, want %q", got, "integrity")
		}
		if !phone.Has("a1") {
			t.Error("asset deleted despite hash mismatch")
		}
	})

	t.Run("records deletions in the journal", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("one")})

		svc, _, journal := newTestService(t, phone, 1)
		if _, err := svc.Sync(ctx); err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if _, err := svc.DeleteMirrored(ctx); err != nil {
			t.Fatalf("DeleteMirrored() error = %v", err)
		}

		runs, err := journal.ListRuns(10)
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("runs = %d, want 2", len(runs))
		}
		// Newest first.
		if runs[0].Mode != "delete" || runs[0].Deleted != 1 {
			t.Errorf("latest run = %+v, want delete with 1 deleted", runs[0])
		}
	})
}

func TestSyncService_VerifyLocal(t *testing.T) {
	ctx := context.Background()

	phone := testutil.NewFakePhone()
	phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("one")})
	phone.AddSpec(testutil.AssetSpec{ID: "a2", Filename: "IMG_0002.JPG", Data: []byte("two")})

	svc, st, _ := newTestService(t, phone, 1)
	if _, err := svc.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	// Corrupt one record on disk.
	record, err := st.ReadRecord("a2")
	if err != nil {
		t.Fatalf("ReadRecord() error = %v", err)
	}
	if err := os.WriteFile(record.ContentPath, []byte("twa"), 0644); err != nil {
		t.Fatalf("corrupting content: %v", err)
	}

	results, err := svc.VerifyLocal()
	if err != nil {
		t.Fatalf("VerifyLocal() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	outcomes := make(map[string]bool, len(results))
	for _, r := range results {
		outcomes[r.Entry.ID] = r.OK
	}
	if !outcomes["a1"] {
		t.Error("intact record reported corrupt")
	}
	if outcomes["a2"] {
		t.Error("corrupted record reported intact")
	}
}
