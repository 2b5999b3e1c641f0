package psync_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"psync-go/internal/psync"
	"psync-go/internal/testutil"
)

func TestDeletionProver(t *testing.T) {
	ctx := context.Background()

	t.Run("builds a proof from a verified record", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		asset := phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("beach")})
		st := newTestStore(t)
		d := psync.NewDownloader(phone, st, psync.NewNopLogger())
		if _, err := d.Fetch(ctx, asset); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}

		p := psync.NewDeletionProver(phone, st, psync.NewNopLogger())
		proof, err := p.BuildProof("a1")
		if err != nil {
			t.Fatalf("BuildProof() error = %v", err)
		}

		if proof.AssetID != "a1" {
			t.Errorf("proof.AssetID = %q, want %q", proof.AssetID, "a1")
		}
		if proof.ContentHash != asset.ContentHash {
			t.Errorf("proof.ContentHash = %q, want %q", proof.ContentHash, asset.ContentHash)
		}
		if len(proof.Metadata) == 0 {
			t.Error("proof.Metadata is empty, want the stored record")
		}
	})

	t.Run("unmirrored asset is not eligible", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("beach")})
		st := newTestStore(t)

		p := psync.NewDeletionProver(phone, st, psync.NewNopLogger())
		_, err := p.BuildProof("a1")
		if !errors.Is(err, psync.ErrNotEligible) {
			t.Fatalf("BuildProof() error = %v, want ErrNotEligible", err)
		}
	})

	t.Run("corrupted local bytes are not eligible", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		asset := phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("beach")})
		st := newTestStore(t)
		d := psync.NewDownloader(phone, st, psync.NewNopLogger())
		record, err := d.Fetch(ctx, asset)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}

		// Flip the local bytes after publish (same length, different hash).
		if err := os.WriteFile(record.ContentPath, []byte("trash"), 0644); err != nil {
			t.Fatalf("corrupting content: %v", err)
		}

		p := psync.NewDeletionProver(phone, st, psync.NewNopLogger())
		if err := p.Prove(ctx, "a1"); !errors.Is(err, psync.ErrNotEligible) {
			t.Fatalf("Prove() error = %v, want ErrNotEligible", err)
		}
		if !phone.Has("a1") {
			t.Error("asset was deleted from the device despite local corruption")
		}
	})

	t.Run("prove deletes the remote asset", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		asset := phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("beach")})
		st := newTestStore(t)
		d := psync.NewDownloader(phone, st, psync.NewNopLogger())
		if _, err := d.Fetch(ctx, asset); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}

		p := psync.NewDeletionProver(phone, st, psync.NewNopLogger())
		if err := p.Prove(ctx, "a1"); err != nil {
			t.Fatalf("Prove() error = %v", err)
		}
		if phone.Has("a1") {
			t.Error("asset still on the device after Prove()")
		}
	})

	t.Run("device-side mismatch surfaces as integrity error", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		asset := phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("beach")})
		st := newTestStore(t)
		d := psync.NewDownloader(phone, st, psync.NewNopLogger())
		if _, err := d.Fetch(ctx, asset); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}

		// The asset changes on the device after it was mirrored.
		edited, data := testutil.MakeAsset(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("edited")})
		phone.Replace(edited, data)

		p := psync.NewDeletionProver(phone, st, psync.NewNopLogger())
		if err := p.Prove(ctx, "a1"); !errors.Is(err, psync.ErrIntegrity) {
			t.Fatalf("Prove() error = %v, want ErrIntegrity", err)
		}
		if !phone.Has("a1") {
			t.Error("asset was deleted despite the device-side mismatch")
		}
	})
}
