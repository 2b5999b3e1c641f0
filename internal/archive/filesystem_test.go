package archive_test

import (
	"bytes"
	"strings"
	"testing"

	"psync-go/internal/archive"
)

func TestFilesystemArchive(t *testing.T) {
	newArchive := func(t *testing.T) *archive.FilesystemArchive {
		t.Helper()
		a, err := archive.NewFilesystemArchive(t.TempDir())
		if err != nil {
			t.Fatalf("NewFilesystemArchive() error = %v", err)
		}
		return a
	}

	t.Run("content round trip", func(t *testing.T) {
		a := newArchive(t)
		data := "the original bytes"

		if err := a.PutContent("abc123", strings.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("PutContent() error = %v", err)
		}

		var out bytes.Buffer
		if err := a.GetContent("abc123", &out); err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if out.String() != data {
			t.Errorf("GetContent() = %q, want %q", out.String(), data)
		}
	})

	t.Run("put is idempotent per checksum", func(t *testing.T) {
		a := newArchive(t)
		if err := a.PutContent("dead", strings.NewReader("first"), 5); err != nil {
			t.Fatalf("first PutContent() error = %v", err)
		}
		// Same checksum again: the existing object wins.
		if err := a.PutContent("dead", strings.NewReader("other"), 5); err != nil {
			t.Fatalf("second PutContent() error = %v", err)
		}

		var out bytes.Buffer
		if err := a.GetContent("dead", &out); err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if out.String() != "first" {
			t.Errorf("GetContent() = %q, want the first write", out.String())
		}
	})

	t.Run("size mismatch is rejected", func(t *testing.T) {
		a := newArchive(t)
		if err := a.PutContent("beef", strings.NewReader("short"), 100); err == nil {
			t.Error("PutContent() error = nil, want size mismatch error")
		}
	})

	t.Run("negative size skips the check", func(t *testing.T) {
		a := newArchive(t)
		if err := a.PutContent("cafe", strings.NewReader("whatever length"), -1); err != nil {
			t.Errorf("PutContent() error = %v, want nil with unknown size", err)
		}
	})

	t.Run("metadata round trip", func(t *testing.T) {
		a := newArchive(t)
		record := []byte(`{"local_id": "a1", "filename": "IMG_0001.JPG"}`)

		if err := a.PutMetadata("a1", record); err != nil {
			t.Fatalf("PutMetadata() error = %v", err)
		}
		got, err := a.GetMetadata("a1")
		if err != nil {
			t.Fatalf("GetMetadata() error = %v", err)
		}
		if string(got) != string(record) {
			t.Errorf("GetMetadata() = %q, want %q", got, record)
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		a := newArchive(t)
		if err := a.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}
