// Package archive implements the optional offsite copy of published
// assets: content keyed by checksum, metadata keyed by asset id.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"psync-go/internal/psync"
)

// FilesystemArchive stores the archive in a directory tree:
//
//	<root>/
//	  content/
//	    <checksum>     (asset bytes, possibly encrypted)
//	  metadata/
//	    <id>.json      (verbatim device metadata)
type FilesystemArchive struct {
	root        string
	contentDir  string
	metadataDir string
}

var _ psync.Archive = (*FilesystemArchive)(nil)

// NewFilesystemArchive creates an archive rooted at the given path.
func NewFilesystemArchive(root string) (*FilesystemArchive, error) {
	contentDir := filepath.Join(root, "content")
	metadataDir := filepath.Join(root, "metadata")

	if err := os.MkdirAll(contentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	if err := os.MkdirAll(metadataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	return &FilesystemArchive{
		root:        root,
		contentDir:  contentDir,
		metadataDir: metadataDir,
	}, nil
}

// PutContent stores content under its checksum. Idempotent: an existing
// entry is left untouched and the reader is drained.
func (a *FilesystemArchive) PutContent(checksum string, r io.Reader, size int64) error {
	destPath := filepath.Join(a.contentDir, checksum)

	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if size >= 0 && written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	return a.writeFile(destPath, r, size)
}

// PutMetadata stores an asset's metadata record.
func (a *FilesystemArchive) PutMetadata(id string, metadata []byte) error {
	destPath := filepath.Join(a.metadataDir, id+".json")
	return a.writeFile(destPath, bytes.NewReader(metadata), int64(len(metadata)))
}

// GetContent retrieves content by checksum and writes it to w.
func (a *FilesystemArchive) GetContent(checksum string, w io.Writer) error {
	f, err := os.Open(filepath.Join(a.contentDir, checksum))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("content not found: %s", checksum)
		}
		return fmt.Errorf("failed to open content: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	return nil
}

// GetMetadata retrieves an asset's metadata record.
func (a *FilesystemArchive) GetMetadata(id string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(a.metadataDir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("metadata not found for asset: %s", id)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	return data, nil
}

// ValidateSetup verifies that the archive directories are accessible.
func (a *FilesystemArchive) ValidateSetup() error {
	for _, dir := range []string{a.root, a.contentDir, a.metadataDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("archive directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("archive path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to destPath using atomic write
// (temp file + rename). A negative expectedSize skips length verification.
func (a *FilesystemArchive) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if expectedSize >= 0 && written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
