// Package store implements the local mirror directory: the filesystem
// LocalStore that owns all reads and writes under the mirror root.
package store

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"psync-go/internal/psync"
)

// metadataDirName is the per-bucket subdirectory holding metadata records.
const metadataDirName = "metadata"

// FilesystemStore lays assets out under capture-period buckets:
//
//	<root>/
//	  2021-05/
//	    IMG_0001.JPG
//	    metadata/
//	      IMG_0001.JPG.json    (device metadata record, verbatim)
//
// The metadata file name is the content file name plus ".json", so the
// pairing is invertible without guessing extensions. The metadata file is
// the commit marker: content is renamed into place first, metadata second,
// and a record without its metadata file does not exist as far as
// ListInventory is concerned.
type FilesystemStore struct {
	root   string
	logger psync.Logger

	mu      sync.Mutex
	records map[string]*psync.LocalRecord // id -> record, rebuilt by scans
}

var _ psync.Store = (*FilesystemStore)(nil)

// NewFilesystemStore creates a store rooted at the given directory,
// creating it if necessary.
func NewFilesystemStore(root string, logger psync.Logger) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating mirror root: %w", err)
	}
	return &FilesystemStore{root: root, logger: logger}, nil
}

// Root returns the mirror root directory.
func (s *FilesystemStore) Root() string { return s.root }

// ListInventory scans the mirror tree and returns all complete records.
// Metadata without a matching byte file (or with a size mismatch) is
// reported and excluded, never trusted.
func (s *FilesystemStore) ListInventory() (map[string]psync.InventoryEntry, error) {
	records, err := s.scan()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	inventory := make(map[string]psync.InventoryEntry, len(records))
	for id, rec := range records {
		inventory[id] = psync.InventoryEntry{
			ID:         id,
			Filename:   rec.Filename,
			Size:       rec.Size,
			ModifiedAt: rec.ModifiedAt,
		}
	}
	return inventory, nil
}

// VerifyComplete rehashes the stored bytes and compares against the hash
// declared in the stored metadata. This is the sole authority for
// "complete"; unknown ids are simply not complete.
func (s *FilesystemStore) VerifyComplete(id string) (bool, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	f, err := os.Open(rec.ContentPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("opening content: %w", err)
	}
	defer f.Close()

	hash := md5.New()
	n, err := io.Copy(hash, f)
	if err != nil {
		return false, fmt.Errorf("hashing content: %w", err)
	}
	if n != rec.Size {
		return false, nil
	}
	return hex.EncodeToString(hash.Sum(nil)) == rec.ContentHash, nil
}

// ReadRecord returns the stored record for id, or an error if none exists.
func (s *FilesystemStore) ReadRecord(id string) (*psync.LocalRecord, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no local record for %s", id)
	}
	out := *rec
	return &out, nil
}

// OpenContent opens the stored bytes of a record for reading.
func (s *FilesystemStore) OpenContent(id string) (io.ReadCloser, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no local record for %s", id)
	}
	return os.Open(rec.ContentPath)
}

// Publish commits an asset's bytes and metadata as one logical write.
// The content is streamed to a temp file while its MD5 is computed; on a
// size or hash mismatch the temp file is discarded and the store is
// untouched. Only after both checks pass are the content and then the
// metadata renamed into place.
func (s *FilesystemStore) Publish(asset psync.Asset, content io.Reader) (*psync.LocalRecord, error) {
	bucketDir := filepath.Join(s.root, bucketOf(asset))
	metaDir := filepath.Join(bucketDir, metadataDirName)
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return nil, fmt.Errorf("creating bucket directories: %w", err)
	}

	// Stream content to a temp file in the destination directory so the
	// final rename stays on one filesystem.
	tmpContent, err := os.CreateTemp(bucketDir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp content file: %w", err)
	}
	tmpContentPath := tmpContent.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpContentPath)
		}
	}()

	hash := md5.New()
	written, err := io.Copy(io.MultiWriter(tmpContent, hash), content)
	if closeErr := tmpContent.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("writing content: %w", err)
	}

	if written != asset.Size {
		return nil, fmt.Errorf("%w: wrote %d bytes for %s, device declared %d",
			psync.ErrIntegrity, written, asset.ID, asset.Size)
	}
	if sum := hex.EncodeToString(hash.Sum(nil)); sum != asset.ContentHash {
		return nil, fmt.Errorf("%w: got %s for %s, device declared %s",
			psync.ErrIntegrity, sum, asset.ID, asset.ContentHash)
	}

	tmpMeta, err := os.CreateTemp(metaDir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp metadata file: %w", err)
	}
	tmpMetaPath := tmpMeta.Name()
	defer func() {
		if !committed {
			os.Remove(tmpMetaPath)
		}
	}()

	if _, err := tmpMeta.Write(asset.Raw); err != nil {
		tmpMeta.Close()
		return nil, fmt.Errorf("writing metadata: %w", err)
	}
	if err := tmpMeta.Close(); err != nil {
		return nil, fmt.Errorf("closing metadata: %w", err)
	}

	rec, err := s.commit(asset, bucketDir, tmpContentPath, tmpMetaPath)
	if err != nil {
		return nil, err
	}
	committed = true

	s.logger.Debug("record published", "asset", asset.ID, "path", rec.ContentPath)
	out := *rec
	return &out, nil
}

// commit picks the final file name and renames both temp files into place.
// Name selection and the renames are one critical section: two concurrent
// publishes sharing a filename in a bucket would otherwise pick the same
// path and silently rename over each other's record.
func (s *FilesystemStore) commit(asset psync.Asset, bucketDir, tmpContentPath, tmpMetaPath string) (*psync.LocalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.contentName(bucketDir, asset)
	if err != nil {
		return nil, err
	}
	contentPath := filepath.Join(bucketDir, name)
	metadataPath := filepath.Join(bucketDir, metadataDirName, name+".json")

	// Content first, metadata second. A crash between the two leaves a
	// byte file without metadata, which ListInventory ignores.
	if err := os.Rename(tmpContentPath, contentPath); err != nil {
		return nil, fmt.Errorf("publishing content: %w", err)
	}
	if err := os.Rename(tmpMetaPath, metadataPath); err != nil {
		return nil, fmt.Errorf("publishing metadata: %w", err)
	}

	rec := &psync.LocalRecord{
		ID:           asset.ID,
		Filename:     asset.Filename,
		ContentPath:  contentPath,
		MetadataPath: metadataPath,
		Size:         asset.Size,
		ContentHash:  asset.ContentHash,
		ModifiedAt:   asset.ModifiedAt,
		Raw:          asset.Raw,
	}
	if s.records != nil {
		s.records[asset.ID] = rec
	}
	return rec, nil
}

// contentName picks the on-disk file name for an asset. The original
// filename is used unless a different asset already owns it in the same
// bucket, in which case the name gains an id qualifier. The mapping is
// deterministic: re-publishing the same id always lands on the same path.
// Callers must hold s.mu, since ownership is read from disk.
func (s *FilesystemStore) contentName(bucketDir string, asset psync.Asset) (string, error) {
	owner, err := recordOwner(filepath.Join(bucketDir, metadataDirName, asset.Filename+".json"))
	if err != nil {
		return "", err
	}
	if owner == "" || owner == asset.ID {
		return asset.Filename, nil
	}

	ext := filepath.Ext(asset.Filename)
	stem := strings.TrimSuffix(asset.Filename, ext)
	return stem + "." + sanitizeID(asset.ID) + ext, nil
}

// recordOwner returns the asset id stored in a metadata file, or "" if the
// file does not exist.
func recordOwner(metadataPath string) (string, error) {
	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading metadata: %w", err)
	}
	asset, err := psync.ParseAsset(raw)
	if err != nil {
		// Unparseable metadata never owns a name.
		return "", nil
	}
	return asset.ID, nil
}

// lookup finds a record by id, scanning the tree if no scan has happened yet.
func (s *FilesystemStore) lookup(id string) (*psync.LocalRecord, error) {
	s.mu.Lock()
	records := s.records
	s.mu.Unlock()

	if records == nil {
		var err error
		records, err = s.scan()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.records = records
		s.mu.Unlock()
	}
	return records[id], nil
}

// scan walks every bucket's metadata directory and loads complete records.
func (s *FilesystemStore) scan() (map[string]*psync.LocalRecord, error) {
	records := make(map[string]*psync.LocalRecord)

	metaFiles, err := filepath.Glob(filepath.Join(s.root, "*", metadataDirName, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scanning mirror tree: %w", err)
	}

	for _, metaPath := range metaFiles {
		raw, err := os.ReadFile(metaPath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", metaPath, err)
		}
		asset, err := psync.ParseAsset(raw)
		if err != nil {
			s.logger.Warn("skipping unreadable metadata", "path", metaPath, "error", err)
			continue
		}

		name := strings.TrimSuffix(filepath.Base(metaPath), ".json")
		contentPath := filepath.Join(filepath.Dir(filepath.Dir(metaPath)), name)
		info, err := os.Stat(contentPath)
		if err != nil {
			s.logger.Warn("skipping orphaned metadata", "path", metaPath, "error", err)
			continue
		}
		if info.Size() != asset.Size {
			s.logger.Warn("skipping record with size mismatch",
				"path", contentPath, "size", info.Size(), "declared", asset.Size)
			continue
		}

		records[asset.ID] = &psync.LocalRecord{
			ID:           asset.ID,
			Filename:     asset.Filename,
			ContentPath:  contentPath,
			MetadataPath: metaPath,
			Size:         asset.Size,
			ContentHash:  asset.ContentHash,
			ModifiedAt:   asset.ModifiedAt,
			Raw:          raw,
		}
	}

	return records, nil
}

// bucketOf maps an asset to its capture-period directory.
func bucketOf(asset psync.Asset) string {
	return asset.CapturedAt.UTC().Format("2006-01")
}

// sanitizeID makes an asset id safe to embed in a file name.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, id)
}
