package psync

import "io"

// Store is the local mirror directory. It is the sole authority for what
// counts as a complete record, and the only component that writes under
// the mirror root. The core never deletes local data.
type Store interface {
	// ListInventory enumerates assets with a complete record on disk
	// (metadata file plus byte file), keyed by asset id. Orphaned byte
	// files and dangling metadata are excluded.
	ListInventory() (map[string]InventoryEntry, error)

	// VerifyComplete recomputes the stored content's hash and compares it
	// to the hash declared in the stored metadata. False for unknown ids.
	VerifyComplete(id string) (bool, error)

	// ReadRecord loads the stored record for an id, including the
	// verbatim metadata. It does not verify the content hash.
	ReadRecord(id string) (*LocalRecord, error)

	// OpenContent opens the stored bytes of a record for reading.
	OpenContent(id string) (io.ReadCloser, error)

	// Publish atomically commits an asset's bytes and metadata. The
	// content is hashed while it is written; a mismatch with the declared
	// hash fails with ErrIntegrity and leaves no visible record.
	Publish(asset Asset, content io.Reader) (*LocalRecord, error)
}
