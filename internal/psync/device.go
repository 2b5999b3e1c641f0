package psync

import (
	"context"
	"io"
)

// Device is the remote catalog client: the tool's only view of the phone.
// Implementations must treat the device as an untrusted, possibly slow or
// unreachable peer with a single-threaded listener.
type Device interface {
	// Remote identifies the device (address) for logs and run records.
	Remote() string

	// Catalog fetches the full asset listing in device order.
	Catalog(ctx context.Context) ([]Asset, error)

	// AssetMetadata fetches a fresh metadata record for one asset.
	AssetMetadata(ctx context.Context, id string) (Asset, error)

	// OpenContent streams the asset's bytes. The returned size is the
	// declared content length. The caller must close the reader.
	OpenContent(ctx context.Context, id string) (io.ReadCloser, int64, error)

	// Delete submits a deletion proof. It returns nil only on an explicit
	// positive acknowledgment from the device; any other response means
	// the deletion was not performed.
	Delete(ctx context.Context, proof DeletionProof) error
}
