package psync

import (
	"context"
	"errors"
	"fmt"
)

// Downloader fetches one missing asset at a time: fresh metadata first,
// then bytes, committed through the store's atomic publish. Integrity and
// size checks happen before anything becomes visible to ListInventory.
type Downloader struct {
	device Device
	store  Store
	logger Logger
}

// NewDownloader creates a Downloader over the given device and store.
func NewDownloader(device Device, store Store, logger Logger) *Downloader {
	return &Downloader{device: device, store: store, logger: logger}
}

// Fetch mirrors a single asset locally. The catalog entry's id selects the
// asset; the metadata actually stored is re-fetched from the device so the
// record on disk matches the bytes even if the catalog snapshot is stale.
//
// Failures wrap a taxonomy sentinel: ErrTransient for network errors,
// ErrIntegrity for hash or size mismatches, ErrProtocol for malformed
// responses. On any failure no complete record is created.
func (d *Downloader) Fetch(ctx context.Context, catalogEntry Asset) (*LocalRecord, error) {
	asset, err := d.device.AssetMetadata(ctx, catalogEntry.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", catalogEntry.ID, err)
	}

	content, declaredSize, err := d.device.OpenContent(ctx, asset.ID)
	if err != nil {
		return nil, fmt.Errorf("opening content for %s: %w", asset.ID, err)
	}
	defer content.Close()

	if declaredSize >= 0 && declaredSize != asset.Size {
		return nil, fmt.Errorf("%w: content length %d does not match declared size %d for %s",
			ErrIntegrity, declaredSize, asset.Size, asset.ID)
	}

	record, err := d.store.Publish(asset, content)
	if err != nil {
		if errors.Is(err, ErrIntegrity) {
			d.logger.Warn("integrity check failed", "asset", asset.ID, "filename", asset.Filename)
			return nil, err
		}
		return nil, fmt.Errorf("publishing %s: %w", asset.ID, err)
	}

	d.logger.Debug("asset published", "asset", asset.ID, "filename", asset.Filename, "size", record.Size)
	return record, nil
}
