package psync

import (
	"encoding/json"
	"fmt"
	"time"
)

// Asset is one photo or video on the remote device. The typed fields are
// the small subset the sync logic inspects; Raw preserves the device's
// full metadata record verbatim so it can be stored and later embedded in
// deletion proofs without schema knowledge.
type Asset struct {
	ID          string
	Filename    string
	CapturedAt  time.Time
	ModifiedAt  time.Time
	Size        int64
	ContentHash string
	Raw         json.RawMessage
}

// assetFields is the decode target for the fields psync needs. Timestamps
// are unix seconds as sent by the device.
type assetFields struct {
	LocalID          string  `json:"local_id"`
	Filename         string  `json:"filename"`
	CreationDate     float64 `json:"creation_date"`
	ModificationDate float64 `json:"modification_date"`
	SizeBytes        int64   `json:"size_bytes"`
	ContentHash      string  `json:"content_hash"`
}

// ParseAsset decodes a raw metadata record into an Asset.
// The record must carry local_id, filename, size_bytes and content_hash;
// anything missing is a protocol violation from the device.
func ParseAsset(raw json.RawMessage) (Asset, error) {
	var f assetFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return Asset{}, fmt.Errorf("%w: decoding metadata record: %v", ErrProtocol, err)
	}
	if f.LocalID == "" {
		return Asset{}, fmt.Errorf("%w: metadata record has no local_id", ErrProtocol)
	}
	if f.Filename == "" {
		return Asset{}, fmt.Errorf("%w: metadata record for %s has no filename", ErrProtocol, f.LocalID)
	}
	if f.ContentHash == "" {
		return Asset{}, fmt.Errorf("%w: metadata record for %s has no content_hash", ErrProtocol, f.LocalID)
	}
	if f.SizeBytes < 0 {
		return Asset{}, fmt.Errorf("%w: metadata record for %s has negative size", ErrProtocol, f.LocalID)
	}

	return Asset{
		ID:          f.LocalID,
		Filename:    f.Filename,
		CapturedAt:  unixTime(f.CreationDate),
		ModifiedAt:  unixTime(f.ModificationDate),
		Size:        f.SizeBytes,
		ContentHash: f.ContentHash,
		Raw:         raw,
	}, nil
}

// unixTime converts device unix seconds (possibly fractional) to time.Time.
func unixTime(sec float64) time.Time {
	s := int64(sec)
	ns := int64((sec - float64(s)) * float64(time.Second))
	return time.Unix(s, ns).UTC()
}

// LocalRecord is the local mirror of an Asset: its bytes on disk plus the
// verbatim metadata record. A record is complete only when both files exist
// and the recomputed content hash matches the declared one; Store is the
// sole authority for that check.
type LocalRecord struct {
	ID           string
	Filename     string
	ContentPath  string
	MetadataPath string
	Size         int64
	ContentHash  string
	ModifiedAt   time.Time
	Raw          json.RawMessage
}

// InventoryEntry is the ListInventory view of a record: just enough to
// diff against the remote catalog.
type InventoryEntry struct {
	ID         string
	Filename   string
	Size       int64
	ModifiedAt time.Time
}

// DeletionProof is submitted to the device to justify deleting a remote
// asset. It is built strictly from a verified complete LocalRecord.
type DeletionProof struct {
	AssetID     string          `json:"asset_id"`
	Metadata    json.RawMessage `json:"metadata"`
	ContentHash string          `json:"content_hash"`
}
