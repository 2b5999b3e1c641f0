package testutil

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"psync-go/internal/psync"
)

// AssetSpec describes a fake device asset for tests. Zero values get
// sensible defaults so most tests only set ID, Filename and Data.
type AssetSpec struct {
	ID         string
	Filename   string
	MediaType  string
	CapturedAt time.Time
	ModifiedAt time.Time
	Data       []byte
}

// MakeAsset builds a metadata record the way the device emits one and
// returns the parsed Asset alongside the content bytes.
func MakeAsset(spec AssetSpec) (psync.Asset, []byte) {
	if spec.MediaType == "" {
		spec.MediaType = "photo"
	}
	if spec.CapturedAt.IsZero() {
		spec.CapturedAt = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	if spec.ModifiedAt.IsZero() {
		spec.ModifiedAt = spec.CapturedAt
	}

	sum := md5.Sum(spec.Data)
	raw, err := json.Marshal(map[string]any{
		"local_id":          spec.ID,
		"filename":          spec.Filename,
		"media_type":        spec.MediaType,
		"creation_date":     float64(spec.CapturedAt.Unix()),
		"modification_date": float64(spec.ModifiedAt.Unix()),
		"size_bytes":        len(spec.Data),
		"content_hash":      hex.EncodeToString(sum[:]),
	})
	if err != nil {
		panic(fmt.Sprintf("marshaling test metadata: %v", err))
	}

	asset, err := psync.ParseAsset(raw)
	if err != nil {
		panic(fmt.Sprintf("parsing test metadata: %v", err))
	}
	return asset, spec.Data
}
