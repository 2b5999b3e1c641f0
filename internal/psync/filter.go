package psync

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// CatalogFilter excludes catalog entries before diffing. Exclude patterns
// match the asset filename (filepath.Match syntax); MediaTypes, when
// non-empty, whitelists the device's media_type field.
type CatalogFilter struct {
	patterns   []string
	mediaTypes map[string]bool
}

// NewCatalogFilter creates a filter from raw exclude patterns and an
// optional media type whitelist. Blank patterns and lines starting with
// '#' are skipped.
func NewCatalogFilter(excludes []string, mediaTypes []string) *CatalogFilter {
	f := &CatalogFilter{}
	for _, raw := range excludes {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		f.patterns = append(f.patterns, raw)
	}
	if len(mediaTypes) > 0 {
		f.mediaTypes = make(map[string]bool, len(mediaTypes))
		for _, mt := range mediaTypes {
			f.mediaTypes[mt] = true
		}
	}
	return f
}

// Apply returns the catalog entries that pass the filter, preserving order.
func (f *CatalogFilter) Apply(catalog []Asset) []Asset {
	if len(f.patterns) == 0 && f.mediaTypes == nil {
		return catalog
	}
	kept := make([]Asset, 0, len(catalog))
	for _, asset := range catalog {
		if f.excluded(asset) {
			continue
		}
		kept = append(kept, asset)
	}
	return kept
}

func (f *CatalogFilter) excluded(asset Asset) bool {
	for _, p := range f.patterns {
		matched, err := filepath.Match(p, asset.Filename)
		if err != nil {
			// Bad pattern — skip rather than crash.
			continue
		}
		if matched {
			return true
		}
	}
	if f.mediaTypes != nil {
		var mt struct {
			MediaType string `json:"media_type"`
		}
		if err := json.Unmarshal(asset.Raw, &mt); err != nil || !f.mediaTypes[mt.MediaType] {
			return true
		}
	}
	return false
}
