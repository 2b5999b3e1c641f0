package testutil

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"psync-go/internal/psync"
)

// FakePhone is an in-memory stand-in for the device. It implements
// psync.Device directly for core tests and exposes an http.Handler with
// the same semantics for transport tests.
//
// Deletion follows the device's rule: it recomputes the content hash and
// requires the submitted metadata to equal the asset's current metadata
// field for field.
type FakePhone struct {
	mu     sync.Mutex
	order  []string
	metas  map[string]json.RawMessage
	datas  map[string][]byte
	gone   []string

	CatalogErr  error
	MetadataErr map[string]error
	ContentErr  map[string]error
	DeleteErr   map[string]error
}

var _ psync.Device = (*FakePhone)(nil)

// NewFakePhone creates an empty FakePhone.
func NewFakePhone() *FakePhone {
	return &FakePhone{
		metas:       make(map[string]json.RawMessage),
		datas:       make(map[string][]byte),
		MetadataErr: make(map[string]error),
		ContentErr:  make(map[string]error),
		DeleteErr:   make(map[string]error),
	}
}

// Add registers an asset built by MakeAsset.
func (p *FakePhone) Add(asset psync.Asset, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.metas[asset.ID]; !ok {
		p.order = append(p.order, asset.ID)
	}
	p.metas[asset.ID] = asset.Raw
	p.datas[asset.ID] = data
}

// AddSpec builds and registers an asset in one call, returning it.
func (p *FakePhone) AddSpec(spec AssetSpec) psync.Asset {
	asset, data := MakeAsset(spec)
	p.Add(asset, data)
	return asset
}

// Replace swaps an asset's metadata and content in place, keeping its
// catalog position. Used to simulate on-device edits between runs.
func (p *FakePhone) Replace(asset psync.Asset, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metas[asset.ID] = asset.Raw
	p.datas[asset.ID] = data
}

// Deleted returns the ids deleted so far, in deletion order.
func (p *FakePhone) Deleted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.gone...)
}

// Has reports whether the asset is still on the device.
func (p *FakePhone) Has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.metas[id]
	return ok
}

func (p *FakePhone) Remote() string { return "fake-phone" }

func (p *FakePhone) Catalog(ctx context.Context) ([]psync.Asset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CatalogErr != nil {
		return nil, p.CatalogErr
	}

	assets := make([]psync.Asset, 0, len(p.order))
	for _, id := range p.order {
		raw, ok := p.metas[id]
		if !ok {
			continue
		}
		asset, err := psync.ParseAsset(raw)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func (p *FakePhone) AssetMetadata(ctx context.Context, id string) (psync.Asset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.MetadataErr[id]; err != nil {
		return psync.Asset{}, err
	}
	raw, ok := p.metas[id]
	if !ok {
		return psync.Asset{}, fmt.Errorf("%w: unknown asset %s", psync.ErrProtocol, id)
	}
	return psync.ParseAsset(raw)
}

func (p *FakePhone) OpenContent(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ContentErr[id]; err != nil {
		return nil, 0, err
	}
	data, ok := p.datas[id]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown asset %s", psync.ErrProtocol, id)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (p *FakePhone) Delete(ctx context.Context, proof psync.DeletionProof) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.DeleteErr[proof.AssetID]; err != nil {
		return err
	}

	raw, ok := p.metas[proof.AssetID]
	if !ok {
		return fmt.Errorf("%w: unknown asset %s", psync.ErrProtocol, proof.AssetID)
	}
	if len(proof.Metadata) == 0 {
		return fmt.Errorf("%w: deletion proof has no metadata", psync.ErrProtocol)
	}

	sum := md5.Sum(p.datas[proof.AssetID])
	if hex.EncodeToString(sum[:]) != proof.ContentHash {
		return fmt.Errorf("%w: content hash mismatch for %s", psync.ErrIntegrity, proof.AssetID)
	}
	if !jsonEqual(raw, proof.Metadata) {
		return fmt.Errorf("%w: metadata mismatch for %s", psync.ErrIntegrity, proof.AssetID)
	}

	delete(p.metas, proof.AssetID)
	delete(p.datas, proof.AssetID)
	p.gone = append(p.gone, proof.AssetID)
	return nil
}

// Handler serves the device's HTTP surface over the same asset set.
func (p *FakePhone) Handler() http.Handler {
	return http.HandlerFunc(p.serveHTTP)
}

func (p *FakePhone) serveHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/assets")

	switch {
	case path == "" || path == "/":
		p.serveCatalog(w, r)
	case strings.HasSuffix(path, "/content"):
		p.serveContent(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/content"))
	case strings.HasSuffix(path, "/delete"):
		p.serveDelete(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/delete"))
	default:
		p.serveMetadata(w, r, strings.TrimPrefix(path, "/"))
	}
}

func (p *FakePhone) serveCatalog(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	raws := make([]json.RawMessage, 0, len(p.order))
	for _, id := range p.order {
		if raw, ok := p.metas[id]; ok {
			raws = append(raws, raw)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(raws)
}

func (p *FakePhone) serveMetadata(w http.ResponseWriter, r *http.Request, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw, ok := p.metas[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func (p *FakePhone) serveContent(w http.ResponseWriter, r *http.Request, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, ok := p.datas[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (p *FakePhone) serveDelete(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Metadata    json.RawMessage `json:"metadata"`
		ContentHash string          `json:"content_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Metadata) == 0 {
		http.Error(w, "missing metadata", http.StatusBadRequest)
		return
	}

	err := p.Delete(r.Context(), psync.DeletionProof{
		AssetID:     id,
		Metadata:    body.Metadata,
		ContentHash: body.ContentHash,
	})
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"deleted": true}`)
	case strings.Contains(err.Error(), "unknown asset"):
		http.NotFound(w, r)
	default:
		http.Error(w, err.Error(), http.StatusConflict)
	}
}

// jsonEqual compares two JSON documents structurally.
func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
