package remote_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"psync-go/internal/psync"
	"psync-go/internal/remote"
	"psync-go/internal/testutil"
)

func newTestClient(t *testing.T, phone *testutil.FakePhone) *remote.Client {
	t.Helper()
	srv := httptest.NewServer(phone.Handler())
	t.Cleanup(srv.Close)

	c, err := remote.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	t.Run("assumes http for bare addresses", func(t *testing.T) {
		c, err := remote.NewClient("phone.local:1338")
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		if got := c.Remote(); got != "http://phone.local:1338" {
			t.Errorf("Remote() = %q, want %q", got, "http://phone.local:1338")
		}
	})

	t.Run("rejects an empty address", func(t *testing.T) {
		if _, err := remote.NewClient(""); err == nil {
			t.Error("NewClient(\"\") error = nil, want error")
		}
	})
}

func TestClient_Catalog(t *testing.T) {
	phone := testutil.NewFakePhone()
	phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("one")})
	phone.AddSpec(testutil.AssetSpec{ID: "a2", Filename: "IMG_0002.JPG", Data: []byte("two")})

	c := newTestClient(t, phone)
	assets, err := c.Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}

	if len(assets) != 2 {
		t.Fatalf("Catalog() = %d assets, want 2", len(assets))
	}
	if assets[0].ID != "a1" || assets[1].ID != "a2" {
		t.Errorf("catalog order = [%s %s], want [a1 a2]", assets[0].ID, assets[1].ID)
	}
}

func TestClient_AssetMetadata(t *testing.T) {
	phone := testutil.NewFakePhone()
	want := phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("bytes")})
	c := newTestClient(t, phone)

	t.Run("fetches a single record", func(t *testing.T) {
		asset, err := c.AssetMetadata(context.Background(), "a1")
		if err != nil {
			t.Fatalf("AssetMetadata() error = %v", err)
		}
		if asset.ID != want.ID || asset.ContentHash != want.ContentHash {
			t.Errorf("asset = %+v, want id and hash of %s", asset, want.ID)
		}
	})

	t.Run("unknown id is a protocol error", func(t *testing.T) {
		_, err := c.AssetMetadata(context.Background(), "missing")
		if !errors.Is(err, psync.ErrProtocol) {
			t.Fatalf("AssetMetadata() error = %v, want ErrProtocol", err)
		}
	})
}

func TestClient_OpenContent(t *testing.T) {
	phone := testutil.NewFakePhone()
	phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("raw image bytes")})
	c := newTestClient(t, phone)

	body, size, err := c.OpenContent(context.Background(), "a1")
	if err != nil {
		t.Fatalf("OpenContent() error = %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("reading content: %v", err)
	}
	if string(data) != "raw image bytes" {
		t.Errorf("content = %q, want %q", data, "raw image bytes")
	}
	if size != int64(len(data)) {
		t.Errorf("declared size = %d, want %d", size, len(data))
	}
}

func TestClient_Delete(t *testing.T) {
	proofFor := func(asset psync.Asset) psync.DeletionProof {
		return psync.DeletionProof{AssetID: asset.ID, Metadata: asset.Raw, ContentHash: asset.ContentHash}
	}

	t.Run("acknowledged deletion succeeds", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		asset := phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("gone soon")})
		c := newTestClient(t, phone)

		if err := c.Delete(context.Background(), proofFor(asset)); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if phone.Has("a1") {
			t.Error("asset still present after acknowledged deletion")
		}
	})

	t.Run("hash mismatch maps to integrity", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		asset := phone.AddSpec(testutil.AssetSpec{ID: "a1", Filename: "IMG_0001.JPG", Data: []byte("current")})
		c := newTestClient(t, phone)

		proof := proofFor(asset)
		proof.ContentHash = "0123456789abcdef0123456789abcdef"

		if err := c.Delete(context.Background(), proof); !errors.Is(err, psync.ErrIntegrity) {
			t.Fatalf("Delete() error = %v, want ErrIntegrity", err)
		}
		if !phone.Has("a1") {
			t.Error("asset deleted despite hash mismatch")
		}
	})

	t.Run("unknown asset is a protocol error", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		asset, _ := testutil.MakeAsset(testutil.AssetSpec{ID: "ghost", Filename: "IMG_0000.JPG", Data: []byte("x")})
		c := newTestClient(t, phone)

		if err := c.Delete(context.Background(), proofFor(asset)); !errors.Is(err, psync.ErrProtocol) {
			t.Fatalf("Delete() error = %v, want ErrProtocol", err)
		}
	})
}

func TestClient_Transport(t *testing.T) {
	t.Run("unreachable device is transient", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		srv := httptest.NewServer(phone.Handler())
		c, err := remote.NewClient(srv.URL)
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		srv.Close()

		if _, err := c.Catalog(context.Background()); !errors.Is(err, psync.ErrTransient) {
			t.Fatalf("Catalog() error = %v, want ErrTransient", err)
		}
	})

	t.Run("cancellation passes through unwrapped", func(t *testing.T) {
		phone := testutil.NewFakePhone()
		c := newTestClient(t, phone)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.Catalog(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Catalog() error = %v, want context.Canceled", err)
		}
		if errors.Is(err, psync.ErrTransient) {
			t.Error("cancellation was wrapped as a transient failure")
		}
	})
}
