// Package remote implements the Device interface over the phone's
// unauthenticated HTTP listener. The listener is single-threaded and
// possibly slow or unreachable; every request carries the caller's
// context and transport failures map to the transient error class.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"psync-go/internal/psync"
)

// Transport guards. The header timeout stays generous because the device's
// listener is single-threaded: a response can legitimately sit behind
// another transfer. There is deliberately no whole-request timeout, since
// large videos take as long as they take; aborts come from the caller's
// context.
const (
	dialTimeout   = 10 * time.Second
	headerTimeout = 2 * time.Minute
)

func newTransport(responseHeaderTimeout time.Duration) *http.Transport {
	return &http.Transport{
		DialContext:           (&net.Dialer{Timeout: dialTimeout}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: responseHeaderTimeout,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Client talks to one device. It is safe for concurrent use.
type Client struct {
	base string
	http *http.Client
}

var _ psync.Device = (*Client)(nil)

// NewClient creates a client for the device at the given address.
// A bare host[:port] is assumed to speak plain http.
func NewClient(remote string) (*Client, error) {
	if remote == "" {
		return nil, fmt.Errorf("remote address is empty")
	}
	if !strings.Contains(remote, "://") {
		remote = "http://" + remote
	}
	u, err := url.Parse(remote)
	if err != nil {
		return nil, fmt.Errorf("parsing remote address: %w", err)
	}

	return &Client{
		base: strings.TrimRight(u.String(), "/"),
		http: &http.Client{Transport: newTransport(headerTimeout)},
	}, nil
}

// Remote returns the device address.
func (c *Client) Remote() string { return c.base }

// Catalog fetches the full asset listing in device order.
func (c *Client) Catalog(ctx context.Context) ([]psync.Asset, error) {
	body, err := c.get(ctx, c.base+"/v1/assets")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var raws []json.RawMessage
	if err := json.NewDecoder(body).Decode(&raws); err != nil {
		return nil, fmt.Errorf("%w: decoding catalog: %v", psync.ErrProtocol, err)
	}

	assets := make([]psync.Asset, 0, len(raws))
	for _, raw := range raws {
		asset, err := psync.ParseAsset(raw)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// AssetMetadata fetches a fresh metadata record for one asset.
func (c *Client) AssetMetadata(ctx context.Context, id string) (psync.Asset, error) {
	body, err := c.get(ctx, c.assetURL(id))
	if err != nil {
		return psync.Asset{}, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return psync.Asset{}, c.classify(ctx, err)
	}
	return psync.ParseAsset(raw)
}

// OpenContent streams the asset's bytes. The returned size is the
// response's declared content length (-1 when unknown).
func (c *Client) OpenContent(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.assetURL(id)+"/content", nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, c.classify(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: device returned %s for content of %s", psync.ErrProtocol, resp.Status, id)
	}
	return resp.Body, resp.ContentLength, nil
}

// Delete submits a deletion proof. Only an explicit {"deleted": true}
// acknowledgment counts as success; everything else means the deletion
// was not performed.
func (c *Client) Delete(ctx context.Context, proof psync.DeletionProof) error {
	payload, err := json.Marshal(struct {
		Metadata    json.RawMessage `json:"metadata"`
		ContentHash string          `json:"content_hash"`
	}{Metadata: proof.Metadata, ContentHash: proof.ContentHash})
	if err != nil {
		return fmt.Errorf("encoding deletion proof: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.assetURL(proof.AssetID)+"/delete", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.classify(ctx, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to the body check
	case http.StatusConflict:
		return fmt.Errorf("%w: device recomputed a different hash for %s", psync.ErrIntegrity, proof.AssetID)
	default:
		return fmt.Errorf("%w: device returned %s for deletion of %s", psync.ErrProtocol, resp.Status, proof.AssetID)
	}

	var ack struct {
		Deleted bool `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return fmt.Errorf("%w: decoding deletion acknowledgment: %v", psync.ErrProtocol, err)
	}
	if !ack.Deleted {
		return fmt.Errorf("%w: device did not acknowledge deletion of %s", psync.ErrProtocol, proof.AssetID)
	}
	return nil
}

// get performs a GET expecting 200 and returns the body.
func (c *Client) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: device returned %s for %s", psync.ErrProtocol, resp.Status, url)
	}
	return resp.Body, nil
}

// classify maps transport errors to the taxonomy. Cancellation of the
// caller's context passes through untouched so the orchestrator can tell
// an aborted run from a flaky network.
func (c *Client) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", psync.ErrTransient, err)
}

func (c *Client) assetURL(id string) string {
	return c.base + "/v1/assets/" + url.PathEscape(id)
}
