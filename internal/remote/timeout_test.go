package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"psync-go/internal/psync"
)

func TestNewClient_TransportTimeouts(t *testing.T) {
	c, err := NewClient("phone:1338")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	tr, ok := c.http.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T, want *http.Transport", c.http.Transport)
	}
	if tr.ResponseHeaderTimeout != headerTimeout {
		t.Errorf("ResponseHeaderTimeout = %v, want %v", tr.ResponseHeaderTimeout, headerTimeout)
	}
	if tr.DialContext == nil {
		t.Error("DialContext has no bounded dialer")
	}
}

func TestClient_StalledResponseIsTransient(t *testing.T) {
	// The handler accepts the connection but never sends headers, the way
	// a wedged device does.
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	c := &Client{
		base: srv.URL,
		http: &http.Client{Transport: newTransport(50 * time.Millisecond)},
	}

	_, err := c.Catalog(context.Background())
	if !errors.Is(err, psync.ErrTransient) {
		t.Fatalf("Catalog() error = %v, want ErrTransient", err)
	}
}
