// Package testutil provides shared test doubles.
package testutil

import (
	"sync"
	"time"

	"psync-go/internal/psync"
)

// StubClock is a Clock that returns a fixed time, advanceable by tests.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ psync.Clock = (*StubClock)(nil)

// NewStubClock creates a StubClock pinned to t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
