package testutil

import (
	"sync"
	"time"
)

// FixedClock is a manually advanced clock for tests.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock that reports now until advanced.
func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

// Now returns the current time. Its signature matches time.Now so it can
// be passed wherever a func() time.Time is expected.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FixedIDs returns the same identifier on every call.
//
// The same scenario run with FixedIDs produces byte-identical run stores.
type FixedIDs struct {
	id string
}

// NewFixedIDs creates a generator for id. An empty id yields
// "test-run-default".
func NewFixedIDs(id string) *FixedIDs {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedIDs{id: id}
}

// Generate returns the fixed identifier.
func (g *FixedIDs) Generate() string {
	return g.id
}
