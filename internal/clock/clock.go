package clock

import (
	"sync"
	"time"
)

// Clock supplies the current instant. Components never call time.Now
// directly; tests substitute a TestClock to pin "now".
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// New returns the real wall clock (UTC instants).
func New() Clock {
	return wallClock{}
}

// TestClock is a settable clock for tests.
type TestClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewTestClock returns a clock frozen at the given instant.
func NewTestClock(now time.Time) *TestClock {
	return &TestClock{now: now.UTC()}
}

func (c *TestClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// SetNow moves the clock to the given instant.
func (c *TestClock) SetNow(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now.UTC()
}

// Advance moves the clock forward by d.
func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
