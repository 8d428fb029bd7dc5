package lease

import (
	"sync"
	"time"
)

// Clock provides the current time for expiry decisions
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock (including the monotonic reading)
type SystemClock struct{}

// Now implements Clock
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a Clock that only moves when told to. It is meant
// for tests
type ManualClock struct {
	l   sync.Mutex
	now time.Time
}

// NewManualClock returns a clock frozen at t
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now implements Clock
func (c *ManualClock) Now() time.Time {
	c.l.Lock()
	defer c.l.Unlock()

	return c.now
}

// Set moves the clock to t
func (c *ManualClock) Set(t time.Time) {
	c.l.Lock()
	defer c.l.Unlock()

	c.now = t
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.l.Lock()
	defer c.l.Unlock()

	c.now = c.now.Add(d)
}
