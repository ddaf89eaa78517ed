package playback

import (
	"sync"
	"time"
)

// Clock is the output timeline the scheduler places chunks on.
type Clock interface {
	Now() time.Duration
}

// WallClock measures time since it was created.
type WallClock struct {
	start time.Time
}

// NewWallClock returns a clock starting at zero now.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// Now returns the elapsed time since creation.
func (c *WallClock) Now() time.Duration {
	return time.Since(c.start)
}

// ManualClock is a clock advanced explicitly. Used by tests and offline
// rendering.
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Duration) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
