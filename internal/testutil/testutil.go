package testutil

import (
	"sync"
	"time"
)

// Clock is a manually advanced clock, so time based behavior can be tested
// without sleeping
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{current: start}
}

// Now is meant to be passed where a `func() time.Time` is expected
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}
