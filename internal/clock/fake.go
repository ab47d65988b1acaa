package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock starting at initial. Every After call advances
// the clock by the requested duration and fires immediately, so a loop that
// waits on it runs at full speed while still observing consistent time.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic Clock for tests. It is safe for concurrent
// use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waits   []time.Duration

	// OnAfter, when set, is called with the requested duration after the
	// clock has advanced. Tests use it to cancel a loop after N waits.
	OnAfter func(d time.Duration)
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After advances the clock by d and returns a channel that already holds
// the new time.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	if d > 0 {
		c.current = c.current.Add(d)
	}
	c.waits = append(c.waits, d)
	now := c.current
	hook := c.OnAfter
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	if hook != nil {
		hook(d)
	}
	return ch
}

// Advance moves the clock forward without registering a wait.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Waits returns every duration passed to After, in call order.
func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}
