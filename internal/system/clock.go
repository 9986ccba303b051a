package system

import (
	"sync/atomic"
	"time"
)

// Clock is a logical monotonic millisecond clock: each call advances an
// internal tick counter by one and returns it as a Duration. It is
// deliberately not wall-clock time — quarantine expiry and handshake
// deadlines are derived from this counter so tests can reproduce timing
// exactly without sleeping.
type Clock struct {
	ticks atomic.Uint64
}

// Now advances the clock by one tick and returns it as a Duration of
// milliseconds.
func (c *Clock) Now() time.Duration {
	t := c.ticks.Add(1)
	return time.Duration(t) * time.Millisecond
}

// Peek returns the current tick without advancing it.
func (c *Clock) Peek() time.Duration {
	return time.Duration(c.ticks.Load()) * time.Millisecond
}
