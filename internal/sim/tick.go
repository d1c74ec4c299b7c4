package sim

// Tick is one discrete step of the fixed-rate simulation clock. Ticks are
// strictly increasing and never reused; the server never skips one, a client
// may only appear to jump across a hard resync.
type Tick uint64

// DefaultTickRate is the reference simulation rate in steps per second.
const DefaultTickRate = 20

// Clock produces the monotonically increasing tick counter that drives the
// simulation. Wall-clock time decides when Advance is called, never what a
// tick computes.
type Clock struct {
	tick Tick
}

// NewClock constructs a clock positioned at the provided tick. Passing zero
// starts a fresh timeline.
func NewClock(start Tick) *Clock {
	return &Clock{tick: start}
}

// Current reports the most recently advanced tick without moving the clock.
func (c *Clock) Current() Tick {
	if c == nil {
		return 0
	}
	return c.tick
}

// Advance moves the clock forward by exactly one tick and returns it.
func (c *Clock) Advance() Tick {
	c.tick++
	return c.tick
}
