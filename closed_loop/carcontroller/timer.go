package carcontroller

import "time"

// DT is the control period. Update is expected to run once per DT.
const DT = 10 * time.Millisecond

// Clock is the shared tick source for all timers of one controller.
// It is advanced exactly once per control cycle by Controller.Update.
//
// Not safe for concurrent use.
type Clock struct {
	frame uint64
}

// Tick advances the clock by one cycle.
func (c *Clock) Tick() {
	c.frame++
}

// Frame returns the number of ticks since construction.
func (c *Clock) Frame() uint64 {
	return c.frame
}

// Interval reports whether the current tick falls on a multiple of n.
// Over any n consecutive ticks it is true exactly once.
func (c *Clock) Interval(n uint64) bool {
	if n <= 1 {
		return true
	}
	return c.frame%n == 0
}

// NewTimer returns a timer of duration d bound to this clock.
// The timer starts expired; its window first opens on Reset.
func (c *Clock) NewTimer(d time.Duration) *Timer {
	n := cycles(d)
	return &Timer{
		clock:    c,
		duration: n,
		start:    c.frame - n,
	}
}

// Timer is a bounded window measured in clock ticks.
type Timer struct {
	clock    *Clock
	duration uint64
	start    uint64
}

// Reset restarts the window at the current tick.
func (t *Timer) Reset() {
	t.start = t.clock.frame
}

// Elapsed returns the ticks since the last reset.
func (t *Timer) Elapsed() uint64 {
	// unsigned subtraction stays correct across wrap
	return t.clock.frame - t.start
}

// Duration returns the window length in ticks.
func (t *Timer) Duration() uint64 {
	return t.duration
}

// Active reports whether the window opened by the last reset is still open.
func (t *Timer) Active() bool {
	return t.Elapsed() < t.duration
}

// cycles converts a wall-clock duration into control cycles, rounding to
// the nearest cycle.
func cycles(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64((d + DT/2) / DT)
}
