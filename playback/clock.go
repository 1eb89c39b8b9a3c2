package playback

import (
	"time"

	"go-chorale/debug"
)

// DefaultTicksPerQuarter is the resolution used when none is configured.
const DefaultTicksPerQuarter = 480

// defaultSecondsPerQuarter corresponds to 120 BPM.
const defaultSecondsPerQuarter = 0.5

// Clock converts tick positions into real-time offsets from a playback
// epoch. It is a pure value: no state beyond the two tempo parameters.
type Clock struct {
	ticksPerQuarter   int
	secondsPerQuarter float64
}

// NewClock builds a clock from a tick resolution and a quarter-note
// duration in seconds. Non-positive parameters are configuration
// errors: they are corrected to safe values and logged, so scheduling
// can never divide by zero or stall.
func NewClock(ticksPerQuarter int, secondsPerQuarter float64) Clock {
	if ticksPerQuarter <= 0 {
		debug.Log("clock", "invalid ticksPerQuarter %d, using 1", ticksPerQuarter)
		ticksPerQuarter = 1
	}
	if secondsPerQuarter <= 0 {
		debug.Log("clock", "invalid secondsPerQuarter %f, using %f", secondsPerQuarter, defaultSecondsPerQuarter)
		secondsPerQuarter = defaultSecondsPerQuarter
	}
	return Clock{ticksPerQuarter: ticksPerQuarter, secondsPerQuarter: secondsPerQuarter}
}

// ClockForTempo builds a clock from a tick resolution and a tempo in
// beats per minute.
func ClockForTempo(ticksPerQuarter int, bpm float64) Clock {
	if bpm <= 0 {
		debug.Log("clock", "invalid bpm %f, using 120", bpm)
		bpm = 120
	}
	return NewClock(ticksPerQuarter, 60.0/bpm)
}

// TicksPerQuarter returns the (corrected) tick resolution.
func (c Clock) TicksPerQuarter() int {
	return c.ticksPerQuarter
}

// SecondsFromTicks converts a tick count to seconds.
func (c Clock) SecondsFromTicks(t Tick) float64 {
	return c.secondsPerQuarter * float64(t) / float64(c.ticksPerQuarter)
}

// DurationFromTicks converts a tick count to a time.Duration.
func (c Clock) DurationFromTicks(t Tick) time.Duration {
	return time.Duration(c.SecondsFromTicks(t) * float64(time.Second))
}

// TimeFromTicks converts an absolute tick position to a wall-clock
// instant relative to the given epoch.
func (c Clock) TimeFromTicks(epoch time.Time, t Tick) time.Time {
	return epoch.Add(c.DurationFromTicks(t))
}
