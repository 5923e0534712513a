package domain

import "github.com/jonboulle/clockwork"

// processClock is the process-wide time source. Run-date partitioning,
// historical window math and retry sleeps all go through it so tests can
// freeze time via SetClock.
var processClock clockwork.Clock = clockwork.NewRealClock()

// Clock returns the current time source.
func Clock() clockwork.Clock {
	return processClock
}

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		processClock = clockwork.NewRealClock()
		return
	}
	processClock = c
}
