package realtime

import "time"

type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The hub uses it for reconnect timers so tests
// can drive retries without waiting on the wall clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
