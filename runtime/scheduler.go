package runtime

import "time"

type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The machine uses it for reconnect timers.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// WallClock schedules on real timers.
var WallClock Scheduler = wallClock{}
