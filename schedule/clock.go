package schedule

import "time"

// Timer is a cancellable pending callback
type Timer interface {
	Stop() bool
}

// Clock is the source of time and delayed callbacks
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock uses the time package
type SystemClock struct{}

// Now from time.Now
func (SystemClock) Now() time.Time {
	return time.Now()
}

// AfterFunc from time.AfterFunc
func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
