// Package scheduletest provides a manually driven schedule.Clock for tests.
package scheduletest

import (
	"sort"
	"sync"
	"time"

	"git.0xdad.com/tblyler/medibot/schedule"
)

// Clock only moves when told to
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*timer
}

type timer struct {
	clock   *Clock
	at      time.Time
	f       func()
	stopped bool
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped {
		return false
	}

	t.stopped = true

	return true
}

// New clock reading now
func New(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now reading
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// AfterFunc registers f to run once the clock has been advanced past d
func (c *Clock) AfterFunc(d time.Duration, f func()) schedule.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &timer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)

	return t
}

// Advance moves the clock forward, running every due callback in deadline order
func (c *Clock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set jumps the clock, running every due callback in deadline order. Callbacks run on the
// calling goroutine without the clock lock held.
func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now

	var due []*timer
	pending := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.at.After(now):
			t.stopped = true
			due = append(due, t)
		default:
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// Pending counts armed, unstopped timers
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}

	return n
}

// NextDeadline of the earliest armed timer, zero when none
func (c *Clock) NextDeadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	var next time.Time
	for _, t := range c.timers {
		if t.stopped {
			continue
		}

		if next.IsZero() || t.at.Before(next) {
			next = t.at
		}
	}

	return next
}

var _ schedule.Clock = (*Clock)(nil)
