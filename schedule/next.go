package schedule

import "time"

// Next returns the first instant strictly after now at which the wall clock in now's
// location reads c. It is never more than one calendar day away.
func Next(c ClockTime, now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, c.Hour, c.Minute, 0, 0, now.Location())
	}

	return next
}

// NextIn is Next evaluated in loc. A nil loc means now's own location.
func NextIn(c ClockTime, now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}

	return Next(c, now)
}

// Sequence lazily yields the daily fire instants of one clock time.
// The zero value is not usable; use NewSequence.
type Sequence struct {
	at   ClockTime
	loc  *time.Location
	last time.Time
}

// NewSequence for the clock time, evaluated in loc (nil for the location of each "now")
func NewSequence(at ClockTime, loc *time.Location) *Sequence {
	return &Sequence{at: at, loc: loc}
}

// Next fire instant. Consecutive calls advance from the previous instant, so an on-time or
// early caller moves exactly one day forward, while a caller that is late by more than a day
// skips to the first occurrence after now instead of replaying missed days.
func (s *Sequence) Next(now time.Time) time.Time {
	from := now
	if s.last.After(from) {
		from = s.last
	}

	s.last = NextIn(s.at, from, s.loc)

	return s.last
}

// Last instant returned by Next, zero before the first call or after Restart
func (s *Sequence) Last() time.Time {
	return s.last
}

// Restart forgets the previous instant
func (s *Sequence) Restart() {
	s.last = time.Time{}
}

// At is the clock time the sequence fires at
func (s *Sequence) At() ClockTime {
	return s.at
}
