// Package schedule holds the single recurrence rule shared by the local timers and the
// server-side backup schedule: a wall-clock HH:MM fires once a day, at the first matching
// instant after "now".
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrInvalidClockTime is returned for anything that is not a 24-hour HH:MM value
var ErrInvalidClockTime = errors.New("invalid clock time")

var clockTimePattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// ClockTime is a local wall-clock time of day without a timezone
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "H:MM" or "HH:MM"
func ParseClockTime(s string) (ClockTime, error) {
	m := clockTimePattern.FindStringSubmatch(s)
	if m == nil {
		return ClockTime{}, fmt.Errorf("%q: %w", s, ErrInvalidClockTime)
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])

	return ClockTime{Hour: hour, Minute: minute}, nil
}

// ValidClockTimes filters the parsable values, keeping their order and dropping duplicates
func ValidClockTimes(values []string) []ClockTime {
	seen := make(map[ClockTime]struct{}, len(values))
	valid := make([]ClockTime, 0, len(values))

	for _, v := range values {
		ct, err := ParseClockTime(v)
		if err != nil {
			continue
		}

		if _, ok := seen[ct]; ok {
			continue
		}

		seen[ct] = struct{}{}
		valid = append(valid, ct)
	}

	return valid
}

// String in HH:MM form
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Compact form without the colon, used in record identifiers
func (c ClockTime) Compact() string {
	return fmt.Sprintf("%02d%02d", c.Hour, c.Minute)
}
