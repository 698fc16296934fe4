package schedule

import (
	"errors"
	"strings"
	"time"
)

var errBadRange = errors.New("schedule: unparsable time range")

var clockLayouts = []string{"03:04 PM", "3:04 PM", "03:04PM", "3:04PM", "15:04"}

// TimeRange is a display range such as "09:00 AM - 10:00 AM", expressed as
// offsets from midnight.
type TimeRange struct {
	Start time.Duration
	End   time.Duration
}

// Contains reports whether the wall-clock time of t falls in [Start, End).
func (r TimeRange) Contains(t time.Time) bool {
	sinceMidnight := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
	return sinceMidnight >= r.Start && sinceMidnight < r.End
}

// ParseTimeRange parses "HH:MM AM - HH:MM PM" (24h clocks are accepted too).
func ParseTimeRange(s string) (TimeRange, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return TimeRange{}, errBadRange
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return TimeRange{}, err
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return TimeRange{}, err
	}
	if end <= start {
		return TimeRange{}, errBadRange
	}
	return TimeRange{Start: start, End: end}, nil
}

func parseClock(s string) (time.Duration, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
		}
	}
	return 0, errBadRange
}

// Ongoing returns the index of the first slot whose time range contains now,
// or -1. Slots with unparsable ranges never match.
func Ongoing(slots []Slot, now time.Time) int {
	for i, s := range slots {
		r, err := ParseTimeRange(s.Time)
		if err != nil {
			continue
		}
		if r.Contains(now) {
			return i
		}
	}
	return -1
}
