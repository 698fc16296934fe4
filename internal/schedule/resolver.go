package schedule

import (
	"sort"
	"strings"
	"time"
)

// TodaysSlots returns the timetable rows that fall on the weekday of ref,
// ordered by period and then subject code. The timetable is not modified.
func TodaysSlots(timetable []Slot, ref time.Time) []Slot {
	day := ref.Weekday().String()
	out := make([]Slot, 0, len(timetable))
	for _, s := range timetable {
		if strings.EqualFold(strings.TrimSpace(s.Day), day) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].SubjectCode < out[j].SubjectCode
	})
	return out
}

// Summary holds the dashboard figures derived from a timetable.
type Summary struct {
	ClassesToday     int `json:"classesToday"`
	DistinctSubjects int `json:"distinctSubjects"`
	WeeklyPeriods    int `json:"weeklyPeriods"`
}

// Summarize counts today's classes, distinct subject codes and the number of
// periods taught per week.
func Summarize(timetable []Slot, ref time.Time) Summary {
	subjects := make(map[string]struct{})
	for _, s := range timetable {
		if code := strings.ToUpper(strings.TrimSpace(s.SubjectCode)); code != "" {
			subjects[code] = struct{}{}
		}
	}
	return Summary{
		ClassesToday:     len(TodaysSlots(timetable, ref)),
		DistinctSubjects: len(subjects),
		WeeklyPeriods:    len(timetable),
	}
}

// Greeting returns the salutation for the hour of t.
func Greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "Good Morning"
	case h < 18:
		return "Good Afternoon"
	default:
		return "Good Evening"
	}
}
