package schedule

import (
	"strconv"
	"strings"
)

// ClassType distinguishes lectures from lab sessions.
type ClassType string

const (
	Lecture ClassType = "lecture"
	Lab     ClassType = "lab"
)

// Slot is one scheduled teaching occurrence in a weekly timetable.
type Slot struct {
	Day         string    `json:"day" validate:"required"`
	Period      int       `json:"period" validate:"required,min=1"`
	SubjectCode string    `json:"subjectCode" validate:"required"`
	SubjectName string    `json:"subjectName"`
	Room        string    `json:"room"`
	Branch      string    `json:"branch" validate:"required"`
	Section     string    `json:"section" validate:"required"`
	Semester    int       `json:"semester" validate:"required,min=1"`
	Type        ClassType `json:"type"`
	GroupNumber *int      `json:"groupNumber,omitempty"`
	Time        string    `json:"time"`
}

// IsLab reports whether the slot is a lab row. A slot with a group number is
// treated as a lab even when the type was left blank upstream.
func (s Slot) IsLab() bool {
	return strings.EqualFold(string(s.Type), string(Lab)) || s.GroupNumber != nil
}

// Group returns the lab group number, or 0 for lectures.
func (s Slot) Group() int {
	if s.GroupNumber == nil || !s.IsLab() {
		return 0
	}
	return *s.GroupNumber
}

// Key identifies a slot within a timetable: (day, period, branch, section)
// plus the group number for labs.
func (s Slot) Key() string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(s.Day)),
		strconv.Itoa(s.Period),
		strings.ToUpper(strings.TrimSpace(s.Branch)),
		strings.ToUpper(strings.TrimSpace(s.Section)),
	}
	if s.IsLab() {
		parts = append(parts, "g"+strconv.Itoa(s.Group()))
	}
	return strings.Join(parts, "|")
}
