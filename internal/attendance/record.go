package attendance

import "strings"

// Status is the attendance mark of one student in one session.
type Status string

const (
	Unmarked Status = "Unmarked"
	Present  Status = "Present"
	Absent   Status = "Absent"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	return s == Unmarked || s == Present || s == Absent
}

// Markable reports whether s can be the target of a user action.
func (s Status) Markable() bool {
	return s == Present || s == Absent
}

// ParseStatus accepts a status in any letter case.
func ParseStatus(raw string) (Status, error) {
	for _, s := range []Status{Present, Absent, Unmarked} {
		if strings.EqualFold(raw, string(s)) {
			return s, nil
		}
	}
	return "", ErrInvalidStatus
}

// Student is one roster entry.
type Student struct {
	UID          string `json:"uid"`
	Name         string `json:"name"`
	EnrollmentNo string `json:"enrollmentNo"`
}

// Record pairs a roster uid with its status.
type Record struct {
	UID    string `json:"uid"`
	Status Status `json:"status"`
}

// Tally counts records per status.
type Tally struct {
	Present  int `json:"present"`
	Absent   int `json:"absent"`
	Unmarked int `json:"unmarked"`
	Total    int `json:"total"`
}

// Count builds a Tally over records.
func Count(records []Record) Tally {
	var t Tally
	for _, r := range records {
		switch r.Status {
		case Present:
			t.Present++
		case Absent:
			t.Absent++
		default:
			t.Unmarked++
		}
	}
	t.Total = len(records)
	return t
}

// FilterRoster returns the students whose name or enrollment number contains
// query, ignoring case. An empty query returns the roster unchanged.
func FilterRoster(roster []Student, query string) []Student {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return roster
	}
	out := make([]Student, 0, len(roster))
	for _, s := range roster {
		if strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(strings.ToLower(s.EnrollmentNo), q) {
			out = append(out, s)
		}
	}
	return out
}

func uids(roster []Student) []string {
	out := make([]string, len(roster))
	for i, s := range roster {
		out[i] = s.UID
	}
	return out
}
