package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"facultyportal/internal/schedule"
)

var errBoom = errors.New("boom")

type memDrafts struct {
	mu      sync.Mutex
	data    map[string][]Record
	saves   int
	failing bool
	loadErr error
}

func newMemDrafts() *memDrafts {
	return &memDrafts{data: make(map[string][]Record)}
}

func (m *memDrafts) Load(_ context.Context, id string) ([]Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, false, m.loadErr
	}
	r, ok := m.data[id]
	if !ok {
		return nil, false, nil
	}
	return append([]Record(nil), r...), true, nil
}

func (m *memDrafts) Save(_ context.Context, id string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errBoom
	}
	m.saves++
	m.data[id] = append([]Record(nil), records...)
	return nil
}

func (m *memDrafts) get(id string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.data[id]...)
}

type fakeBackend struct {
	mu         sync.Mutex
	sessionID  string
	roster     []Student
	openErr    error
	finalErr   error
	finalized  map[string][]Record
	finalCalls int
}

func newFakeBackend(roster ...Student) *fakeBackend {
	return &fakeBackend{sessionID: "sess-1", roster: roster, finalized: make(map[string][]Record)}
}

func (f *fakeBackend) OpenSession(_ context.Context, _ string, _ schedule.Slot, _ time.Time) (string, []Student, error) {
	if f.openErr != nil {
		return "", nil, f.openErr
	}
	return f.sessionID, f.roster, nil
}

func (f *fakeBackend) FinalizeSession(_ context.Context, sessionID, _ string, records []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalCalls++
	if f.finalErr != nil {
		return f.finalErr
	}
	// idempotent: the latest call replaces the stored set
	f.finalized[sessionID] = append([]Record(nil), records...)
	return nil
}

type recordingNotifier struct {
	receipts []Receipt
}

func (n *recordingNotifier) SessionCommitted(_ context.Context, r Receipt) error {
	n.receipts = append(n.receipts, r)
	return nil
}

var (
	ann = Student{UID: "u1", Name: "Ann", EnrollmentNo: "E1"}
	bob = Student{UID: "u2", Name: "Bob", EnrollmentNo: "E2"}
	cat = Student{UID: "u3", Name: "Cat", EnrollmentNo: "E3"}
)

var lectureSlot = schedule.Slot{
	Day: "Tuesday", Period: 1, SubjectCode: "CS301", Branch: "AIML", Section: "A", Semester: 5, Type: schedule.Lecture,
}
