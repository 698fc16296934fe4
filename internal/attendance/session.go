package attendance

import (
	"context"
	"sync"
	"time"

	"facultyportal/internal/schedule"
)

// State is the client-side lifecycle of a session.
type State string

const (
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateSubmitting   State = "submitting"
	StateCommitted    State = "committed"
)

// Session is an opened class session with its live record set.
//
//	Initializing -> Active <-> Active (edits) -> Submitting -> Committed
//	                                             Submitting -> Active (failed)
type Session struct {
	ID        string
	FacultyID string
	Slot      schedule.Slot
	Date      time.Time
	Roster    []Student

	editor    *Editor
	submitter *Submitter
	now       func() time.Time

	// opMu serializes edits and the start of a commit; it is held across
	// draft-store I/O. mu only guards state and touched.
	opMu    sync.Mutex
	mu      sync.Mutex
	state   State
	touched time.Time
}

func newSession(opened Opened, facultyID string, slot schedule.Slot, date time.Time, editor *Editor, submitter *Submitter, now func() time.Time) *Session {
	return &Session{
		ID:        opened.SessionID,
		FacultyID: facultyID,
		Slot:      slot,
		Date:      date,
		Roster:    opened.Roster,
		editor:    editor,
		submitter: submitter,
		now:       now,
		state:     StateActive,
		touched:   now(),
	}
}

// State returns the current lifecycle state. It never waits on storage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns when the session was opened or last changed.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// Records returns the working set in roster order.
func (s *Session) Records() []Record { return s.editor.Records() }

// Tally counts the working set.
func (s *Session) Tally() Tally { return s.editor.Tally() }

// SetStatus marks one student.
func (s *Session) SetStatus(ctx context.Context, uid string, st Status) error {
	return s.edit(func() error { return s.editor.SetStatus(ctx, uid, st) })
}

// SetAll marks every student.
func (s *Session) SetAll(ctx context.Context, st Status) error {
	return s.edit(func() error { return s.editor.SetAll(ctx, st) })
}

func (s *Session) edit(fn func() error) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.editable(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	s.transition("", s.now())
	return nil
}

func (s *Session) editable() error {
	switch s.State() {
	case StateActive:
		return nil
	case StateCommitted:
		return ErrSessionCommitted
	default:
		return ErrSubmitting
	}
}

// transition records activity at t and, when to is set, moves to state to.
func (s *Session) transition(to State, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to != "" {
		s.state = to
	}
	s.touched = t
}

// Commit submits the working set. On failure the session returns to Active
// and the commit may be retried.
func (s *Session) Commit(ctx context.Context) (CommitResult, error) {
	s.opMu.Lock()
	if err := s.editable(); err != nil {
		s.opMu.Unlock()
		return CommitResult{Outcome: Failed}, err
	}
	s.mu.Lock()
	s.state = StateSubmitting
	s.mu.Unlock()
	s.opMu.Unlock()

	res, err := s.submitter.Commit(ctx, CommitRequest{
		SessionID: s.ID,
		FacultyID: s.FacultyID,
		Roster:    s.Roster,
		Records:   s.editor.Records(),
		Slot:      s.Slot,
		Date:      s.Date,
	})
	if err != nil {
		s.transition(StateActive, s.now())
		return res, err
	}
	s.transition(StateCommitted, s.now())
	return res, nil
}
