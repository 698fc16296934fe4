package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"facultyportal/internal/logging"
	"facultyportal/internal/metrics"
	"facultyportal/internal/schedule"
)

// SessionOpener opens or resumes a class session on the backend. Calling it
// again for the same faculty, slot and date must return the same session id.
type SessionOpener interface {
	OpenSession(ctx context.Context, facultyID string, slot schedule.Slot, date time.Time) (sessionID string, roster []Student, err error)
}

// Opened is the result of a successful start.
type Opened struct {
	SessionID string
	Roster    []Student
}

// Manager opens sessions and reconciles their rosters with cached drafts.
type Manager struct {
	opener    SessionOpener
	drafts    DraftStore
	submitter *Submitter
	log       *zap.Logger
	now       func() time.Time
}

// NewManager wires a manager. drafts may be nil, in which case every session
// starts all-Unmarked and nothing is cached.
func NewManager(opener SessionOpener, drafts DraftStore, submitter *Submitter, log *zap.Logger) *Manager {
	return &Manager{
		opener:    opener,
		drafts:    drafts,
		submitter: submitter,
		log:       logging.OrNop(log),
		now:       time.Now,
	}
}

// Start asks the backend for the session bound to (faculty, slot, date).
func (m *Manager) Start(ctx context.Context, facultyID string, slot schedule.Slot, date time.Time) (Opened, error) {
	fail := func(err error) (Opened, error) {
		metrics.SessionOpenFailures.Inc()
		return Opened{}, &SessionOpenError{FacultyID: facultyID, SlotKey: slot.Key(), Err: err}
	}
	if strings.TrimSpace(facultyID) == "" {
		return fail(errors.New("faculty id required"))
	}
	sessionID, roster, err := m.opener.OpenSession(ctx, facultyID, slot, date)
	if err != nil {
		var soe *SessionOpenError
		if errors.As(err, &soe) {
			metrics.SessionOpenFailures.Inc()
			return Opened{}, soe
		}
		return fail(err)
	}
	if sessionID == "" {
		return fail(errors.New("backend returned an empty session id"))
	}
	metrics.SessionsOpened.Inc()
	return Opened{SessionID: sessionID, Roster: roster}, nil
}

// Reconcile builds the working set for roster, overlaying the cached draft
// for sessionID when one exists. Storage failures are logged and treated as
// "no draft".
func (m *Manager) Reconcile(ctx context.Context, sessionID string, roster []Student) []Record {
	var draft []Record
	if m.drafts != nil {
		records, ok, err := m.drafts.Load(ctx, sessionID)
		switch {
		case err != nil:
			metrics.DraftsDiscarded.WithLabelValues("unavailable").Inc()
			m.log.Warn("draft store unavailable, starting unmarked",
				zap.String("session_id", sessionID), zap.Error(err))
		case ok:
			metrics.DraftsRestored.Inc()
			draft = records
		}
	}
	return Reconcile(roster, draft)
}

// Open runs start and reconcile and returns an editable session.
func (m *Manager) Open(ctx context.Context, facultyID string, slot schedule.Slot, date time.Time) (*Session, error) {
	opened, err := m.Start(ctx, facultyID, slot, date)
	if err != nil {
		return nil, err
	}
	records := m.Reconcile(ctx, opened.SessionID, opened.Roster)
	m.log.Info("session opened",
		zap.String("session_id", opened.SessionID),
		zap.String("faculty_id", facultyID),
		zap.String("slot", slot.Key()),
		zap.Int("roster", len(opened.Roster)))

	editor := NewEditor(opened.SessionID, records, m.drafts, m.log)
	return newSession(opened, facultyID, slot, date, editor, m.submitter, m.now), nil
}
