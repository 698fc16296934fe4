package attendance

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStatus is returned when a mutation targets anything other
	// than Present or Absent.
	ErrInvalidStatus = errors.New("status must be Present or Absent")
	// ErrSessionCommitted is returned for edits or commits after Committed.
	ErrSessionCommitted = errors.New("session already committed")
	// ErrSubmitting is returned while a commit for the session is in flight.
	ErrSubmitting = errors.New("session is being submitted")
)

// SessionOpenError means the backend rejected or could not be reached for a
// session start. No local state is created.
type SessionOpenError struct {
	FacultyID string
	SlotKey   string
	Err       error
}

func (e *SessionOpenError) Error() string {
	return fmt.Sprintf("open session for %s at %s: %v", e.FacultyID, e.SlotKey, e.Err)
}

func (e *SessionOpenError) Unwrap() error { return e.Err }

// MalformedDraftError marks a cached draft that could not be decoded. It is
// always recovered by treating the draft as absent.
type MalformedDraftError struct {
	SessionID string
	Err       error
}

func (e *MalformedDraftError) Error() string {
	return fmt.Sprintf("malformed draft for session %s: %v", e.SessionID, e.Err)
}

func (e *MalformedDraftError) Unwrap() error { return e.Err }

// DraftSaveError means a mutation could not be written to the draft store.
// The mutation is rolled back, so the working set still matches the draft.
type DraftSaveError struct {
	SessionID string
	Err       error
}

func (e *DraftSaveError) Error() string {
	return fmt.Sprintf("save draft for session %s: %v", e.SessionID, e.Err)
}

func (e *DraftSaveError) Unwrap() error { return e.Err }

// IncompleteSubmissionError means the record set handed to Commit does not
// match the roster one-to-one. Nothing is sent.
type IncompleteSubmissionError struct {
	SessionID  string
	Missing    []string
	Unexpected []string
	Duplicates []string
}

func (e *IncompleteSubmissionError) Error() string {
	return fmt.Sprintf("incomplete submission for session %s: %d missing, %d unexpected, %d duplicated",
		e.SessionID, len(e.Missing), len(e.Unexpected), len(e.Duplicates))
}

// CommitFailure wraps a network or backend failure during finalize. The
// local draft is left as it was, so the same commit can be retried.
type CommitFailure struct {
	SessionID string
	Retryable bool
	Err       error
}

func (e *CommitFailure) Error() string {
	return fmt.Sprintf("commit session %s: %v", e.SessionID, e.Err)
}

func (e *CommitFailure) Unwrap() error { return e.Err }
