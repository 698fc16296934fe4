package attendance

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"facultyportal/internal/logging"
	"facultyportal/internal/metrics"
	"facultyportal/internal/schedule"
)

// SessionFinalizer sends the final record set to the backend. Repeating a
// call with identical arguments must have no further effect.
type SessionFinalizer interface {
	FinalizeSession(ctx context.Context, sessionID, facultyID string, records []Record) error
}

// CommitNotifier is told about every successful commit.
type CommitNotifier interface {
	SessionCommitted(ctx context.Context, r Receipt) error
}

// Outcome of a commit attempt.
type Outcome string

const (
	Committed Outcome = "committed"
	Failed    Outcome = "failed"
)

// CommitRequest carries everything a commit needs. Roster is the roster the
// records were reconciled against; Slot and Date only feed the receipt.
type CommitRequest struct {
	SessionID string
	FacultyID string
	Roster    []Student
	Records   []Record
	Slot      schedule.Slot
	Date      time.Time
}

// Receipt describes a committed session.
type Receipt struct {
	SessionID   string        `json:"sessionId"`
	FacultyID   string        `json:"facultyId"`
	Slot        schedule.Slot `json:"slot"`
	Date        time.Time     `json:"date"`
	Roster      []Student     `json:"roster"`
	Records     []Record      `json:"records"`
	Tally       Tally         `json:"tally"`
	CommittedAt time.Time     `json:"committedAt"`
}

// CommitResult is returned by Commit. On failure Outcome is Failed and the
// accompanying error is a *CommitFailure or *IncompleteSubmissionError.
type CommitResult struct {
	Outcome   Outcome
	Retryable bool
	Receipt   Receipt
}

// Submitter commits record sets and keeps the draft cache in step.
type Submitter struct {
	finalizer SessionFinalizer
	drafts    DraftStore
	notifier  CommitNotifier
	log       *zap.Logger
	now       func() time.Time
}

// NewSubmitter wires a submitter. drafts and notifier may be nil.
func NewSubmitter(finalizer SessionFinalizer, drafts DraftStore, notifier CommitNotifier, log *zap.Logger) *Submitter {
	return &Submitter{
		finalizer: finalizer,
		drafts:    drafts,
		notifier:  notifier,
		log:       logging.OrNop(log),
		now:       time.Now,
	}
}

// Commit checks that req.Records covers req.Roster exactly once per uid,
// sends it, and on success stores the committed set as the session's draft.
// A failed send leaves the draft untouched and may be retried as is.
func (s *Submitter) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	log := s.log.With(zap.String("session_id", req.SessionID), zap.String("faculty_id", req.FacultyID))

	if err := checkComplete(req); err != nil {
		metrics.Commits.WithLabelValues("incomplete").Inc()
		log.Error("refusing incomplete submission", zap.Error(err))
		return CommitResult{Outcome: Failed}, err
	}

	start := time.Now()
	err := s.finalizer.FinalizeSession(ctx, req.SessionID, req.FacultyID, req.Records)
	metrics.CommitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Commits.WithLabelValues("failed").Inc()
		log.Warn("commit failed", zap.Error(err))
		return CommitResult{Outcome: Failed, Retryable: true},
			&CommitFailure{SessionID: req.SessionID, Retryable: true, Err: err}
	}
	metrics.Commits.WithLabelValues("committed").Inc()

	if s.drafts != nil {
		if err := s.drafts.Save(ctx, req.SessionID, req.Records); err != nil {
			metrics.DraftSaveFailures.Inc()
			log.Warn("committed set not cached", zap.Error(err))
		}
	}

	receipt := Receipt{
		SessionID:   req.SessionID,
		FacultyID:   req.FacultyID,
		Slot:        req.Slot,
		Date:        req.Date,
		Roster:      req.Roster,
		Records:     req.Records,
		Tally:       Count(req.Records),
		CommittedAt: s.now().UTC(),
	}
	if s.notifier != nil {
		if err := s.notifier.SessionCommitted(ctx, receipt); err != nil {
			log.Warn("commit notification failed", zap.Error(err))
		}
	}
	log.Info("session committed",
		zap.Int("present", receipt.Tally.Present),
		zap.Int("absent", receipt.Tally.Absent),
		zap.Int("unmarked", receipt.Tally.Unmarked))
	return CommitResult{Outcome: Committed, Receipt: receipt}, nil
}

func checkComplete(req CommitRequest) error {
	want := make(map[string]bool, len(req.Roster))
	for _, uid := range uids(req.Roster) {
		want[uid] = false
	}
	var missing, unexpected, dups []string
	for _, r := range req.Records {
		seen, onRoster := want[r.UID]
		switch {
		case !onRoster:
			unexpected = append(unexpected, r.UID)
		case seen:
			dups = append(dups, r.UID)
		default:
			want[r.UID] = true
		}
	}
	for uid, seen := range want {
		if !seen {
			missing = append(missing, uid)
		}
	}
	if len(missing)+len(unexpected)+len(dups) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &IncompleteSubmissionError{
		SessionID:  req.SessionID,
		Missing:    missing,
		Unexpected: unexpected,
		Duplicates: dups,
	}
}
