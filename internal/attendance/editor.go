package attendance

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"facultyportal/internal/logging"
	"facultyportal/internal/metrics"
)

// DraftStore persists in-progress record sets keyed by session id.
// Load reports ok=false when no usable draft exists; malformed drafts are
// reported the same way. err is reserved for storage failures.
type DraftStore interface {
	Load(ctx context.Context, sessionID string) (records []Record, ok bool, err error)
	Save(ctx context.Context, sessionID string, records []Record) error
}

// Editor holds the live record set of one session. Mutations are serialized
// and each accepted mutation is written to the draft store before returning.
// A mutation whose save fails is undone and reported as *DraftSaveError.
type Editor struct {
	mu        sync.Mutex
	sessionID string
	order     []string
	status    map[string]Status
	store     DraftStore
	log       *zap.Logger
}

// NewEditor starts an editor from a reconciled record set. store may be nil.
func NewEditor(sessionID string, records []Record, store DraftStore, log *zap.Logger) *Editor {
	e := &Editor{
		sessionID: sessionID,
		order:     make([]string, 0, len(records)),
		status:    make(map[string]Status, len(records)),
		store:     store,
		log:       logging.OrNop(log).With(zap.String("session_id", sessionID)),
	}
	for _, r := range records {
		if _, dup := e.status[r.UID]; dup {
			continue
		}
		e.order = append(e.order, r.UID)
		e.status[r.UID] = r.Status
	}
	return e
}

// SetStatus marks one student. Unknown uids are ignored without error.
func (e *Editor) SetStatus(ctx context.Context, uid string, s Status) error {
	if !s.Markable() {
		return ErrInvalidStatus
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prev, ok := e.status[uid]
	if !ok {
		return nil
	}
	e.status[uid] = s
	if err := e.persistLocked(ctx); err != nil {
		e.status[uid] = prev
		return err
	}
	metrics.Mutations.WithLabelValues("single").Inc()
	return nil
}

// SetAll marks every student on the roster with s in one step.
func (e *Editor) SetAll(ctx context.Context, s Status) error {
	if !s.Markable() {
		return ErrInvalidStatus
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := make(map[string]Status, len(e.status))
	for uid, old := range e.status {
		prev[uid] = old
		e.status[uid] = s
	}
	if err := e.persistLocked(ctx); err != nil {
		e.status = prev
		return err
	}
	metrics.Mutations.WithLabelValues("bulk").Inc()
	return nil
}

// Status returns the current status of uid.
func (e *Editor) Status(uid string) (Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.status[uid]
	return s, ok
}

// Records returns a copy of the working set in roster order.
func (e *Editor) Records() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recordsLocked()
}

// Tally counts the working set.
func (e *Editor) Tally() Tally {
	return Count(e.Records())
}

func (e *Editor) recordsLocked() []Record {
	out := make([]Record, len(e.order))
	for i, uid := range e.order {
		out[i] = Record{UID: uid, Status: e.status[uid]}
	}
	return out
}

func (e *Editor) persistLocked(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.Save(ctx, e.sessionID, e.recordsLocked()); err != nil {
		metrics.DraftSaveFailures.Inc()
		e.log.Warn("draft save failed, mutation rolled back", zap.Error(err))
		return &DraftSaveError{SessionID: e.sessionID, Err: err}
	}
	return nil
}
