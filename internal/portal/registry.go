package portal

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"facultyportal/internal/attendance"
	"facultyportal/internal/logging"
	"facultyportal/internal/metrics"
)

// ErrSessionNotFound is returned for unknown sessions and for sessions owned
// by another faculty member.
var ErrSessionNotFound = errors.New("session not found")

// Registry holds the open sessions of this process by session id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*attendance.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*attendance.Session)}
}

// Adopt stores s unless a session with the same id is already held, in which
// case the held one is returned.
func (r *Registry) Adopt(s *attendance.Session) *attendance.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if held, ok := r.sessions[s.ID]; ok && held.State() != attendance.StateCommitted {
		return held
	}
	r.sessions[s.ID] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return s
}

// Get returns the session id owned by facultyID.
func (r *Registry) Get(facultyID, id string) (*attendance.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.FacultyID != facultyID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove drops id from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
}

// Len reports how many sessions are held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions with no activity since cutoff. Sessions mid-commit
// are kept. Session state is read outside the registry lock.
func (r *Registry) Sweep(cutoff time.Time) int {
	r.mu.Lock()
	held := make(map[string]*attendance.Session, len(r.sessions))
	for id, s := range r.sessions {
		held[id] = s
	}
	r.mu.Unlock()

	var idle []string
	for id, s := range held {
		if s.State() != attendance.StateSubmitting && s.LastActivity().Before(cutoff) {
			idle = append(idle, id)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range idle {
		if r.sessions[id] == held[id] {
			delete(r.sessions, id)
			n++
		}
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return n
}

// StartSweeper evicts idle sessions every few minutes.
func (r *Registry) StartSweeper(idle time.Duration, log *zap.Logger) (*cron.Cron, error) {
	log = logging.OrNop(log).Named("registry")
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc("@every 5m", func() {
		if n := r.Sweep(time.Now().Add(-idle)); n > 0 {
			log.Info("evicted idle sessions", zap.Int("count", n), zap.Int("remaining", r.Len()))
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "schedule sweeper")
	}
	c.Start()
	return c, nil
}
