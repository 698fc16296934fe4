package draft

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"facultyportal/internal/attendance"
	"facultyportal/internal/logging"
)

type entry struct {
	payload []byte
	updated time.Time
}

// Memory keeps drafts in process. Contents are lost on restart.
type Memory struct {
	mu   sync.RWMutex
	data map[string]entry
	log  *zap.Logger
	now  func() time.Time
}

func NewMemory(log *zap.Logger) *Memory {
	return &Memory{data: make(map[string]entry), log: logging.OrNop(log), now: time.Now}
}

func (m *Memory) Load(ctx context.Context, sessionID string) ([]attendance.Record, bool, error) {
	return loadPayload(ctx, m.log, sessionID, func(context.Context) ([]byte, bool, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		e, ok := m.data[sessionID]
		return e.payload, ok, nil
	})
}

func (m *Memory) Save(_ context.Context, sessionID string, records []attendance.Record) error {
	payload, err := encode(records)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[sessionID] = entry{payload: payload, updated: m.now()}
	m.mu.Unlock()
	return nil
}

// Reap drops drafts last written before cutoff.
func (m *Memory) Reap(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.data {
		if e.updated.Before(cutoff) {
			delete(m.data, id)
			n++
		}
	}
	return n, nil
}

// put stores a raw payload; tests use it to plant corrupt drafts.
func (m *Memory) put(sessionID string, payload []byte) {
	m.mu.Lock()
	m.data[sessionID] = entry{payload: payload, updated: m.now()}
	m.mu.Unlock()
}
