package draft

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"facultyportal/internal/attendance"
	"facultyportal/internal/logging"
)

// SQLite stores one row per session in a local database file.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// NewSQLite creates the drafts table if needed.
func NewSQLite(db *sql.DB, log *zap.Logger) (*SQLite, error) {
	if err := migrate(db); err != nil {
		return nil, errors.Wrap(err, "migrate drafts")
	}
	return &SQLite{db: db, log: logging.OrNop(log), now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS drafts (
		session_id  TEXT PRIMARY KEY,
		payload     TEXT NOT NULL,
		updated_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_drafts_updated ON drafts(updated_at);
	`)
	return err
}

func (s *SQLite) Load(ctx context.Context, sessionID string) ([]attendance.Record, bool, error) {
	return loadPayload(ctx, s.log, sessionID, func(ctx context.Context) ([]byte, bool, error) {
		var payload string
		err := s.db.QueryRowContext(ctx, `SELECT payload FROM drafts WHERE session_id = ?`, sessionID).Scan(&payload)
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, errors.Wrap(err, "load draft")
		}
		return []byte(payload), true, nil
	})
}

func (s *SQLite) Save(ctx context.Context, sessionID string, records []attendance.Record) error {
	payload, err := encode(records)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drafts (session_id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		sessionID, string(payload), s.now().UnixNano(),
	)
	return errors.Wrap(err, "save draft")
}

// Reap deletes drafts last written before cutoff.
func (s *SQLite) Reap(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE updated_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, "reap drafts")
	}
	return res.RowsAffected()
}
