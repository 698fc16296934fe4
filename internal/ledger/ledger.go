// Package ledger keeps a Postgres record of committed attendance sessions.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"facultyportal/internal/attendance"
)

const schema = `
CREATE TABLE IF NOT EXISTS attendance_receipts (
	id            UUID PRIMARY KEY,
	session_id    TEXT NOT NULL UNIQUE,
	faculty_id    TEXT NOT NULL,
	slot_key      TEXT NOT NULL,
	subject_code  TEXT NOT NULL,
	subject_name  TEXT NOT NULL DEFAULT '',
	branch        TEXT NOT NULL,
	section       TEXT NOT NULL,
	semester      INT NOT NULL,
	period        INT NOT NULL,
	group_number  INT,
	class_date    DATE NOT NULL,
	present       INT NOT NULL,
	absent        INT NOT NULL,
	unmarked      INT NOT NULL,
	total         INT NOT NULL,
	records       JSONB NOT NULL,
	committed_at  TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_receipts_faculty_date ON attendance_receipts (faculty_id, class_date DESC);
`

// Entry is one stored receipt.
type Entry struct {
	ID          string              `json:"id"`
	SessionID   string              `json:"sessionId"`
	FacultyID   string              `json:"facultyId"`
	SlotKey     string              `json:"slotKey"`
	SubjectCode string              `json:"subjectCode"`
	SubjectName string              `json:"subjectName"`
	Branch      string              `json:"branch"`
	Section     string              `json:"section"`
	Semester    int                 `json:"semester"`
	Period      int                 `json:"period"`
	GroupNumber *int                `json:"groupNumber,omitempty"`
	ClassDate   time.Time           `json:"classDate"`
	Tally       attendance.Tally    `json:"tally"`
	Records     []attendance.Record `json:"records"`
	CommittedAt time.Time           `json:"committedAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// Filter narrows ListReceipts. Zero fields are ignored.
type Filter struct {
	FacultyID   string
	SubjectCode string
	From        time.Time
	To          time.Time
}

// Repository persists receipts in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the receipts table if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return errors.Wrap(err, "migrate receipts")
}

// RecordCommit stores rec. A session committed twice keeps one row holding
// the latest record set.
func (r *Repository) RecordCommit(ctx context.Context, rec attendance.Receipt) (Entry, error) {
	if rec.SessionID == "" || rec.FacultyID == "" {
		return Entry{}, errors.New("session and faculty id required")
	}
	records, err := json.Marshal(rec.Records)
	if err != nil {
		return Entry{}, errors.Wrap(err, "encode records")
	}
	var group any
	if rec.Slot.IsLab() {
		group = rec.Slot.Group()
	}
	committedAt := rec.CommittedAt
	if committedAt.IsZero() {
		committedAt = time.Now().UTC()
	}

	var id string
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_receipts (
			id, session_id, faculty_id, slot_key, subject_code, subject_name, branch, section,
			semester, period, group_number, class_date, present, absent, unmarked, total, records, committed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (session_id) DO UPDATE SET
			records = EXCLUDED.records,
			present = EXCLUDED.present,
			absent = EXCLUDED.absent,
			unmarked = EXCLUDED.unmarked,
			total = EXCLUDED.total,
			committed_at = EXCLUDED.committed_at,
			updated_at = NOW()
		RETURNING id
	`, uuid.NewString(), rec.SessionID, rec.FacultyID, rec.Slot.Key(), rec.Slot.SubjectCode, rec.Slot.SubjectName,
		rec.Slot.Branch, rec.Slot.Section, rec.Slot.Semester, rec.Slot.Period, group,
		rec.Date.Format("2006-01-02"), rec.Tally.Present, rec.Tally.Absent, rec.Tally.Unmarked, rec.Tally.Total,
		string(records), committedAt,
	).Scan(&id)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "record commit %s", rec.SessionID)
	}
	return r.Get(ctx, rec.SessionID)
}

const columns = `id, session_id, faculty_id, slot_key, subject_code, subject_name, branch, section,
	semester, period, group_number, class_date, present, absent, unmarked, total, records, committed_at, updated_at`

// Get returns the receipt for sessionID, or sql.ErrNoRows.
func (r *Repository) Get(ctx context.Context, sessionID string) (Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM attendance_receipts WHERE session_id = $1`, sessionID)
	e, err := scan(row)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "get receipt %s", sessionID)
	}
	return e, nil
}

// ListReceipts returns receipts newest class date first.
func (r *Repository) ListReceipts(ctx context.Context, f Filter, limit, offset int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query, args := listQuery(f, limit, offset)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list receipts")
	}
	defer rows.Close()

	res := []Entry{}
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan receipt")
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func listQuery(f Filter, limit, offset int) (string, []any) {
	query := `SELECT ` + columns + ` FROM attendance_receipts`
	args := []any{}
	clauses := []string{}
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, clause+" $"+strconv.Itoa(len(args)))
	}
	if f.FacultyID != "" {
		add("faculty_id =", f.FacultyID)
	}
	if f.SubjectCode != "" {
		add("subject_code =", f.SubjectCode)
	}
	if !f.From.IsZero() {
		add("class_date >=", f.From.Format("2006-01-02"))
	}
	if !f.To.IsZero() {
		add("class_date <=", f.To.Format("2006-01-02"))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY class_date DESC, period ASC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	return query, append(args, limit, offset)
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (Entry, error) {
	var (
		e       Entry
		group   sql.NullInt64
		records []byte
	)
	err := s.Scan(&e.ID, &e.SessionID, &e.FacultyID, &e.SlotKey, &e.SubjectCode, &e.SubjectName, &e.Branch, &e.Section,
		&e.Semester, &e.Period, &group, &e.ClassDate, &e.Tally.Present, &e.Tally.Absent, &e.Tally.Unmarked, &e.Tally.Total,
		&records, &e.CommittedAt, &e.UpdatedAt)
	if err != nil {
		return Entry{}, err
	}
	if group.Valid {
		g := int(group.Int64)
		e.GroupNumber = &g
	}
	if err := json.Unmarshal(records, &e.Records); err != nil {
		return Entry{}, errors.Wrap(err, "decode records")
	}
	return e, nil
}
