package ledger

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facultyportal/internal/attendance"
	"facultyportal/internal/schedule"
	"facultyportal/internal/store"
)

func TestListQuery(t *testing.T) {
	q, args := listQuery(Filter{}, 10, 0)
	assert.NotContains(t, q, "WHERE")
	assert.Contains(t, q, "LIMIT $1 OFFSET $2")
	assert.Equal(t, []any{10, 0}, args)

	from := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	q, args = listQuery(Filter{FacultyID: "F1", From: from}, 5, 20)
	assert.Contains(t, q, "WHERE faculty_id = $1 AND class_date >= $2")
	assert.Contains(t, q, "LIMIT $3 OFFSET $4")
	assert.Equal(t, []any{"F1", "2024-07-01", 5, 20}, args)

	q, _ = listQuery(Filter{FacultyID: "F1", SubjectCode: "CS301", From: from, To: from}, 5, 0)
	assert.Contains(t, q, "subject_code = $2")
	assert.Contains(t, q, "class_date <= $4")
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := store.NewDB(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.Client
}

func TestRecordCommitUpserts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRepository(db)
	require.NoError(t, repo.Migrate(ctx))

	group := 2
	faculty := "F-" + uuid.NewString()
	rec := attendance.Receipt{
		SessionID: "S-" + uuid.NewString(),
		FacultyID: faculty,
		Slot: schedule.Slot{Day: "Tuesday", Period: 3, SubjectCode: "CS391", SubjectName: "DBMS Lab",
			Branch: "AIML", Section: "A", Semester: 5, Type: schedule.Lab, GroupNumber: &group},
		Date:        time.Date(2024, 7, 16, 0, 0, 0, 0, time.UTC),
		Records:     []attendance.Record{{UID: "u1", Status: attendance.Absent}},
		CommittedAt: time.Now().UTC(),
	}
	rec.Tally = attendance.Count(rec.Records)
	t.Cleanup(func() { db.Exec(`DELETE FROM attendance_receipts WHERE faculty_id = $1`, faculty) })

	first, err := repo.RecordCommit(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Tally.Absent)
	require.NotNil(t, first.GroupNumber)
	assert.Equal(t, 2, *first.GroupNumber)

	rec.Records = []attendance.Record{{UID: "u1", Status: attendance.Present}}
	rec.Tally = attendance.Count(rec.Records)
	second, err := repo.RecordCommit(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, rec.Records, second.Records)

	list, err := repo.ListReceipts(ctx, Filter{FacultyID: faculty}, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2024-07-16", list[0].ClassDate.Format("2006-01-02"))

	_, err = repo.Get(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecordCommitRequiresIDs(t *testing.T) {
	_, err := NewRepository(nil).RecordCommit(context.Background(), attendance.Receipt{})
	assert.Error(t, err)
}
