package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var classDate = time.Date(2024, 7, 16, 0, 0, 0, 0, time.UTC)

func newTestManager(backend *fakeBackend, drafts *memDrafts, notifier CommitNotifier) *Manager {
	var store DraftStore
	if drafts != nil {
		store = drafts
	}
	return NewManager(backend, store, NewSubmitter(backend, store, notifier, nil), nil)
}

func TestOpenWithoutDraft(t *testing.T) {
	m := newTestManager(newFakeBackend(ann, bob), newMemDrafts(), nil)

	s, err := m.Open(context.Background(), "F1", lectureSlot, classDate)
	require.NoError(t, err)

	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, []Record{{UID: "u1", Status: Unmarked}, {UID: "u2", Status: Unmarked}}, s.Records())
}

func TestOpenRestoresDraft(t *testing.T) {
	drafts := newMemDrafts()
	drafts.data["sess-1"] = []Record{{UID: "u1", Status: Present}}
	m := newTestManager(newFakeBackend(ann, bob), drafts, nil)

	s, err := m.Open(context.Background(), "F1", lectureSlot, classDate)
	require.NoError(t, err)
	assert.Equal(t, []Record{{UID: "u1", Status: Present}, {UID: "u2", Status: Unmarked}}, s.Records())
}

func TestOpenWithUnavailableDraftStore(t *testing.T) {
	drafts := newMemDrafts()
	drafts.loadErr = errBoom
	m := newTestManager(newFakeBackend(ann), drafts, nil)

	s, err := m.Open(context.Background(), "F1", lectureSlot, classDate)
	require.NoError(t, err)
	assert.Equal(t, []Record{{UID: "u1", Status: Unmarked}}, s.Records())
}

func TestStartFailures(t *testing.T) {
	ctx := context.Background()

	backend := newFakeBackend(ann)
	backend.openErr = errBoom
	_, err := newTestManager(backend, nil, nil).Start(ctx, "F1", lectureSlot, classDate)
	var soe *SessionOpenError
	require.ErrorAs(t, err, &soe)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, lectureSlot.Key(), soe.SlotKey)

	_, err = newTestManager(newFakeBackend(ann), nil, nil).Start(ctx, " ", lectureSlot, classDate)
	assert.ErrorAs(t, err, &soe)

	empty := newFakeBackend(ann)
	empty.sessionID = ""
	_, err = newTestManager(empty, nil, nil).Start(ctx, "F1", lectureSlot, classDate)
	assert.ErrorAs(t, err, &soe)
}

func TestStartIsIdempotent(t *testing.T) {
	m := newTestManager(newFakeBackend(ann, bob), nil, nil)
	a, err := m.Start(context.Background(), "F1", lectureSlot, classDate)
	require.NoError(t, err)
	b, err := m.Start(context.Background(), "F1", lectureSlot, classDate)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestOpenWithEmptyRoster(t *testing.T) {
	m := newTestManager(newFakeBackend(), newMemDrafts(), nil)
	s, err := m.Open(context.Background(), "F1", lectureSlot, classDate)
	require.NoError(t, err)
	assert.Empty(t, s.Records())

	res, err := s.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Committed, res.Outcome)
	assert.Empty(t, res.Receipt.Records)
}

func TestCommitRetryAfterNetworkFailure(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(ann, bob)
	drafts := newMemDrafts()
	notifier := &recordingNotifier{}
	m := newTestManager(backend, drafts, notifier)

	s, err := m.Open(ctx, "F1", lectureSlot, classDate)
	require.NoError(t, err)
	require.NoError(t, s.SetAll(ctx, Absent))
	require.NoError(t, s.SetStatus(ctx, "u1", Present))
	draftBefore := drafts.get("sess-1")

	backend.finalErr = errors.New("connection reset")
	res, err := s.Commit(ctx)
	var cf *CommitFailure
	require.ErrorAs(t, err, &cf)
	assert.True(t, cf.Retryable)
	assert.Equal(t, Failed, res.Outcome)
	assert.True(t, res.Retryable)
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, draftBefore, drafts.get("sess-1"))
	assert.Empty(t, notifier.receipts)

	backend.finalErr = nil
	res, err = s.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, Committed, res.Outcome)
	assert.Equal(t, StateCommitted, s.State())

	want := []Record{{UID: "u1", Status: Present}, {UID: "u2", Status: Absent}}
	assert.Equal(t, want, backend.finalized["sess-1"])
	assert.Equal(t, want, drafts.get("sess-1"))
	require.Len(t, notifier.receipts, 1)
	assert.Equal(t, Tally{Present: 1, Absent: 1, Total: 2}, notifier.receipts[0].Tally)
	assert.Equal(t, 2, backend.finalCalls)
}

func TestNoEditsAfterCommit(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(newFakeBackend(ann), newMemDrafts(), nil)
	s, err := m.Open(ctx, "F1", lectureSlot, classDate)
	require.NoError(t, err)

	_, err = s.Commit(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, s.SetStatus(ctx, "u1", Present), ErrSessionCommitted)
	assert.ErrorIs(t, s.SetAll(ctx, Absent), ErrSessionCommitted)
	_, err = s.Commit(ctx)
	assert.ErrorIs(t, err, ErrSessionCommitted)
	assert.Equal(t, []Record{{UID: "u1", Status: Unmarked}}, s.Records())
}

func TestReopenAfterCommitShowsCommittedSet(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(ann, bob)
	drafts := newMemDrafts()
	m := newTestManager(backend, drafts, nil)

	s, err := m.Open(ctx, "F1", lectureSlot, classDate)
	require.NoError(t, err)
	require.NoError(t, s.SetStatus(ctx, "u2", Present))
	_, err = s.Commit(ctx)
	require.NoError(t, err)

	again, err := m.Open(ctx, "F1", lectureSlot, classDate)
	require.NoError(t, err)
	assert.Equal(t, s.Records(), again.Records())
	assert.Equal(t, StateActive, again.State())
}

func TestCommittedPayloadMatchesRoster(t *testing.T) {
	rosters := [][]Student{{ann}, {ann, bob}, {ann, bob, cat}}
	for _, roster := range rosters {
		backend := newFakeBackend(roster...)
		m := newTestManager(backend, newMemDrafts(), nil)
		s, err := m.Open(context.Background(), "F1", lectureSlot, classDate)
		require.NoError(t, err)
		require.NoError(t, s.SetStatus(context.Background(), roster[0].UID, Present))

		_, err = s.Commit(context.Background())
		require.NoError(t, err)
		assert.Len(t, backend.finalized["sess-1"], len(roster))
	}
}

func TestSubmitterRejectsIncomplete(t *testing.T) {
	backend := newFakeBackend()
	sub := NewSubmitter(backend, nil, nil, nil)

	_, err := sub.Commit(context.Background(), CommitRequest{
		SessionID: "s",
		FacultyID: "F1",
		Roster:    []Student{ann, bob, cat},
		Records:   []Record{{UID: "u1", Status: Present}, {UID: "u1", Status: Absent}, {UID: "u9", Status: Absent}},
	})

	var inc *IncompleteSubmissionError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, []string{"u2", "u3"}, inc.Missing)
	assert.Equal(t, []string{"u9"}, inc.Unexpected)
	assert.Equal(t, []string{"u1"}, inc.Duplicates)
	assert.Zero(t, backend.finalCalls)
}

func TestFailedDraftSaveRejectsEdit(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend(ann, bob)
	drafts := newMemDrafts()
	m := newTestManager(backend, drafts, nil)
	s, err := m.Open(ctx, "F1", lectureSlot, classDate)
	require.NoError(t, err)

	drafts.failing = true
	var dse *DraftSaveError
	require.ErrorAs(t, s.SetStatus(ctx, "u1", Present), &dse)
	assert.Equal(t, StateActive, s.State())

	// a restarted process sees nothing the caller was told was saved
	drafts.failing = false
	again, err := newTestManager(backend, drafts, nil).Open(ctx, "F1", lectureSlot, classDate)
	require.NoError(t, err)
	assert.Equal(t, s.Records(), again.Records())

	require.NoError(t, s.SetStatus(ctx, "u1", Present))
	_, err = s.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Record{{UID: "u1", Status: Present}, {UID: "u2", Status: Unmarked}}, backend.finalized["sess-1"])
}

func TestSessionTracksActivity(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 7, 16, 9, 0, 0, 0, time.UTC)
	m := newTestManager(newFakeBackend(ann), nil, nil)
	m.now = func() time.Time { return clock }

	s, err := m.Open(ctx, "F1", lectureSlot, classDate)
	require.NoError(t, err)
	assert.Equal(t, clock, s.LastActivity())

	clock = clock.Add(5 * time.Minute)
	require.NoError(t, s.SetStatus(ctx, "u1", Present))
	assert.Equal(t, clock, s.LastActivity())
}
