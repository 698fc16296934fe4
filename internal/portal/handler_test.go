package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facultyportal/internal/attendance"
	"facultyportal/internal/auth"
	"facultyportal/internal/backend"
	"facultyportal/internal/draft"
	"facultyportal/internal/ledger"
)

const (
	signingKey = "portal-test-key"
	issuer     = "faculty-portal"
)

// fakeAPI stands in for the institution backend.
type fakeAPI struct {
	mu       sync.Mutex
	failMark bool
	marked   map[string][]attendance.Record
	starts   int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.URL.Path {
	case "/api/faculty/attendance/start":
		f.starts++
		var req backend.StartRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		id := "S-" + req.FacultyID + "-" + req.SubjectCode + "-" + req.Date
		json.NewEncoder(w).Encode(gin.H{"session": gin.H{
			"sessionId": id,
			"studentList": []attendance.Student{
				{UID: "u1", Name: "Ann", EnrollmentNo: "E1"},
				{UID: "u2", Name: "Bob", EnrollmentNo: "E2"},
			},
		}})
	case "/api/faculty/attendance/mark":
		if f.failMark {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		var req struct {
			SessionID      string              `json:"sessionId"`
			AttendanceData []attendance.Record `json:"attendanceData"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.marked[req.SessionID] = req.AttendanceData
		w.WriteHeader(http.StatusOK)
	case "/api/faculty/schedule":
		w.Write([]byte(`{"timetable":[
			{"day":"Tuesday","schedule":[
				{"time":"11:00 AM - 12:00 PM","period":3,"subjectCode":"CS302","branch":"AIML","section":"A","semester":5},
				{"time":"09:00 AM - 10:00 AM","period":1,"subjectCode":"CS301","branch":"AIML","section":"A","semester":5}
			]},
			{"day":"Monday","schedule":[
				{"time":"09:00 AM - 10:00 AM","period":1,"subjectCode":"CS303","branch":"AIML","section":"B","semester":5}
			]}
		],"weeklyHours":12,"totalSubjects":3}`))
	default:
		http.NotFound(w, r)
	}
}

type fakeReceipts struct {
	got ledger.Filter
}

func (f *fakeReceipts) ListReceipts(_ context.Context, filter ledger.Filter, _, _ int) ([]ledger.Entry, error) {
	f.got = filter
	return []ledger.Entry{{SessionID: "S-old", FacultyID: filter.FacultyID}}, nil
}

// flakyDrafts fails every Save while down is set.
type flakyDrafts struct {
	*draft.Memory
	mu   sync.Mutex
	down bool
}

func (f *flakyDrafts) setDown(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = v
}

func (f *flakyDrafts) Save(ctx context.Context, id string, records []attendance.Record) error {
	f.mu.Lock()
	down := f.down
	f.mu.Unlock()
	if down {
		return errors.New("disk full")
	}
	return f.Memory.Save(ctx, id, records)
}

type env struct {
	router   *gin.Engine
	api      *fakeAPI
	drafts   *draft.Memory
	registry *Registry
	receipts *fakeReceipts
	flaky    *flakyDrafts
}

// Tuesday 2024-07-16, 09:30 IST
var fixedNow = time.Date(2024, 7, 16, 4, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	api := &fakeAPI{marked: make(map[string][]attendance.Record)}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client := backend.New(srv.URL, 2*time.Second, nil)
	drafts := draft.NewMemory(nil)
	flaky := &flakyDrafts{Memory: drafts}
	manager := attendance.NewManager(client, flaky, attendance.NewSubmitter(client, flaky, nil, nil), nil)

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	reg := NewRegistry()
	receipts := &fakeReceipts{}
	h := NewHandler(Options{
		Manager:   manager,
		Schedules: client,
		Receipts:  receipts,
		Registry:  reg,
		Location:  loc,
	})
	h.now = func() time.Time { return fixedNow }

	r := gin.New()
	r.Use(RequestID())
	h.Register(r.Group("/v1", auth.FacultyAuth(signingKey, issuer)))
	return &env{router: r, api: api, drafts: drafts, registry: reg, receipts: receipts, flaky: flaky}
}

func (e *env) do(t *testing.T, faculty, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if faculty != "" {
		tok, err := auth.Issue(faculty, "Dr. "+faculty, issuer, signingKey, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

var slotBody = gin.H{"slot": gin.H{
	"day": "Tuesday", "period": 1, "subjectCode": "CS301", "branch": "AIML", "section": "A", "semester": 5, "type": "lecture",
}}

func TestRequiresToken(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "", http.MethodGet, "/v1/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDashboard(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "F1", http.MethodGet, "/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decode(t, w)
	assert.Equal(t, "Good Morning", out["greeting"])
	assert.Equal(t, "2024-07-16", out["date"])
	assert.EqualValues(t, 0, out["ongoing"])
	assert.EqualValues(t, 12, out["weeklyHours"])

	today := out["today"].([]any)
	require.Len(t, today, 2)
	assert.Equal(t, "CS301", today[0].(map[string]any)["subjectCode"])
	assert.Equal(t, "CS302", today[1].(map[string]any)["subjectCode"])
}

func TestScheduleForDate(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "F1", http.MethodGet, "/v1/schedule/today?date=2024-07-15", nil)
	require.Equal(t, http.StatusOK, w.Code)
	slots := decode(t, w)["slots"].([]any)
	require.Len(t, slots, 1)
	assert.Equal(t, "CS303", slots[0].(map[string]any)["subjectCode"])

	w = e.do(t, "F1", http.MethodGet, "/v1/schedule/today?date=July", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, "F1", http.MethodPost, "/v1/sessions", slotBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decode(t, w)
	id := out["sessionId"].(string)
	assert.Equal(t, "S-F1-CS301-2024-07-16", id)
	assert.Equal(t, "active", out["state"])
	assert.EqualValues(t, 2, out["tally"].(map[string]any)["unmarked"])

	w = e.do(t, "F1", http.MethodPut, "/v1/sessions/"+id+"/students", gin.H{"status": "Absent"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, "F1", http.MethodPut, "/v1/sessions/"+id+"/students/u1", gin.H{"status": "present"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["tally"].(map[string]any)["present"])

	w = e.do(t, "F1", http.MethodGet, "/v1/sessions/"+id+"?q=bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out = decode(t, w)
	students := out["students"].([]any)
	require.Len(t, students, 1)
	assert.Equal(t, "Absent", students[0].(map[string]any)["status"])
	assert.Len(t, out["records"].([]any), 2)

	w = e.do(t, "F1", http.MethodPost, "/v1/sessions/"+id+"/commit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "committed", decode(t, w)["outcome"])
	assert.Equal(t, []attendance.Record{
		{UID: "u1", Status: attendance.Present},
		{UID: "u2", Status: attendance.Absent},
	}, e.api.marked[id])
	assert.Zero(t, e.registry.Len())

	w = e.do(t, "F1", http.MethodGet, "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// reopening shows the committed set
	w = e.do(t, "F1", http.MethodPost, "/v1/sessions", slotBody)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["tally"].(map[string]any)["present"])
}

func TestReopenReturnsHeldSession(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "F1", http.MethodPost, "/v1/sessions", slotBody)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["sessionId"].(string)
	w = e.do(t, "F1", http.MethodPut, "/v1/sessions/"+id+"/students/u2", gin.H{"status": "Present"})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, "F1", http.MethodPost, "/v1/sessions", slotBody)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["tally"].(map[string]any)["present"])
	assert.Equal(t, 1, e.registry.Len())
	assert.Equal(t, 2, e.api.starts)
}

func TestOtherFacultyCannotSeeSession(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "F1", http.MethodPost, "/v1/sessions", slotBody)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["sessionId"].(string)

	w = e.do(t, "F2", http.MethodGet, "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, "F2", http.MethodPost, "/v1/sessions/"+id+"/commit", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidRequests(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "F1", http.MethodPost, "/v1/sessions", gin.H{"slot": gin.H{"day": "Tuesday"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, "F1", http.MethodPost, "/v1/sessions", gin.H{"slot": slotBody["slot"], "date": "16/07/2024"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, "F1", http.MethodPost, "/v1/sessions", slotBody)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["sessionId"].(string)

	w = e.do(t, "F1", http.MethodPut, "/v1/sessions/"+id+"/students/u1", gin.H{"status": "Unmarked"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, "F1", http.MethodPut, "/v1/sessions/"+id+"/students", gin.H{"status": "Late"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, "F1", http.MethodPut, "/v1/sessions/"+id+"/students", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// unknown uid is accepted and changes nothing
	w = e.do(t, "F1", http.MethodPut, "/v1/sessions/"+id+"/students/ghost", gin.H{"status": "Present"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["tally"].(map[string]any)["present"])
}

func TestCommitFailureIsRetryable(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "F1", http.MethodPost, "/v1/sessions", slotBody)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["sessionId"].(string)
	e.do(t, "F1", http.MethodPut, "/v1/sessions/"+id+"/students", gin.H{"status": "Present"})

	e.api.mu.Lock()
	e.api.failMark = true
	e.api.mu.Unlock()
	w = e.do(t, "F1", http.MethodPost, "/v1/sessions/"+id+"/commit", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, true, decode(t, w)["retryable"])

	saved, ok, err := e.drafts.Load(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, attendance.Present, saved[0].Status)

	e.api.mu.Lock()
	e.api.failMark = false
	e.api.mu.Unlock()
	w = e.do(t, "F1", http.MethodPost, "/v1/sessions/"+id+"/commit", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReceipts(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "F9", http.MethodGet, "/v1/receipts?subject=cs301&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "F9", e.receipts.got.FacultyID)
	assert.Equal(t, "CS301", e.receipts.got.SubjectCode)
	assert.Len(t, decode(t, w)["receipts"].([]any), 1)
}

func TestRequestIDHeader(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "", http.MethodGet, "/v1/dashboard", nil)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestEditNotSavedIsReported(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "F1", http.MethodPost, "/v1/sessions", slotBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["sessionId"].(string)

	e.flaky.setDown(true)
	w = e.do(t, "F1", http.MethodPut, "/v1/sessions/"+id+"/students/u1", gin.H{"status": "Present"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = e.do(t, "F1", http.MethodGet, "/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tally := decode(t, w)["tally"].(map[string]any)
	assert.EqualValues(t, 0, tally["present"])

	e.flaky.setDown(false)
	w = e.do(t, "F1", http.MethodPut, "/v1/sessions/"+id+"/students/u1", gin.H{"status": "Present"})
	assert.Equal(t, http.StatusOK, w.Code)
}
