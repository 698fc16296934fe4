// Package portal serves the faculty attendance workflow over HTTP.
package portal

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"facultyportal/internal/attendance"
	"facultyportal/internal/auth"
	"facultyportal/internal/backend"
	"facultyportal/internal/ledger"
	"facultyportal/internal/logging"
	"facultyportal/internal/schedule"
)

// ScheduleSource returns a faculty member's weekly timetable.
type ScheduleSource interface {
	FacultySchedule(ctx context.Context, facultyID string) (backend.Schedule, error)
}

// ReceiptLister reads committed-session receipts.
type ReceiptLister interface {
	ListReceipts(ctx context.Context, f ledger.Filter, limit, offset int) ([]ledger.Entry, error)
}

// Options wires a Handler. Receipts may be nil when no database is set up.
type Options struct {
	Manager   *attendance.Manager
	Schedules ScheduleSource
	Receipts  ReceiptLister
	Registry  *Registry
	Location  *time.Location
	Logger    *zap.Logger
}

// Handler serves the /v1 API.
type Handler struct {
	manager   *attendance.Manager
	schedules ScheduleSource
	receipts  ReceiptLister
	registry  *Registry
	loc       *time.Location
	log       *zap.Logger
	validate  *validator.Validate
	now       func() time.Time
}

func NewHandler(o Options) *Handler {
	loc := o.Location
	if loc == nil {
		loc = time.Local
	}
	reg := o.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	return &Handler{
		manager:   o.Manager,
		schedules: o.Schedules,
		receipts:  o.Receipts,
		registry:  reg,
		loc:       loc,
		log:       logging.OrNop(o.Logger).Named("portal"),
		validate:  validator.New(),
		now:       time.Now,
	}
}

// Register mounts the routes on g, which must already authenticate callers.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/dashboard", h.dashboard)
	g.GET("/schedule/today", h.today)
	g.POST("/sessions", h.openSession)
	g.GET("/sessions/:id", h.viewSession)
	g.PUT("/sessions/:id/students/:uid", h.setStatus)
	g.PUT("/sessions/:id/students", h.setAll)
	g.POST("/sessions/:id/commit", h.commit)
	g.GET("/receipts", h.listReceipts)
}

func (h *Handler) localNow() time.Time { return h.now().In(h.loc) }

// refDate parses an optional YYYY-MM-DD query or body value in the portal's
// time zone, defaulting to today.
func (h *Handler) refDate(raw string) (time.Time, error) {
	if raw == "" {
		n := h.localNow()
		return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, h.loc), nil
	}
	return time.ParseInLocation(backend.DateLayout, raw, h.loc)
}

func (h *Handler) dashboard(c *gin.Context) {
	facultyID := auth.FacultyID(c)
	sched, err := h.schedules.FacultySchedule(c.Request.Context(), facultyID)
	if err != nil {
		h.log.Warn("schedule fetch failed", zap.String("faculty_id", facultyID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "schedule unavailable"})
		return
	}
	now := h.localNow()
	today := schedule.TodaysSlots(sched.Timetable, now)
	claims, _ := auth.ClaimsFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"facultyId":     facultyID,
		"name":          claims.Name,
		"greeting":      schedule.Greeting(now),
		"date":          now.Format(backend.DateLayout),
		"today":         today,
		"ongoing":       schedule.Ongoing(today, now),
		"summary":       schedule.Summarize(sched.Timetable, now),
		"weeklyHours":   sched.WeeklyHours,
		"totalSubjects": sched.TotalSubjects,
	})
}

func (h *Handler) today(c *gin.Context) {
	ref, err := h.refDate(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	sched, err := h.schedules.FacultySchedule(c.Request.Context(), auth.FacultyID(c))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "schedule unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":  ref.Format(backend.DateLayout),
		"slots": schedule.TodaysSlots(sched.Timetable, ref),
	})
}

type openRequest struct {
	Slot schedule.Slot `json:"slot"`
	Date string        `json:"date"`
}

func (h *Handler) openSession(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validate.Struct(req.Slot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := h.refDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	s, err := h.manager.Open(c.Request.Context(), auth.FacultyID(c), req.Slot, date)
	if err != nil {
		writeError(c, err)
		return
	}
	s = h.registry.Adopt(s)
	c.JSON(http.StatusCreated, sessionView(s, ""))
}

func (h *Handler) session(c *gin.Context) (*attendance.Session, bool) {
	s, err := h.registry.Get(auth.FacultyID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) viewSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionView(s, c.Query("q")))
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func bindStatus(c *gin.Context) (attendance.Status, bool) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	st, err := attendance.ParseStatus(req.Status)
	if err != nil {
		writeError(c, err)
		return "", false
	}
	return st, true
}

func (h *Handler) setStatus(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	st, ok := bindStatus(c)
	if !ok {
		return
	}
	if err := s.SetStatus(c.Request.Context(), c.Param("uid"), st); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tally": s.Tally()})
}

func (h *Handler) setAll(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	st, ok := bindStatus(c)
	if !ok {
		return
	}
	if err := s.SetAll(c.Request.Context(), st); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tally": s.Tally()})
}

func (h *Handler) commit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := s.Commit(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	h.registry.Remove(s.ID)
	c.JSON(http.StatusOK, gin.H{"outcome": res.Outcome, "receipt": res.Receipt})
}

func (h *Handler) listReceipts(c *gin.Context) {
	if h.receipts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "receipts not configured"})
		return
	}
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	f := ledger.Filter{FacultyID: auth.FacultyID(c), SubjectCode: strings.ToUpper(c.Query("subject"))}
	entries, err := h.receipts.ListReceipts(c.Request.Context(), f, limit, offset)
	if err != nil {
		h.log.Error("list receipts failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list receipts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": entries})
}

type studentView struct {
	attendance.Student
	Status attendance.Status `json:"status"`
}

func sessionView(s *attendance.Session, q string) gin.H {
	records := s.Records()
	status := make(map[string]attendance.Status, len(records))
	for _, r := range records {
		status[r.UID] = r.Status
	}
	filtered := attendance.FilterRoster(s.Roster, q)
	students := make([]studentView, 0, len(filtered))
	for _, st := range filtered {
		students = append(students, studentView{Student: st, Status: status[st.UID]})
	}
	return gin.H{
		"sessionId":    s.ID,
		"state":        s.State(),
		"slot":         s.Slot,
		"date":         s.Date.Format(backend.DateLayout),
		"students":     students,
		"records":      records,
		"tally":        attendance.Count(records),
		"lastActivity": s.LastActivity(),
	}
}
