// Package backend is the REST client for the institution's attendance API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"facultyportal/internal/attendance"
	"facultyportal/internal/logging"
	"facultyportal/internal/metrics"
	"facultyportal/internal/schedule"
)

// DateLayout is the wire format of session dates.
const DateLayout = "2006-01-02"

const (
	pathStart    = "/api/faculty/attendance/start"
	pathMark     = "/api/faculty/attendance/mark"
	pathSchedule = "/api/faculty/schedule"
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client calls the attendance backend. It satisfies attendance.SessionOpener
// and attendance.SessionFinalizer; the backend keys sessions on
// (faculty, slot, date) and replaces the stored set on every mark call, which
// makes both calls safe to repeat.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	validate *validator.Validate
	log      *zap.Logger
}

// New creates a client with the given request timeout.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: timeout},
		validate: validator.New(),
		log:      logging.OrNop(log).Named("backend"),
	}
}

// StartRequest is the body of a session start call.
type StartRequest struct {
	FacultyID   string `json:"facultyId" validate:"required"`
	Branch      string `json:"branch" validate:"required"`
	Section     string `json:"section" validate:"required"`
	Semester    int    `json:"semester" validate:"min=1"`
	Period      int    `json:"period" validate:"min=1"`
	SubjectCode string `json:"subjectCode" validate:"required"`
	GroupNumber *int   `json:"groupNumber" validate:"omitempty,min=1"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
}

// NewStartRequest builds the start body for slot on date. Lectures carry a
// null group number.
func NewStartRequest(facultyID string, slot schedule.Slot, date time.Time) StartRequest {
	req := StartRequest{
		FacultyID:   facultyID,
		Branch:      slot.Branch,
		Section:     slot.Section,
		Semester:    slot.Semester,
		Period:      slot.Period,
		SubjectCode: slot.SubjectCode,
		Date:        date.Format(DateLayout),
	}
	if slot.IsLab() {
		req.GroupNumber = slot.GroupNumber
	}
	return req
}

type startResponse struct {
	Session struct {
		SessionID   string               `json:"sessionId"`
		StudentList []attendance.Student `json:"studentList"`
	} `json:"session"`
}

// OpenSession starts or resumes the session for (faculty, slot, date) and
// returns its id and roster.
func (c *Client) OpenSession(ctx context.Context, facultyID string, slot schedule.Slot, date time.Time) (string, []attendance.Student, error) {
	req := NewStartRequest(facultyID, slot, date)
	if slot.IsLab() && slot.GroupNumber == nil {
		return "", nil, errors.New("lab slot without group number")
	}
	if err := c.validate.Struct(req); err != nil {
		return "", nil, errors.Wrap(err, "invalid scheduling key")
	}

	var out startResponse
	if err := c.do(ctx, "start", http.MethodPost, pathStart, req, &out); err != nil {
		return "", nil, err
	}
	if out.Session.SessionID == "" {
		return "", nil, errors.New("start response has no session id")
	}
	roster := out.Session.StudentList
	if roster == nil {
		roster = []attendance.Student{}
	}
	return out.Session.SessionID, roster, nil
}

type markRequest struct {
	SessionID      string              `json:"sessionId"`
	FacultyID      string              `json:"facultyId"`
	AttendanceData []attendance.Record `json:"attendanceData"`
}

// FinalizeSession sends the complete record set for a session.
func (c *Client) FinalizeSession(ctx context.Context, sessionID, facultyID string, records []attendance.Record) error {
	if records == nil {
		records = []attendance.Record{}
	}
	return c.do(ctx, "mark", http.MethodPost, pathMark, markRequest{
		SessionID:      sessionID,
		FacultyID:      facultyID,
		AttendanceData: records,
	}, nil)
}

// Schedule is a faculty member's weekly timetable with the backend's
// display counters.
type Schedule struct {
	Timetable     []schedule.Slot `json:"timetable"`
	WeeklyHours   int             `json:"weeklyHours"`
	TotalSubjects int             `json:"totalSubjects"`
}

type scheduleRow struct {
	Time        string `json:"time"`
	Period      int    `json:"period"`
	SubjectCode string `json:"subjectCode"`
	SubjectName string `json:"subjectName"`
	ClassRoomID string `json:"classRoomID"`
	Room        string `json:"room"`
	Branch      string `json:"branch"`
	Section     string `json:"section"`
	Semester    int    `json:"semester"`
	Type        string `json:"type"`
	GroupNumber *int   `json:"groupNumber"`
}

type scheduleResponse struct {
	Timetable []struct {
		Day      string        `json:"day"`
		Schedule []scheduleRow `json:"schedule"`
	} `json:"timetable"`
	WeeklyHours   int `json:"weeklyHours"`
	TotalSubjects int `json:"totalSubjects"`
}

// FacultySchedule fetches and flattens the weekly timetable. Rows without a
// period number are numbered by their position in the day.
func (c *Client) FacultySchedule(ctx context.Context, facultyID string) (Schedule, error) {
	if facultyID == "" {
		return Schedule{}, errors.New("faculty id required")
	}
	var out scheduleResponse
	path := pathSchedule + "?facultyId=" + url.QueryEscape(facultyID)
	if err := c.do(ctx, "schedule", http.MethodGet, path, nil, &out); err != nil {
		return Schedule{}, err
	}

	sched := Schedule{WeeklyHours: out.WeeklyHours, TotalSubjects: out.TotalSubjects, Timetable: []schedule.Slot{}}
	for _, day := range out.Timetable {
		for i, row := range day.Schedule {
			slot := schedule.Slot{
				Day:         day.Day,
				Period:      row.Period,
				SubjectCode: row.SubjectCode,
				SubjectName: row.SubjectName,
				Room:        row.ClassRoomID,
				Branch:      row.Branch,
				Section:     row.Section,
				Semester:    row.Semester,
				Type:        schedule.ClassType(strings.ToLower(row.Type)),
				GroupNumber: row.GroupNumber,
				Time:        row.Time,
			}
			if slot.Period == 0 {
				slot.Period = i + 1
			}
			if slot.Room == "" {
				slot.Room = row.Room
			}
			if slot.Type == "" {
				slot.Type = schedule.Lecture
				if slot.GroupNumber != nil {
					slot.Type = schedule.Lab
				}
			}
			sched.Timetable = append(sched.Timetable, slot)
		}
	}
	return sched, nil
}

// Health reports whether the backend answers at all.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrap(err, "backend unavailable")
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.BackendRequests.WithLabelValues(endpoint, result).Observe(time.Since(start).Seconds())
		if err != nil {
			c.log.Warn("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		}
	}()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrapf(err, "backend %s request failed", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", endpoint)
	}
	return nil
}
