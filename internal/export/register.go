// Package export writes committed sessions as spreadsheet attendance registers.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"facultyportal/internal/attendance"
)

const sheetName = "Attendance"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName is <date>_<subject>_<branch>-<section>_<sessionId>.xlsx with
// anything outside [A-Za-z0-9._-] replaced.
func FileName(r attendance.Receipt) string {
	parts := []string{
		r.Date.Format("2006-01-02"),
		r.Slot.SubjectCode,
		r.Slot.Branch + "-" + r.Slot.Section,
		r.SessionID,
	}
	for i, p := range parts {
		parts[i] = strings.Trim(unsafeChars.ReplaceAllString(p, "-"), "-")
	}
	return strings.Join(parts, "_") + ".xlsx"
}

// Build lays the register out as a header block, one row per roster student
// in roster order, and a totals block.
func Build(r attendance.Receipt) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := fill(f, r); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func fill(f *excelize.File, r attendance.Receipt) error {
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	subject := r.Slot.SubjectCode
	if r.Slot.SubjectName != "" {
		subject += " " + r.Slot.SubjectName
	}
	class := fmt.Sprintf("%s-%s, semester %d, period %d", r.Slot.Branch, r.Slot.Section, r.Slot.Semester, r.Slot.Period)
	if r.Slot.IsLab() {
		class += fmt.Sprintf(", group %d", r.Slot.Group())
	}
	header := [][2]any{
		{"Subject", subject},
		{"Class", class},
		{"Date", r.Date.Format("2006-01-02")},
		{"Faculty", r.FacultyID},
		{"Session", r.SessionID},
	}
	for i, kv := range header {
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", i+1), &[]any{kv[0], kv[1]}); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	tableTop := len(header) + 2
	if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", tableTop), &[]any{"#", "Enrollment No", "Name", "Status"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, fmt.Sprintf("A%d", tableTop), fmt.Sprintf("D%d", tableTop), bold); err != nil {
		return err
	}

	status := make(map[string]attendance.Status, len(r.Records))
	for _, rec := range r.Records {
		status[rec.UID] = rec.Status
	}
	row := tableTop + 1
	for i, s := range r.Roster {
		st, ok := status[s.UID]
		if !ok {
			st = attendance.Unmarked
		}
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", row), &[]any{i + 1, s.EnrollmentNo, s.Name, string(st)}); err != nil {
			return err
		}
		row++
	}

	row++
	totals := [][2]any{
		{"Present", r.Tally.Present},
		{"Absent", r.Tally.Absent},
		{"Unmarked", r.Tally.Unmarked},
		{"Total", r.Tally.Total},
	}
	for _, kv := range totals {
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("C%d", row), &[]any{kv[0], kv[1]}); err != nil {
			return err
		}
		row++
	}
	if err := f.SetColWidth(sheetName, "B", "B", 16); err != nil {
		return err
	}
	return f.SetColWidth(sheetName, "C", "C", 28)
}

// Write streams the register for r to w.
func Write(w io.Writer, r attendance.Receipt) error {
	f, err := Build(r)
	if err != nil {
		return errors.Wrap(err, "build register")
	}
	defer f.Close()
	return errors.Wrap(f.Write(w), "write register")
}

// WriteRegister saves the register under dir and returns its path. Writing
// the same receipt twice replaces the file.
func WriteRegister(dir string, r attendance.Receipt) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create export dir")
	}
	f, err := Build(r)
	if err != nil {
		return "", errors.Wrap(err, "build register")
	}
	defer f.Close()

	tmp, err := os.CreateTemp(dir, ".register-*")
	if err != nil {
		return "", errors.Wrap(err, "create temp register")
	}
	defer os.Remove(tmp.Name())
	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "write register")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "close register")
	}
	path := filepath.Join(dir, FileName(r))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.Wrap(err, "rename register")
	}
	return path, nil
}
