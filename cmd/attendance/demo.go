package main

import (
	"fmt"

	"github.com/jrsteele09/go-attendance/attendance"
	"github.com/jrsteele09/go-attendance/auth"
	"github.com/jrsteele09/go-attendance/internal/errors"
	"github.com/jrsteele09/go-attendance/qrsession"
	"github.com/jrsteele09/go-attendance/users"
)

// runDemo plays one lesson: a teacher and a student log in from separate tabs, the
// teacher issues a code, the student scans it and a second scan is refused.
func runDemo(a *app) error {
	teacherTab, err := auth.NewLoginService(a.users, a.newTab())
	if err != nil {
		return err
	}
	studentTab, err := auth.NewLoginService(a.users, a.newTab())
	if err != nil {
		return err
	}

	teacher, _, err := teacherTab.Login("teacher1", "teacher123", users.RoleTeacher, "")
	if err != nil {
		return fmt.Errorf("teacher login: %w", err)
	}
	student, _, err := studentTab.Login("student1", "student123", users.RoleStudent, "")
	if err != nil {
		return fmt.Errorf("student login: %w", err)
	}

	payload, err := a.engine.CreateSession(teacher.ID, teacher.Name, "10A", "Mathematics", "Period 1")
	if err != nil {
		return err
	}
	stopWatch, err := a.ledger.WatchScans(payload.Token, func(scans []attendance.ScanEntry) {
		a.logger.Info().Str("token", payload.Token).Int("scans", len(scans)).Msg("scan list updated")
	})
	if err != nil {
		return err
	}
	defer stopWatch()

	record, err := a.marker.MarkByQR(payload.Token, student.AttendanceID())
	if err != nil {
		return fmt.Errorf("first scan: %w", err)
	}
	a.logger.Info().Str("record", record.ID).Str("student", record.StudentID).Msg("student marked present")

	if _, err := a.marker.MarkByQR(payload.Token, student.AttendanceID()); !errors.Is(err, qrsession.ErrAlreadyUsed) {
		return fmt.Errorf("second scan: expected already used, got %v", err)
	}
	a.logger.Info().Msg("second scan refused")

	pct, err := a.ledger.Percentage(student.AttendanceID(), "", "")
	if err != nil {
		return err
	}
	a.logger.Info().Str("student", student.AttendanceID()).Int("percentage", pct).Msg("attendance")

	report, err := a.ledger.MonthlyReport(record.ClassLabel, record.Date[:7])
	if err != nil {
		return err
	}
	a.logger.Info().Str("class", report.ClassLabel).Str("month", report.Month).Int("days", report.Days).
		Int("students", len(report.Students)).Msg("monthly report")

	if err := checkLowAttendance(a); err != nil {
		return err
	}

	resumed, err := a.engine.ResumeLatest(teacher.ID)
	if err != nil {
		return err
	}
	if err := a.engine.Stop(resumed.Token); err != nil {
		return err
	}
	a.logger.Info().Str("token", resumed.Token).Msg("qr session stopped")

	if err := studentTab.Logout(); err != nil {
		return err
	}
	return teacherTab.Logout()
}

// checkLowAttendance warns every student below the configured threshold.
func checkLowAttendance(a *app) error {
	students, err := a.users.List(users.RoleStudent)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.AttendanceID())
	}
	raised, err := a.ledger.CheckLowAttendance(ids, a.cfg.GetAttendanceThreshold())
	if err != nil {
		return err
	}
	for _, n := range raised {
		a.logger.Warn().Str("student", n.StudentID).Msg(n.Message)
	}
	return nil
}
