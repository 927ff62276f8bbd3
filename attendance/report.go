package attendance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jrsteele09/go-attendance/internal/errors"
	"github.com/jrsteele09/go-attendance/kvstore"
)

const (
	// NotificationsKey holds every low attendance warning ever raised.
	NotificationsKey = "attendance_notifications"

	NotificationWarning = "warning"
)

// StudentStats is one student's line of a monthly report.
type StudentStats struct {
	StudentID  string `json:"studentId"`
	Present    int    `json:"present"`
	Late       int    `json:"late"`
	Absent     int    `json:"absent"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
}

// MonthlyReport summarises one class for one YYYY-MM month.
type MonthlyReport struct {
	ClassLabel string         `json:"class"`
	Month      string         `json:"month"`
	Days       int            `json:"days"`
	Students   []StudentStats `json:"students"`
}

type Notification struct {
	StudentID string    `json:"studentId"`
	Message   string    `json:"message"`
	Date      time.Time `json:"date"`
	Type      string    `json:"type"`
}

// MonthlyReport counts each student's records for class in yearMonth (YYYY-MM).
// Days is the number of distinct dates with at least one record. Students are
// ordered by id.
func (l *Ledger) MonthlyReport(class, yearMonth string) (MonthlyReport, error) {
	month, err := time.Parse("2006-01", yearMonth)
	if err != nil {
		return MonthlyReport{}, errors.Wrapf(ErrInvalidArgument, "month %q", yearMonth)
	}
	records, err := l.Filter(Filter{
		ClassLabel: class,
		DateFrom:   month.Format(DateLayout),
		DateTo:     month.AddDate(0, 1, -1).Format(DateLayout),
	})
	if err != nil {
		return MonthlyReport{}, err
	}

	days := make(map[string]struct{})
	byStudent := make(map[string]*StudentStats)
	for _, r := range records {
		days[r.Date] = struct{}{}
		stats, ok := byStudent[r.StudentID]
		if !ok {
			stats = &StudentStats{StudentID: r.StudentID}
			byStudent[r.StudentID] = stats
		}
		stats.Total++
		switch r.Status {
		case StatusPresent:
			stats.Present++
		case StatusLate:
			stats.Late++
		default:
			stats.Absent++
		}
	}

	report := MonthlyReport{ClassLabel: class, Month: yearMonth, Days: len(days), Students: make([]StudentStats, 0, len(byStudent))}
	for _, stats := range byStudent {
		stats.Percentage = percent(stats.Present, stats.Total)
		report.Students = append(report.Students, *stats)
	}
	sort.Slice(report.Students, func(i, j int) bool {
		return report.Students[i].StudentID < report.Students[j].StudentID
	})
	return report, nil
}

// CheckLowAttendance raises a warning for every student in studentIDs whose overall
// percentage is below threshold, stores the warnings and returns them. Students
// without any records are skipped.
func (l *Ledger) CheckLowAttendance(studentIDs []string, threshold int) ([]Notification, error) {
	now := l.nowTime().UTC()
	raised := make([]Notification, 0)
	for _, id := range studentIDs {
		records, err := l.Filter(Filter{StudentID: id})
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			continue
		}
		pct := presentShare(records)
		if pct >= threshold {
			continue
		}
		raised = append(raised, Notification{
			StudentID: id,
			Message:   fmt.Sprintf("Your attendance is %d%%, which is below the required %d%%", pct, threshold),
			Date:      now,
			Type:      NotificationWarning,
		})
	}
	if len(raised) == 0 {
		return raised, nil
	}

	err := kvstore.WithLatest(l.store, NotificationsKey, func(cur string, _ bool) (string, bool, error) {
		next, err := kvstore.EncodeJSON(append(l.decodeNotifications(cur), raised...))
		return next, true, err
	})
	if err != nil {
		return nil, fmt.Errorf("store notifications: %w", err)
	}
	l.logger.Info().Int("students", len(raised)).Int("threshold", threshold).Msg("low attendance warnings raised")
	return raised, nil
}

// StudentNotifications returns studentID's warnings, oldest first.
func (l *Ledger) StudentNotifications(studentID string) ([]Notification, error) {
	raw, _, err := l.store.Get(NotificationsKey)
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	mine := make([]Notification, 0)
	for _, n := range l.decodeNotifications(raw) {
		if n.StudentID == studentID {
			mine = append(mine, n)
		}
	}
	return mine, nil
}

func (l *Ledger) decodeNotifications(raw string) []Notification {
	list, err := kvstore.DecodeJSON[[]Notification](NotificationsKey, raw)
	if err != nil {
		l.logger.Warn().Err(err).Msg("notifications unreadable, treating as empty")
		return []Notification{}
	}
	if list == nil {
		return []Notification{}
	}
	return list
}

func presentShare(records []Record) int {
	present := 0
	for _, r := range records {
		if r.Status == StatusPresent {
			present++
		}
	}
	return percent(present, len(records))
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) * 100 / float64(total)))
}
