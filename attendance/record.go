package attendance

import "time"

// DateLayout is the format of Record.Date.
const DateLayout = "2006-01-02"

type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	}
	return false
}

type Method string

const (
	MethodQR     Method = "qr"
	MethodManual Method = "manual"
)

// Record is one row of the attendance ledger.
type Record struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"studentId"`
	ClassLabel   string    `json:"class"`
	SubjectLabel string    `json:"subject"`
	PeriodLabel  string    `json:"period,omitempty"`
	Date         string    `json:"date"`
	Status       Status    `json:"status"`
	MarkedBy     string    `json:"markedBy"`
	MarkedAt     time.Time `json:"markedAt"`
	Method       Method    `json:"method"`
	QRToken      string    `json:"qrToken,omitempty"`
}

// ScanEntry is one line of a QR session's live scan list.
type ScanEntry struct {
	StudentID string    `json:"studentId"`
	RecordID  string    `json:"recordId"`
	Timestamp time.Time `json:"timestamp"`
}

// Filter selects ledger records. Empty fields match everything; DateFrom and
// DateTo are inclusive YYYY-MM-DD bounds.
type Filter struct {
	StudentID    string
	ClassLabel   string
	SubjectLabel string
	DateFrom     string
	DateTo       string
	Status       Status
}

func (f Filter) match(r Record) bool {
	switch {
	case f.StudentID != "" && r.StudentID != f.StudentID:
		return false
	case f.ClassLabel != "" && r.ClassLabel != f.ClassLabel:
		return false
	case f.SubjectLabel != "" && r.SubjectLabel != f.SubjectLabel:
		return false
	case f.DateFrom != "" && r.Date < f.DateFrom:
		return false
	case f.DateTo != "" && r.Date > f.DateTo:
		return false
	case f.Status != "" && r.Status != f.Status:
		return false
	}
	return true
}
