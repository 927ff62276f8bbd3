package attendance

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/go-attendance/internal/errors"
	"github.com/jrsteele09/go-attendance/internal/metrics"
	"github.com/jrsteele09/go-attendance/qrsession"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Validator consumes a QR token on behalf of a student.
type Validator interface {
	ValidateAndConsume(token, consumerID string) (qrsession.SessionInfo, error)
}

var _ Validator = (*qrsession.Engine)(nil)

// Marker records attendance, by QR scan or by hand.
type Marker struct {
	validator Validator
	ledger    *Ledger
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

type MarkerOption func(*Marker)

func WithMarkerLogger(logger zerolog.Logger) MarkerOption {
	return func(m *Marker) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) MarkerOption {
	return func(m *Marker) {
		m.metrics = mt
	}
}

func NewMarker(validator Validator, ledger *Ledger, opts ...MarkerOption) *Marker {
	m := &Marker{
		validator: validator,
		ledger:    ledger,
		logger:    log.Logger.With().Str("component", "attendance").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MarkByQR consumes token for studentID and records them present for the class,
// subject and period it was issued for. Validation errors are returned unwrapped so
// callers can match qrsession.ErrNotFound, ErrAlreadyUsed and ErrExpired.
func (m *Marker) MarkByQR(token, studentID string) (Record, error) {
	// checked before the token is spent so a bad request never burns it
	if strings.TrimSpace(studentID) == "" {
		return Record{}, errors.Wrapf(ErrInvalidArgument, "student id is required")
	}

	info, err := m.validator.ValidateAndConsume(token, studentID)
	if err != nil {
		return Record{}, err
	}

	record, err := m.ledger.Append(Record{
		StudentID:    studentID,
		ClassLabel:   info.ClassLabel,
		SubjectLabel: info.SubjectLabel,
		PeriodLabel:  info.PeriodLabel,
		Status:       StatusPresent,
		MarkedBy:     info.IssuerID,
		Method:       MethodQR,
		QRToken:      token,
	})
	if err != nil {
		return Record{}, fmt.Errorf("record qr attendance: %w", err)
	}

	// the token is already spent, so a failed scan list write only costs the live view
	if err := m.ledger.AppendScan(token, ScanEntry{StudentID: studentID, RecordID: record.ID, Timestamp: record.MarkedAt}); err != nil {
		m.logger.Warn().Err(err).Str("token", token).Msg("scan list not updated")
	}

	m.metrics.AttendanceMarked(string(MethodQR))
	return record, nil
}

// MarkManual records r as entered by a teacher.
func (m *Marker) MarkManual(r Record) (Record, error) {
	r.Method = MethodManual
	r.QRToken = ""
	record, err := m.ledger.Append(r)
	if err != nil {
		return Record{}, err
	}
	m.metrics.AttendanceMarked(string(MethodManual))
	return record, nil
}
