// Package metrics holds the Prometheus collectors shared by the attendance engines.
// A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Validation results recorded by QRValidated.
const (
	ResultOK          = "ok"
	ResultNotFound    = "not_found"
	ResultAlreadyUsed = "already_used"
	ResultExpired     = "expired"
	ResultError       = "error"
)

// Login session removal reasons.
const (
	ReasonLogout  = "logout"
	ReasonExpired = "expired"
)

type Metrics struct {
	qrIssued         prometheus.Counter
	qrValidations    *prometheus.CounterVec
	qrSwept          prometheus.Counter
	loginsCreated    prometheus.Counter
	loginsRemoved    *prometheus.CounterVec
	attendanceMarked *prometheus.CounterVec
}

// New creates the collectors and registers them with reg (skipped when reg is nil).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		qrIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "qr_sessions_issued_total",
			Help:      "QR attendance sessions created.",
		}),
		qrValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "qr_validations_total",
			Help:      "QR token validations by result.",
		}, []string{"result"}),
		qrSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "qr_sessions_swept_total",
			Help:      "Expired QR sessions deleted by cleanup.",
		}),
		loginsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "login_sessions_created_total",
			Help:      "Login sessions created.",
		}),
		loginsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "login_sessions_removed_total",
			Help:      "Login sessions removed by reason.",
		}, []string{"reason"}),
		attendanceMarked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "records_marked_total",
			Help:      "Attendance records appended by method.",
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.qrIssued, m.qrValidations, m.qrSwept, m.loginsCreated, m.loginsRemoved, m.attendanceMarked)
	}
	return m
}

func (m *Metrics) QRIssued() {
	if m == nil {
		return
	}
	m.qrIssued.Inc()
}

func (m *Metrics) QRValidated(result string) {
	if m == nil {
		return
	}
	m.qrValidations.WithLabelValues(result).Inc()
}

func (m *Metrics) QRSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.qrSwept.Add(float64(n))
}

func (m *Metrics) LoginCreated() {
	if m == nil {
		return
	}
	m.loginsCreated.Inc()
}

func (m *Metrics) LoginsRemoved(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.loginsRemoved.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) AttendanceMarked(method string) {
	if m == nil {
		return
	}
	m.attendanceMarked.WithLabelValues(method).Inc()
}
