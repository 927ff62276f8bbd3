package metrics_test

import (
	"strings"
	"testing"

	"github.com/jrsteele09/go-attendance/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.QRIssued()
	m.QRValidated(metrics.ResultOK)
	m.QRSwept(3)
	m.LoginCreated()
	m.LoginsRemoved(metrics.ReasonLogout, 1)
	m.AttendanceMarked("qr")
}

func TestCountersRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.QRIssued()
	m.QRValidated(metrics.ResultOK)
	m.QRValidated(metrics.ResultAlreadyUsed)
	m.QRSwept(2)
	m.QRSwept(0)
	m.LoginsRemoved(metrics.ReasonExpired, 3)

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	// one series per plain counter, one per observed label value
	require.Equal(t, 6, count)

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP attendance_qr_sessions_swept_total Expired QR sessions deleted by cleanup.
# TYPE attendance_qr_sessions_swept_total counter
attendance_qr_sessions_swept_total 2
`), "attendance_qr_sessions_swept_total"))
}
