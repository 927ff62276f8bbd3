package attendance_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-attendance/attendance"
	"github.com/jrsteele09/go-attendance/internal/metrics"
	"github.com/jrsteele09/go-attendance/kvstore"
	"github.com/jrsteele09/go-attendance/qrsession"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testFixture struct {
	store   *kvstore.Memory
	clock   *clock
	engine  *qrsession.Engine
	ledger  *attendance.Ledger
	marker  *attendance.Marker
	metrics *metrics.Metrics
	reg     *prometheus.Registry
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		store: kvstore.NewMemory(),
		clock: &clock{now: t0},
		reg:   prometheus.NewRegistry(),
	}
	f.metrics = metrics.New(f.reg)

	var seq int
	f.engine = qrsession.NewEngine(f.store,
		qrsession.WithNowTime(f.clock.Now),
		qrsession.WithLogger(zerolog.Nop()),
		qrsession.WithMetrics(f.metrics),
	)
	f.ledger = attendance.NewLedger(f.store,
		attendance.WithNowTime(f.clock.Now),
		attendance.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("att_%d", seq)
		}),
		attendance.WithLedgerLogger(zerolog.Nop()),
	)
	f.marker = attendance.NewMarker(f.engine, f.ledger,
		attendance.WithMarkerLogger(zerolog.Nop()),
		attendance.WithMetrics(f.metrics),
	)
	return f
}

func requireMarked(t *testing.T, reg *prometheus.Registry, series string) {
	t.Helper()
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP attendance_records_marked_total Attendance records appended by method.
# TYPE attendance_records_marked_total counter
`+series+"\n"), "attendance_records_marked_total"))
}

func TestMarkByQR(t *testing.T) {
	f := setupTestFixture(t)

	payload, err := f.engine.CreateSession("2", "John Smith", "10A", "Mathematics", "P1")
	require.NoError(t, err)

	record, err := f.marker.MarkByQR(payload.Token, "S001")
	require.NoError(t, err)
	require.Equal(t, "att_1", record.ID)
	require.Equal(t, "S001", record.StudentID)
	require.Equal(t, "10A", record.ClassLabel)
	require.Equal(t, "Mathematics", record.SubjectLabel)
	require.Equal(t, "P1", record.PeriodLabel)
	require.Equal(t, "2024-03-04", record.Date)
	require.Equal(t, attendance.StatusPresent, record.Status)
	require.Equal(t, attendance.MethodQR, record.Method)
	require.Equal(t, "2", record.MarkedBy)
	require.Equal(t, payload.Token, record.QRToken)
	require.True(t, record.MarkedAt.Equal(t0))

	records, err := f.ledger.Filter(attendance.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	scans, err := f.ledger.ScanList(payload.Token)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	require.Equal(t, "S001", scans[0].StudentID)
	require.Equal(t, "att_1", scans[0].RecordID)
	require.True(t, scans[0].Timestamp.Equal(t0))

	requireMarked(t, f.reg, `attendance_records_marked_total{method="qr"} 1`)
}

func TestMarkByQRRejections(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.marker.MarkByQR("qrt_missing", "S001")
	require.ErrorIs(t, err, qrsession.ErrNotFound)

	payload, err := f.engine.CreateSession("2", "John Smith", "10A", "Mathematics", "")
	require.NoError(t, err)
	_, err = f.marker.MarkByQR(payload.Token, "S001")
	require.NoError(t, err)

	_, err = f.marker.MarkByQR(payload.Token, "S002")
	require.ErrorIs(t, err, qrsession.ErrAlreadyUsed)

	expiring, err := f.engine.CreateSession("2", "John Smith", "10B", "Science", "")
	require.NoError(t, err)
	f.clock.Advance(qrsession.DefaultValidity)
	_, err = f.marker.MarkByQR(expiring.Token, "S002")
	require.ErrorIs(t, err, qrsession.ErrExpired)

	records, err := f.ledger.Filter(attendance.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1, "rejected scans must not reach the ledger")

	scans, err := f.ledger.ScanList(expiring.Token)
	require.NoError(t, err)
	require.Empty(t, scans)
}

func TestMarkByQRBlankStudentKeepsToken(t *testing.T) {
	f := setupTestFixture(t)

	payload, err := f.engine.CreateSession("2", "John Smith", "10A", "Mathematics", "")
	require.NoError(t, err)

	for _, student := range []string{"", "   "} {
		_, err = f.marker.MarkByQR(payload.Token, student)
		require.ErrorIs(t, err, attendance.ErrInvalidArgument)
	}

	s, err := f.engine.Get(payload.Token)
	require.NoError(t, err)
	require.False(t, s.Used)

	records, err := f.ledger.Filter(attendance.Filter{})
	require.NoError(t, err)
	require.Empty(t, records)

	record, err := f.marker.MarkByQR(payload.Token, "S001")
	require.NoError(t, err)
	require.Equal(t, "S001", record.StudentID)
}

func TestMarkManual(t *testing.T) {
	f := setupTestFixture(t)

	record, err := f.marker.MarkManual(attendance.Record{
		StudentID:    "S002",
		ClassLabel:   "10A",
		SubjectLabel: "English",
		Date:         "2024-03-01",
		Status:       attendance.StatusLate,
		MarkedBy:     "teacher1",
		QRToken:      "qrt_ignored",
	})
	require.NoError(t, err)
	require.Equal(t, attendance.MethodManual, record.Method)
	require.Empty(t, record.QRToken)
	require.Equal(t, "2024-03-01", record.Date)
	requireMarked(t, f.reg, `attendance_records_marked_total{method="manual"} 1`)
}

func TestAppendValidation(t *testing.T) {
	f := setupTestFixture(t)

	tests := []struct {
		name   string
		record attendance.Record
	}{
		{name: "missing student", record: attendance.Record{ClassLabel: "10A"}},
		{name: "bad status", record: attendance.Record{StudentID: "S001", Status: "excused"}},
		{name: "bad date", record: attendance.Record{StudentID: "S001", Date: "04/03/2024"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.Append(tt.record)
			require.ErrorIs(t, err, attendance.ErrInvalidArgument)
		})
	}

	records, err := f.ledger.Filter(attendance.Filter{})
	require.NoError(t, err)
	require.Empty(t, records)
}

func seedLedger(t *testing.T, l *attendance.Ledger) {
	t.Helper()
	rows := []attendance.Record{
		{StudentID: "S001", ClassLabel: "10A", SubjectLabel: "Mathematics", Date: "2024-03-01", Status: attendance.StatusPresent},
		{StudentID: "S001", ClassLabel: "10A", SubjectLabel: "Mathematics", Date: "2024-03-02", Status: attendance.StatusAbsent},
		{StudentID: "S001", ClassLabel: "10A", SubjectLabel: "Science", Date: "2024-03-02", Status: attendance.StatusPresent},
		{StudentID: "S001", ClassLabel: "10A", SubjectLabel: "Mathematics", Date: "2024-03-03", Status: attendance.StatusLate},
		{StudentID: "S002", ClassLabel: "10B", SubjectLabel: "Mathematics", Date: "2024-03-03", Status: attendance.StatusPresent},
	}
	for _, r := range rows {
		_, err := l.Append(r)
		require.NoError(t, err)
	}
}

func TestFilter(t *testing.T) {
	f := setupTestFixture(t)
	seedLedger(t, f.ledger)

	tests := []struct {
		name   string
		filter attendance.Filter
		want   []string
	}{
		{name: "all", filter: attendance.Filter{}, want: []string{"att_1", "att_2", "att_3", "att_4", "att_5"}},
		{name: "student", filter: attendance.Filter{StudentID: "S002"}, want: []string{"att_5"}},
		{name: "class", filter: attendance.Filter{ClassLabel: "10A"}, want: []string{"att_1", "att_2", "att_3", "att_4"}},
		{name: "subject", filter: attendance.Filter{SubjectLabel: "Science"}, want: []string{"att_3"}},
		{name: "status", filter: attendance.Filter{Status: attendance.StatusAbsent}, want: []string{"att_2"}},
		{name: "date range inclusive", filter: attendance.Filter{DateFrom: "2024-03-02", DateTo: "2024-03-02"}, want: []string{"att_2", "att_3"}},
		{name: "from only", filter: attendance.Filter{DateFrom: "2024-03-03"}, want: []string{"att_4", "att_5"}},
		{name: "no match", filter: attendance.Filter{StudentID: "S009"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := f.ledger.Filter(tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(records))
			for _, r := range records {
				ids = append(ids, r.ID)
			}
			require.Equal(t, tt.want, ids)
		})
	}
}

func TestPercentage(t *testing.T) {
	f := setupTestFixture(t)
	seedLedger(t, f.ledger)

	tests := []struct {
		name    string
		student string
		subject string
		class   string
		want    int
	}{
		{name: "overall", student: "S001", want: 50},
		{name: "by subject", student: "S001", subject: "Mathematics", want: 33},
		{name: "by subject and class", student: "S001", subject: "Science", class: "10A", want: 100},
		{name: "other class", student: "S001", class: "10B", want: 0},
		{name: "no records", student: "S404", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.ledger.Percentage(tt.student, tt.subject, tt.class)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestWatchScans(t *testing.T) {
	f := setupTestFixture(t)

	payload, err := f.engine.CreateSession("2", "John Smith", "10A", "Mathematics", "")
	require.NoError(t, err)

	var seen [][]attendance.ScanEntry
	stop, err := f.ledger.WatchScans(payload.Token, func(scans []attendance.ScanEntry) {
		seen = append(seen, scans)
	})
	require.NoError(t, err)

	_, err = f.marker.MarkByQR(payload.Token, "S001")
	require.NoError(t, err)
	require.Len(t, seen, 1)
	require.Len(t, seen[0], 1)
	require.Equal(t, "S001", seen[0][0].StudentID)

	// writes to other keys are not reported
	_, err = f.ledger.Append(attendance.Record{StudentID: "S002"})
	require.NoError(t, err)
	require.Len(t, seen, 1)

	stop()
	require.NoError(t, f.ledger.AppendScan(payload.Token, attendance.ScanEntry{StudentID: "S003"}))
	require.Len(t, seen, 1)
}

type plainStore struct{ kv map[string]string }

func (p *plainStore) Get(key string) (string, bool, error) {
	v, ok := p.kv[key]
	return v, ok, nil
}

func (p *plainStore) Set(key, value string) error {
	p.kv[key] = value
	return nil
}

func (p *plainStore) Remove(key string) error {
	delete(p.kv, key)
	return nil
}

func TestWatchScansNeedsNotifier(t *testing.T) {
	l := attendance.NewLedger(&plainStore{kv: map[string]string{}}, attendance.WithLedgerLogger(zerolog.Nop()))
	_, err := l.WatchScans("qrt_x", func([]attendance.ScanEntry) {})
	require.ErrorIs(t, err, attendance.ErrInvalidArgument)
}

func TestCorruptLedgerTreatedAsEmpty(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Set(attendance.StorageKey, "{not json"))
	require.NoError(t, f.store.Set(attendance.ScanKey("qrt_x"), "[oops"))

	records, err := f.ledger.Filter(attendance.Filter{})
	require.NoError(t, err)
	require.Empty(t, records)

	scans, err := f.ledger.ScanList("qrt_x")
	require.NoError(t, err)
	require.Empty(t, scans)

	_, err = f.ledger.Append(attendance.Record{StudentID: "S001"})
	require.NoError(t, err)
	raw, _, err := f.store.Get(attendance.StorageKey)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, "[{"))
}
