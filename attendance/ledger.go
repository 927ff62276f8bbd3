// Package attendance keeps the attendance ledger and turns consumed QR tokens into
// attendance records.
package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-attendance/internal/errors"
	"github.com/jrsteele09/go-attendance/kvstore"
	"github.com/jrsteele09/go-attendance/qrsession"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// StorageKey is the durable store key holding every attendance record.
	StorageKey = "attendance_data"

	// ScanIndexKey lists every token that has a scan list, so lists can be swept.
	ScanIndexKey = "qr_attendance_index"

	scanKeyPrefix = "qr_attendance_"
	recordPrefix  = "att_"
)

var ErrInvalidArgument = errors.ErrInvalidArgument

// ScanKey is the durable store key of token's scan list.
func ScanKey(token string) string {
	return scanKeyPrefix + token
}

// Ledger is the attendance record store.
type Ledger struct {
	store   kvstore.Store
	nowTime func() time.Time
	newID   func() string
	logger  zerolog.Logger
}

type LedgerOption func(*Ledger)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.nowTime = nowFunc
	}
}

// WithIDGenerator replaces the record id generator (primarily for testing)
func WithIDGenerator(gen func() string) LedgerOption {
	return func(l *Ledger) {
		l.newID = gen
	}
}

func WithLedgerLogger(logger zerolog.Logger) LedgerOption {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func NewLedger(store kvstore.Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:   store,
		nowTime: time.Now,
		newID:   func() string { return recordPrefix + uuid.NewString() },
		logger:  log.Logger.With().Str("component", "attendance").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append stores r with a fresh ID and MarkedAt. Date defaults to the day it was
// marked, Status to present and Method to manual.
func (l *Ledger) Append(r Record) (Record, error) {
	if strings.TrimSpace(r.StudentID) == "" {
		return Record{}, errors.Wrapf(ErrInvalidArgument, "student id is required")
	}
	if r.Status == "" {
		r.Status = StatusPresent
	}
	if !r.Status.Valid() {
		return Record{}, errors.Wrapf(ErrInvalidArgument, "status %q", r.Status)
	}
	if r.Method == "" {
		r.Method = MethodManual
	}

	now := l.nowTime().UTC()
	if r.Date == "" {
		r.Date = now.Format(DateLayout)
	} else if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return Record{}, errors.Wrapf(ErrInvalidArgument, "date %q", r.Date)
	}
	r.ID = l.newID()
	r.MarkedAt = now

	err := kvstore.WithLatest(l.store, StorageKey, func(cur string, _ bool) (string, bool, error) {
		records := l.decode(cur)
		next, err := kvstore.EncodeJSON(append(records, r))
		return next, true, err
	})
	if err != nil {
		return Record{}, fmt.Errorf("append attendance record: %w", err)
	}

	l.logger.Info().Str("record", r.ID).Str("student", r.StudentID).Str("class", r.ClassLabel).
		Str("subject", r.SubjectLabel).Str("status", string(r.Status)).Str("method", string(r.Method)).Msg("attendance marked")
	return r, nil
}

// Filter returns the matching records in the order they were appended.
func (l *Ledger) Filter(f Filter) ([]Record, error) {
	raw, _, err := l.store.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load attendance records: %w", err)
	}
	matched := make([]Record, 0)
	for _, r := range l.decode(raw) {
		if f.match(r) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// Percentage is the rounded share of studentID's records marked present, optionally
// narrowed to one subject and class. A student without records scores 0.
func (l *Ledger) Percentage(studentID, subject, class string) (int, error) {
	records, err := l.Filter(Filter{StudentID: studentID, SubjectLabel: subject, ClassLabel: class})
	if err != nil {
		return 0, err
	}
	return presentShare(records), nil
}

// AppendScan adds entry to token's scan list.
func (l *Ledger) AppendScan(token string, entry ScanEntry) error {
	err := l.updateScanIndex(func(tokens []string) ([]string, bool) {
		for _, t := range tokens {
			if t == token {
				return tokens, false
			}
		}
		return append(tokens, token), true
	})
	if err != nil {
		return fmt.Errorf("index scan list for %s: %w", token, err)
	}

	key := ScanKey(token)
	err = kvstore.WithLatest(l.store, key, func(cur string, _ bool) (string, bool, error) {
		next, err := kvstore.EncodeJSON(append(l.decodeScans(key, cur), entry))
		return next, true, err
	})
	if err != nil {
		return fmt.Errorf("append scan for %s: %w", token, err)
	}
	return nil
}

// ScanList returns who has scanned token so far, in scan order.
func (l *Ledger) ScanList(token string) ([]ScanEntry, error) {
	key := ScanKey(token)
	raw, _, err := l.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("load scans for %s: %w", token, err)
	}
	return l.decodeScans(key, raw), nil
}

// WatchScans calls fn with the full scan list every time token's list changes, until
// the returned function is called. The store must implement kvstore.Notifier.
func (l *Ledger) WatchScans(token string, fn func([]ScanEntry)) (func(), error) {
	n, ok := l.store.(kvstore.Notifier)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidArgument, "store does not publish changes")
	}
	key := ScanKey(token)
	return n.Subscribe(func(c kvstore.Change) {
		if c.Key != key {
			return
		}
		if c.Removed {
			fn([]ScanEntry{})
			return
		}
		fn(l.decodeScans(key, c.NewValue))
	}), nil
}

// SessionLookup tells the ledger whether a QR session still exists.
type SessionLookup interface {
	Get(token string) (qrsession.Session, error)
}

var _ SessionLookup = (*qrsession.Engine)(nil)

// SweepScanLists removes the scan lists of tokens whose session has been deleted
// and reports how many went.
func (l *Ledger) SweepScanLists(sessions SessionLookup) (int, error) {
	raw, _, err := l.store.Get(ScanIndexKey)
	if err != nil {
		return 0, fmt.Errorf("load scan index: %w", err)
	}

	gone := make(map[string]bool)
	for _, token := range l.decodeScanIndex(raw) {
		_, err := sessions.Get(token)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, qrsession.ErrNotFound):
			return 0, fmt.Errorf("look up %s: %w", token, err)
		}
		if err := l.store.Remove(ScanKey(token)); err != nil {
			return 0, fmt.Errorf("remove scans for %s: %w", token, err)
		}
		gone[token] = true
	}
	if len(gone) == 0 {
		return 0, nil
	}

	err = l.updateScanIndex(func(tokens []string) ([]string, bool) {
		kept := make([]string, 0, len(tokens))
		for _, t := range tokens {
			if !gone[t] {
				kept = append(kept, t)
			}
		}
		return kept, len(kept) != len(tokens)
	})
	if err != nil {
		return 0, fmt.Errorf("update scan index: %w", err)
	}
	l.logger.Debug().Int("removed", len(gone)).Msg("scan lists swept")
	return len(gone), nil
}

func (l *Ledger) updateScanIndex(fn func(tokens []string) ([]string, bool)) error {
	return kvstore.WithLatest(l.store, ScanIndexKey, func(cur string, _ bool) (string, bool, error) {
		next, write := fn(l.decodeScanIndex(cur))
		if !write {
			return "", false, nil
		}
		raw, err := kvstore.EncodeJSON(next)
		return raw, true, err
	})
}

func (l *Ledger) decodeScanIndex(raw string) []string {
	tokens, err := kvstore.DecodeJSON[[]string](ScanIndexKey, raw)
	if err != nil {
		l.logger.Warn().Err(err).Msg("scan index unreadable, treating as empty")
		return []string{}
	}
	if tokens == nil {
		return []string{}
	}
	return tokens
}

func (l *Ledger) decode(raw string) []Record {
	records, err := kvstore.DecodeJSON[[]Record](StorageKey, raw)
	if err != nil {
		l.logger.Warn().Err(err).Msg("attendance records unreadable, treating as empty")
		return []Record{}
	}
	if records == nil {
		return []Record{}
	}
	return records
}

func (l *Ledger) decodeScans(key, raw string) []ScanEntry {
	scans, err := kvstore.DecodeJSON[[]ScanEntry](key, raw)
	if err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("scan list unreadable, treating as empty")
		return []ScanEntry{}
	}
	if scans == nil {
		return []ScanEntry{}
	}
	return scans
}
