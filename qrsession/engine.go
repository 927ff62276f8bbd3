// Package qrsession issues one-time attendance tokens and guarantees each is
// consumed at most once within its validity window.
//
// Tokens live in the durable store under a single key holding a JSON object of
// token -> Session. Every operation re-reads that key; nothing is cached in memory,
// so several Engines (one per tab or process) can share a store.
package qrsession

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/go-attendance/internal/errors"
	"github.com/jrsteele09/go-attendance/internal/metrics"
	"github.com/jrsteele09/go-attendance/internal/utils"
	"github.com/jrsteele09/go-attendance/kvstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// StorageKey is the durable store key holding every QR session.
	StorageKey = "qr_sessions"

	DefaultValidity  = 15 * time.Minute
	DefaultRetention = time.Hour
)

// Engine is the QR attendance session engine.
type Engine struct {
	store     kvstore.Store
	nowTime   func() time.Time
	newToken  TokenGenerator
	validity  time.Duration
	retention time.Duration
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// Option modifies an Engine.
type Option func(*Engine)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(e *Engine) {
		e.nowTime = nowFunc
	}
}

// WithTokenGenerator replaces NewToken (primarily for testing)
func WithTokenGenerator(gen TokenGenerator) Option {
	return func(e *Engine) {
		e.newToken = gen
	}
}

func WithValidity(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.validity = d
		}
	}
}

func WithRetention(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.retention = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func NewEngine(store kvstore.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		nowTime:   time.Now,
		newToken:  NewToken,
		validity:  DefaultValidity,
		retention: DefaultRetention,
		logger:    log.Logger.With().Str("component", "qrsession").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateSession issues a new token bound to the class, subject and period labels.
// Empty class or subject labels fail with ErrInvalidArgument.
func (e *Engine) CreateSession(issuerID, issuerName, classLabel, subjectLabel, periodLabel string) (Payload, error) {
	if strings.TrimSpace(classLabel) == "" {
		return Payload{}, errors.Wrapf(ErrInvalidArgument, "class label is required")
	}
	if strings.TrimSpace(subjectLabel) == "" {
		return Payload{}, errors.Wrapf(ErrInvalidArgument, "subject label is required")
	}

	now := e.nowTime().UTC()
	token, err := e.newToken(now)
	if err != nil {
		return Payload{}, fmt.Errorf("generate token: %w", err)
	}

	session := Session{
		Token:        token,
		IssuerID:     issuerID,
		IssuerName:   issuerName,
		ClassLabel:   classLabel,
		SubjectLabel: subjectLabel,
		PeriodLabel:  periodLabel,
		CreatedAt:    now,
		ExpiresAt:    now.Add(e.validity),
	}

	err = kvstore.WithLatest(e.store, StorageKey, func(cur string, _ bool) (string, bool, error) {
		sessions, _ := e.decode(cur)
		if _, exists := sessions[token]; exists {
			return "", false, errors.Wrapf(errors.ErrConflict, "token %s already issued", token)
		}
		sessions[token] = session
		next, err := kvstore.EncodeJSON(sessions)
		return next, true, err
	})
	if err != nil {
		return Payload{}, fmt.Errorf("create qr session: %w", err)
	}

	if err := e.markActive(session); err != nil {
		e.logger.Warn().Err(err).Str("token", token).Msg("active qr session list not updated")
	}

	e.metrics.QRIssued()
	e.logger.Info().Str("token", token).Str("issuer", issuerID).Str("class", classLabel).
		Str("subject", subjectLabel).Time("expiresAt", session.ExpiresAt).Msg("qr session created")
	return session.payload(), nil
}

// ValidateAndConsume marks token as used by consumerID and returns what it was issued for.
//
// It fails with ErrNotFound for unknown tokens, ErrAlreadyUsed once a token has been
// consumed and ErrExpired from ExpiresAt onwards, checked in that order. Consumption
// is a conditional write when the store is Versioned, so concurrent callers racing on
// one token see exactly one success.
func (e *Engine) ValidateAndConsume(token, consumerID string) (SessionInfo, error) {
	if strings.TrimSpace(consumerID) == "" {
		return SessionInfo{}, errors.Wrapf(ErrInvalidArgument, "consumer id is required")
	}

	now := e.nowTime().UTC()
	var info SessionInfo
	err := kvstore.WithLatest(e.store, StorageKey, func(cur string, _ bool) (string, bool, error) {
		sessions, _ := e.decode(cur)
		s, ok := sessions[token]
		switch {
		case !ok:
			return "", false, errors.Wrapf(ErrNotFound, "qr token %q", token)
		case s.Used:
			return "", false, errors.Wrapf(ErrAlreadyUsed, "qr token %q", token)
		case !now.Before(s.ExpiresAt):
			return "", false, errors.Wrapf(ErrExpired, "qr token %q", token)
		}

		s.Used = true
		s.UsedBy = consumerID
		s.UsedAt = utils.TimePtrUTC(now)
		sessions[token] = s
		info = s.Info()

		next, err := kvstore.EncodeJSON(sessions)
		return next, true, err
	})

	e.metrics.QRValidated(result(err))
	if err != nil {
		e.logger.Debug().Err(err).Str("token", token).Str("consumer", consumerID).Msg("qr validation rejected")
		return SessionInfo{}, err
	}
	e.logger.Info().Str("token", token).Str("consumer", consumerID).Msg("qr session consumed")
	return info, nil
}

// CleanupExpired deletes sessions that expired more than the retention window ago
// and reports how many were removed. Sessions inside their validity window are
// never touched, used or not. Expired entries also leave the active list.
func (e *Engine) CleanupExpired() (int, error) {
	now := e.nowTime().UTC()
	cutoff := now.Add(-e.retention)

	var removed int
	err := kvstore.WithLatest(e.store, StorageKey, func(cur string, exists bool) (string, bool, error) {
		sessions, dirty := e.decode(cur)
		removed = 0
		for token, s := range sessions {
			if s.ExpiresAt.Before(cutoff) {
				delete(sessions, token)
				removed++
			}
		}
		if removed == 0 && !(dirty && exists) {
			return "", false, nil
		}
		next, err := kvstore.EncodeJSON(sessions)
		return next, true, err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup qr sessions: %w", err)
	}
	if err := e.pruneActive(now); err != nil {
		return removed, fmt.Errorf("cleanup active qr sessions: %w", err)
	}

	e.metrics.QRSwept(removed)
	return removed, nil
}

// ListActiveForIssuer returns the unused, unexpired sessions issued by issuerID,
// oldest first.
func (e *Engine) ListActiveForIssuer(issuerID string) ([]Session, error) {
	sessions, err := e.load()
	if err != nil {
		return nil, err
	}

	now := e.nowTime().UTC()
	active := make([]Session, 0)
	for _, s := range sessions {
		if s.IssuerID == issuerID && s.Consumable(now) {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].Token < active[j].Token
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

// Get returns the stored session for token, used or expired alike.
func (e *Engine) Get(token string) (Session, error) {
	sessions, err := e.load()
	if err != nil {
		return Session{}, err
	}
	s, ok := sessions[token]
	if !ok {
		return Session{}, errors.Wrapf(ErrNotFound, "qr token %q", token)
	}
	return s, nil
}

// Revoke deletes token so it can no longer be consumed, even inside its window.
func (e *Engine) Revoke(token string) error {
	err := kvstore.WithLatest(e.store, StorageKey, func(cur string, _ bool) (string, bool, error) {
		sessions, _ := e.decode(cur)
		if _, ok := sessions[token]; !ok {
			return "", false, errors.Wrapf(ErrNotFound, "qr token %q", token)
		}
		delete(sessions, token)
		next, err := kvstore.EncodeJSON(sessions)
		return next, true, err
	})
	if err != nil {
		return err
	}
	if err := e.updateActive(func(active map[string]ActiveEntry) (bool, error) {
		_, listed := active[token]
		delete(active, token)
		return listed, nil
	}); err != nil {
		e.logger.Warn().Err(err).Str("token", token).Msg("active qr session list not updated")
	}
	e.logger.Info().Str("token", token).Msg("qr session revoked")
	return nil
}

func (e *Engine) load() (map[string]Session, error) {
	raw, _, err := e.store.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load qr sessions: %w", err)
	}
	sessions, _ := e.decode(raw)
	return sessions, nil
}

// decode never fails: corrupt JSON becomes an empty map and malformed records are
// dropped. dirty reports that the persisted value needs rewriting.
func (e *Engine) decode(raw string) (sessions map[string]Session, dirty bool) {
	sessions, err := kvstore.DecodeJSON[map[string]Session](StorageKey, raw)
	if err != nil {
		e.logger.Warn().Err(err).Msg("qr sessions unreadable, treating as empty")
		return make(map[string]Session), true
	}
	if sessions == nil {
		return make(map[string]Session), raw != ""
	}
	for key, s := range sessions {
		if !s.wellFormed(key) {
			e.logger.Warn().Str("token", key).Msg("dropping malformed qr session")
			delete(sessions, key)
			dirty = true
		}
	}
	return sessions, dirty
}

func result(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, ErrAlreadyUsed):
		return metrics.ResultAlreadyUsed
	case errors.Is(err, ErrExpired):
		return metrics.ResultExpired
	default:
		return metrics.ResultError
	}
}
