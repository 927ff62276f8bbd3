// Package loginsession lets several identities stay logged in at once, one per
// browser tab or window, on top of a durable store shared by every tab.
//
// The durable store maps each user id to that user's ordered list of sessions.
// Each tab additionally keeps a TabPointer in its own tab-local store naming the
// session it considers current. A pointer to a session that no longer exists, or
// has expired, simply means "logged out".
package loginsession

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-attendance/internal/errors"
	"github.com/jrsteele09/go-attendance/internal/metrics"
	"github.com/jrsteele09/go-attendance/kvstore"
	"github.com/jrsteele09/go-attendance/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// StorageKey is the durable store key holding every user's sessions.
	StorageKey = "active_sessions"

	DefaultTTL = 24 * time.Hour
)

var ErrInvalidArgument = errors.ErrInvalidArgument

// UserDirectory resolves the identity behind a session.
type UserDirectory interface {
	GetByID(id string) (*users.User, error)
}

// Manager is the multi-session store as seen from one tab.
type Manager struct {
	durable   kvstore.Store
	tab       kvstore.Store
	directory UserDirectory
	nowTime   func() time.Time
	newID     IDGenerator
	ttl       time.Duration
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// Option modifies a Manager.
type Option func(*Manager)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithIDGenerator replaces NewID (primarily for testing)
func WithIDGenerator(gen IDGenerator) Option {
	return func(m *Manager) {
		m.newID = gen
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager builds the store for one tab. durable is shared by all tabs, tab is
// private to this one. directory may be nil when GetCurrentUser is not needed.
func NewManager(durable, tab kvstore.Store, directory UserDirectory, opts ...Option) *Manager {
	m := &Manager{
		durable:   durable,
		tab:       tab,
		directory: directory,
		nowTime:   time.Now,
		newID:     NewID,
		ttl:       DefaultTTL,
		logger:    log.Logger.With().Str("component", "loginsession").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession logs user in from this tab. An empty windowID gets a fresh one.
func (m *Manager) CreateSession(user users.User, windowID string) (Session, error) {
	if user.ID == "" {
		return Session{}, errors.Wrapf(ErrInvalidArgument, "user id is required")
	}
	if windowID == "" {
		windowID = m.newID(windowIDPrefix)
	}

	now := m.nowTime().UTC()
	session := Session{
		SessionID:    m.newID(sessionIDPrefix),
		UserID:       user.ID,
		Username:     user.Username,
		Role:         user.Role,
		WindowID:     windowID,
		LoginTime:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(m.ttl),
	}

	err := kvstore.WithLatest(m.durable, StorageKey, func(cur string, _ bool) (string, bool, error) {
		all, _ := m.decode(cur)
		all[user.ID] = append(all[user.ID], session)
		next, err := kvstore.EncodeJSON(all)
		return next, true, err
	})
	if err != nil {
		return Session{}, fmt.Errorf("create login session: %w", err)
	}

	if err := m.setPointer(TabPointer{SessionID: session.SessionID, UserID: user.ID, WindowID: windowID}); err != nil {
		return Session{}, fmt.Errorf("store tab pointer: %w", err)
	}

	m.metrics.LoginCreated()
	m.logger.Info().Str("session", session.SessionID).Str("user", user.ID).Str("role", string(user.Role)).
		Str("window", windowID).Msg("login session created")
	return session, nil
}

// GetCurrentSession returns this tab's session and refreshes its LastActivity.
// A missing pointer, a deleted session and an expired one all report false.
func (m *Manager) GetCurrentSession() (*Session, bool) {
	ptr, ok := m.Pointer()
	if !ok {
		return nil, false
	}

	now := m.nowTime().UTC()
	var found *Session
	err := kvstore.WithLatest(m.durable, StorageKey, func(cur string, _ bool) (string, bool, error) {
		found = nil
		all, _ := m.decode(cur)
		list := all[ptr.UserID]
		for i := range list {
			if list[i].SessionID != ptr.SessionID {
				continue
			}
			if !list[i].Active(now) {
				return "", false, nil
			}
			list[i].LastActivity = now
			s := list[i]
			found = &s
			next, err := kvstore.EncodeJSON(all)
			return next, true, err
		}
		return "", false, nil
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("session", ptr.SessionID).Msg("current session lookup failed")
		return nil, false
	}
	return found, found != nil
}

// GetCurrentUser resolves this tab's session to its user record.
func (m *Manager) GetCurrentUser() (*users.User, bool) {
	session, ok := m.GetCurrentSession()
	if !ok || m.directory == nil {
		return nil, false
	}
	user, err := m.directory.GetByID(session.UserID)
	if err != nil || user == nil {
		return nil, false
	}
	return user, true
}

// HasActiveSession reports whether userID is logged in from any tab. Expired
// sessions of that user are pruned on the way.
func (m *Manager) HasActiveSession(userID string) bool {
	now := m.nowTime().UTC()
	var (
		active int
		pruned int
	)
	err := kvstore.WithLatest(m.durable, StorageKey, func(cur string, _ bool) (string, bool, error) {
		all, dirty := m.decode(cur)
		list, exists := all[userID]
		kept := activeOnly(list, now)
		active, pruned = len(kept), len(list)-len(kept)
		if pruned == 0 && !dirty {
			return "", false, nil
		}
		if len(kept) == 0 {
			delete(all, userID)
		} else if exists {
			all[userID] = kept
		}
		next, err := kvstore.EncodeJSON(all)
		return next, true, err
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("user", userID).Msg("active session check failed")
		return false
	}

	m.metrics.LoginsRemoved(metrics.ReasonExpired, pruned)
	return active > 0
}

// Logout ends this tab's session.
func (m *Manager) Logout() error {
	return m.LogoutSession("")
}

// LogoutSession removes sessionID (this tab's session when empty) and clears the
// tab pointer. Removing a user's last session removes the user's entry.
func (m *Manager) LogoutSession(sessionID string) error {
	ptr, hasPointer := m.Pointer()
	if sessionID == "" {
		sessionID = ptr.SessionID
	}

	if sessionID != "" {
		var removed bool
		err := kvstore.WithLatest(m.durable, StorageKey, func(cur string, _ bool) (string, bool, error) {
			all, _ := m.decode(cur)
			removed = false

			// the tab's own user is checked first, then everyone else
			owners := make([]string, 0, len(all)+1)
			if hasPointer {
				owners = append(owners, ptr.UserID)
			}
			for userID := range all {
				owners = append(owners, userID)
			}
			for _, userID := range owners {
				if removed = removeSession(all, userID, sessionID); removed {
					break
				}
			}
			if !removed {
				return "", false, nil
			}
			next, err := kvstore.EncodeJSON(all)
			return next, true, err
		})
		if err != nil {
			return fmt.Errorf("logout %s: %w", sessionID, err)
		}
		if removed {
			m.metrics.LoginsRemoved(metrics.ReasonLogout, 1)
			m.logger.Info().Str("session", sessionID).Msg("logged out")
		}
	}

	return m.clearPointer()
}

// CleanupExpiredSessions drops every session with ExpiresAt <= now and any user
// left without sessions. It returns the number of sessions removed.
func (m *Manager) CleanupExpiredSessions() (int, error) {
	now := m.nowTime().UTC()
	var removed int
	err := kvstore.WithLatest(m.durable, StorageKey, func(cur string, exists bool) (string, bool, error) {
		all, dirty := m.decode(cur)
		removed = 0
		for userID, list := range all {
			kept := activeOnly(list, now)
			removed += len(list) - len(kept)
			if len(kept) == 0 {
				delete(all, userID)
			} else {
				all[userID] = kept
			}
		}
		if removed == 0 && !(dirty && exists) {
			return "", false, nil
		}
		next, err := kvstore.EncodeJSON(all)
		return next, true, err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup login sessions: %w", err)
	}

	m.metrics.LoginsRemoved(metrics.ReasonExpired, removed)
	return removed, nil
}

// UserSessions lists every stored session of userID, expired ones included.
func (m *Manager) UserSessions(userID string) []Session {
	raw, _, err := m.durable.Get(StorageKey)
	if err != nil {
		m.logger.Warn().Err(err).Msg("load login sessions failed")
		return nil
	}
	all, _ := m.decode(raw)
	return append([]Session(nil), all[userID]...)
}

// Pointer returns this tab's pointer. ok is false unless both the session and
// user ids are present.
func (m *Manager) Pointer() (TabPointer, bool) {
	var ptr TabPointer
	for key, dst := range map[string]*string{
		tabSessionKey: &ptr.SessionID,
		tabUserKey:    &ptr.UserID,
		tabWindowKey:  &ptr.WindowID,
	} {
		v, _, err := m.tab.Get(key)
		if err != nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("tab storage read failed")
			return TabPointer{}, false
		}
		*dst = v
	}
	return ptr, ptr.SessionID != "" && ptr.UserID != ""
}

func (m *Manager) setPointer(ptr TabPointer) error {
	if err := m.tab.Set(tabSessionKey, ptr.SessionID); err != nil {
		return err
	}
	if err := m.tab.Set(tabUserKey, ptr.UserID); err != nil {
		return err
	}
	return m.tab.Set(tabWindowKey, ptr.WindowID)
}

func (m *Manager) clearPointer() error {
	for _, key := range []string{tabSessionKey, tabUserKey, tabWindowKey} {
		if err := m.tab.Remove(key); err != nil {
			return fmt.Errorf("clear tab pointer: %w", err)
		}
	}
	return nil
}

// decode never fails: corrupt JSON becomes an empty map, malformed sessions and
// empty lists are dropped. dirty reports that the stored value needs rewriting.
func (m *Manager) decode(raw string) (all map[string][]Session, dirty bool) {
	all, err := kvstore.DecodeJSON[map[string][]Session](StorageKey, raw)
	if err != nil {
		m.logger.Warn().Err(err).Msg("login sessions unreadable, treating as empty")
		return make(map[string][]Session), true
	}
	if all == nil {
		return make(map[string][]Session), raw != ""
	}
	for userID, list := range all {
		kept := list[:0]
		for _, s := range list {
			if s.wellFormed(userID) {
				kept = append(kept, s)
			}
		}
		if len(kept) != len(list) {
			m.logger.Warn().Str("user", userID).Int("dropped", len(list)-len(kept)).Msg("dropping malformed login sessions")
			dirty = true
		}
		if len(kept) == 0 {
			delete(all, userID)
			dirty = true
			continue
		}
		all[userID] = kept
	}
	return all, dirty
}

func activeOnly(list []Session, now time.Time) []Session {
	kept := make([]Session, 0, len(list))
	for _, s := range list {
		if s.Active(now) {
			kept = append(kept, s)
		}
	}
	return kept
}

func removeSession(all map[string][]Session, userID, sessionID string) bool {
	list := all[userID]
	for i := range list {
		if list[i].SessionID != sessionID {
			continue
		}
		list = append(list[:i], list[i+1:]...)
		if len(list) == 0 {
			delete(all, userID)
		} else {
			all[userID] = list
		}
		return true
	}
	return false
}
