package loginsession

import (
	"time"

	"github.com/jrsteele09/go-attendance/users"
)

// Session is one login, as stored in the durable userId -> []Session map.
type Session struct {
	// Core identity, copied from the user at login
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId"`
	Username  string         `json:"username"`
	Role      users.RoleType `json:"role"`

	// Owning browser tab or window
	WindowID string `json:"windowId"`

	// Session management
	LoginTime    time.Time `json:"loginTime"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Active reports whether the session is still usable at now.
func (s Session) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

func (s Session) wellFormed(userID string) bool {
	return s.SessionID != "" && s.UserID == userID && !s.ExpiresAt.IsZero()
}

// TabPointer is what a tab remembers about its own login. It lives in tab-local
// storage, so it survives reloads of that tab but is never seen by other tabs.
type TabPointer struct {
	SessionID string
	UserID    string
	WindowID  string
}

// Tab-local storage keys.
const (
	tabSessionKey = "current_session_id"
	tabUserKey    = "current_user_id"
	tabWindowKey  = "current_window_id"
)
