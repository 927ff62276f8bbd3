// Package auth checks demo credentials and turns a successful login into a
// per-tab login session.
package auth

import (
	"errors"
	"fmt"

	apperrors "github.com/jrsteele09/go-attendance/internal/errors"
	"github.com/jrsteele09/go-attendance/loginsession"
	"github.com/jrsteele09/go-attendance/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionStore is the part of the multi-session store login needs.
type SessionStore interface {
	CreateSession(user users.User, windowID string) (loginsession.Session, error)
	GetCurrentUser() (*users.User, bool)
	Logout() error
}

var _ SessionStore = (*loginsession.Manager)(nil)

// LoginService provides login and logout for one tab.
type LoginService struct {
	users    users.UserRepo
	sessions SessionStore
	logger   zerolog.Logger
}

// LoginServiceOption defines a function type to modify the LoginService instance.
type LoginServiceOption func(*LoginService)

func WithLogger(logger zerolog.Logger) LoginServiceOption {
	return func(ls *LoginService) {
		ls.logger = logger
	}
}

func NewLoginService(userRepo users.UserRepo, sessions SessionStore, options ...LoginServiceOption) (*LoginService, error) {
	if userRepo == nil {
		return nil, errors.New("[NewLoginService] users repo is required")
	}
	if sessions == nil {
		return nil, errors.New("[NewLoginService] session store is required")
	}

	ls := &LoginService{
		users:    userRepo,
		sessions: sessions,
		logger:   log.Logger.With().Str("component", "auth").Logger(),
	}
	for _, opt := range options {
		opt(ls)
	}
	return ls, nil
}

// Login checks username, password and the selected role, then creates a session for
// this tab. windowID may be empty.
func (ls *LoginService) Login(username, password string, role users.RoleType, windowID string) (users.User, loginsession.Session, error) {
	user, err := ls.users.GetByUsername(username)
	if err != nil {
		if !apperrors.Is(err, users.ErrNotFound) {
			return users.User{}, loginsession.Session{}, fmt.Errorf("[Login] user lookup: %w", err)
		}
		ls.logger.Info().Str("username", username).Msg("login rejected: unknown user")
		return users.User{}, loginsession.Session{}, ErrInvalidCredentials
	}
	if !user.CheckPassword(password) || user.Role != role {
		ls.logger.Info().Str("username", username).Str("role", string(role)).Msg("login rejected")
		return users.User{}, loginsession.Session{}, ErrInvalidCredentials
	}

	session, err := ls.sessions.CreateSession(*user, windowID)
	if err != nil {
		return users.User{}, loginsession.Session{}, fmt.Errorf("[Login] %w", err)
	}
	return user.Public(), session, nil
}

// CurrentUser restores this tab's identity, the way every page load does.
func (ls *LoginService) CurrentUser() (users.User, bool) {
	user, ok := ls.sessions.GetCurrentUser()
	if !ok {
		return users.User{}, false
	}
	return user.Public(), true
}

func (ls *LoginService) Logout() error {
	return ls.sessions.Logout()
}
