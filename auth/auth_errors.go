package auth

import "github.com/jrsteele09/go-attendance/internal/errors"

var (
	// ErrInvalidCredentials covers unknown usernames, wrong passwords and a role that
	// does not match the account, so callers cannot tell which one failed.
	ErrInvalidCredentials = errors.ErrInvalidCredentials
)
