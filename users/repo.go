package users

import "github.com/jrsteele09/go-attendance/internal/errors"

var (
	ErrNotFound        = errors.ErrNotFound
	ErrInvalidArgument = errors.ErrInvalidArgument
)

// UserRepo is the user directory. Lookups of unknown users return ErrNotFound.
type UserRepo interface {
	Upsert(user *User) error
	Delete(id string) error
	GetByID(id string) (*User, error)
	GetByUsername(username string) (*User, error)
	// List returns users sorted by ID. An empty role lists everyone
	List(role RoleType) ([]*User, error)
}

func validate(user *User) error {
	if user.Username == "" {
		return errors.Wrapf(ErrInvalidArgument, "username is required")
	}
	if !user.Role.Valid() {
		return errors.Wrapf(ErrInvalidArgument, "unknown role %q", user.Role)
	}
	return nil
}
