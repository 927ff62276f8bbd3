package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the attendance packages
var (
	// Input errors
	ErrInvalidArgument = errors.New("invalid argument")

	// Lookup and lifecycle errors, expected outcomes that callers branch on
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrExpired     = errors.New("expired")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Storage errors
	ErrStorageCorrupt = errors.New("storage corrupt")
	ErrConflict       = errors.New("concurrent write conflict")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
