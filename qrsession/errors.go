package qrsession

import "github.com/jrsteele09/go-attendance/internal/errors"

// Validation outcomes. Callers branch on these with errors.Is.
var (
	ErrInvalidArgument = errors.ErrInvalidArgument
	ErrNotFound        = errors.ErrNotFound
	ErrAlreadyUsed     = errors.ErrAlreadyUsed
	ErrExpired         = errors.ErrExpired
)
