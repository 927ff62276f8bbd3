package utils

import "time"

func Ptr[T any](v T) *T {
	return &v
}

// TimePtrUTC returns a pointer to t normalised to UTC, or nil for the zero time.
func TimePtrUTC(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return Ptr(t.UTC())
}
