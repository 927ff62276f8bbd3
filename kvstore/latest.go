package kvstore

import (
	"encoding/json"

	"github.com/jrsteele09/go-attendance/internal/errors"
)

// maxAttempts bounds the compare-and-set loop in WithLatest.
const maxAttempts = 16

// Mutator receives the latest raw value of a key and returns its replacement.
// Returning write=false (or an error) leaves the key untouched.
// On a Versioned store a Mutator may run more than once, so it must derive
// everything from its arguments.
type Mutator func(current string, exists bool) (next string, write bool, err error)

// WithLatest re-reads key, applies mutate and writes the result back.
//
// On a Versioned store the write is conditional on the version that was read and
// the whole cycle is retried when another writer got in first, so read-check-write
// sequences are atomic. Any other Store gets last-write-wins semantics.
func WithLatest(s Store, key string, mutate Mutator) error {
	vs, ok := s.(Versioned)
	if !ok {
		cur, exists, err := s.Get(key)
		if err != nil {
			return err
		}
		next, write, err := mutate(cur, exists)
		if err != nil || !write {
			return err
		}
		return s.Set(key, next)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		cur, version, exists, err := vs.GetVersioned(key)
		if err != nil {
			return err
		}
		next, write, err := mutate(cur, exists)
		if err != nil || !write {
			return err
		}
		swapped, err := vs.CompareAndSet(key, next, version)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}
	return errors.Wrapf(ErrConflict, "kvstore: %s gave up after %d attempts", key, maxAttempts)
}

// DecodeJSON parses a persisted value. An empty value decodes to the zero T.
// Malformed data yields the zero T and an error wrapping ErrStorageCorrupt, which
// callers log and then treat as empty.
func DecodeJSON[T any](key, raw string) (T, error) {
	var v T
	if raw == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		var zero T
		return zero, errors.Wrapf(ErrStorageCorrupt, "kvstore: decode %s: %s", key, err.Error())
	}
	return v, nil
}

func EncodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
