// Package kvstore is the durable key-value contract the attendance engines persist through.
//
// A Store is a synchronous string map. Stores that can also version their entries
// implement Versioned, which lets WithLatest turn every read-modify-write into a
// conditional write so concurrent writers never silently overwrite each other.
package kvstore

import (
	"sync"

	"github.com/jrsteele09/go-attendance/internal/errors"
)

var (
	ErrStorageCorrupt = errors.ErrStorageCorrupt
	ErrConflict       = errors.ErrConflict
)

// Store defines the storage contract shared by every tab of one origin.
type Store interface {
	// Get returns the value stored under key and whether it exists
	Get(key string) (string, bool, error)

	// Set creates or replaces the value stored under key
	Set(key, value string) error

	// Remove deletes key. Removing a missing key is not an error
	Remove(key string) error
}

// Versioned is implemented by stores that support conditional writes.
type Versioned interface {
	Store

	// GetVersioned returns the value and its version. Absent keys report version 0
	GetVersioned(key string) (value string, version uint64, ok bool, err error)

	// CompareAndSet writes value only if key is still at version.
	// Version 0 means the key must not exist. It reports whether the write happened
	CompareAndSet(key, value string, version uint64) (bool, error)
}

// Change describes a completed Set or Remove.
type Change struct {
	Key      string
	OldValue string
	NewValue string
	Removed  bool
}

// Notifier is implemented by stores that announce writes, the way a browser fires
// storage events at other tabs. Listeners are for live refresh only.
type Notifier interface {
	Subscribe(fn func(Change)) (unsubscribe func())
}

type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Change)
}

func (l *listeners) Subscribe(fn func(Change)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[int]func(Change))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.fns, id)
		})
	}
}

// publish must be called without holding the store lock so listeners may read the store.
func (l *listeners) publish(c Change) {
	l.mu.Lock()
	fns := make([]func(Change), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
