package qrsession

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

const tokenPrefix = "qrt_"

// TokenGenerator returns a fresh token for a session created at now.
type TokenGenerator func(now time.Time) (string, error)

var entropy = &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)}

// NewToken builds "qrt_" + ULID: 48 bits of millisecond time followed by 80 random
// bits, so tokens sort by creation time and never collide in practice.
func NewToken(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", err
	}
	return tokenPrefix + id.String(), nil
}
