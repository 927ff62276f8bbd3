package loginsession

import "github.com/google/uuid"

const (
	sessionIDPrefix = "sess_"
	windowIDPrefix  = "win_"
)

// IDGenerator returns a fresh opaque identifier beginning with prefix.
type IDGenerator func(prefix string) string

func NewID(prefix string) string {
	return prefix + uuid.NewString()
}
