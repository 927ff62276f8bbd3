package config

import "time"

type SessionConfig interface {
	GetSessionTTL() time.Duration
	GetSessionCleanupInterval() time.Duration
}

type Sessions struct{}

var _ SessionConfig = Sessions{}

func (Sessions) GetSessionTTL() time.Duration {
	return GetDuration("SESSION_TTL", 24*time.Hour)
}

func (Sessions) GetSessionCleanupInterval() time.Duration {
	return GetDuration("SESSION_CLEANUP_INTERVAL", time.Minute)
}
