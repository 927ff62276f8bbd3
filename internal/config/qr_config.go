package config

import "time"

type QRConfig interface {
	GetQRValidity() time.Duration
	GetQRRetention() time.Duration
	GetQRCleanupInterval() time.Duration
}

type QR struct{}

var _ QRConfig = QR{}

// GetQRValidity is how long a freshly issued attendance token can be consumed.
func (QR) GetQRValidity() time.Duration {
	return GetDuration("QR_VALIDITY", 15*time.Minute)
}

// GetQRRetention is how long an expired token is kept before the sweep deletes it.
func (QR) GetQRRetention() time.Duration {
	return GetDuration("QR_RETENTION", time.Hour)
}

func (QR) GetQRCleanupInterval() time.Duration {
	return GetDuration("QR_CLEANUP_INTERVAL", 5*time.Minute)
}
