package config

import "time"

type AttendanceConfig interface {
	GetAttendanceThreshold() int
	GetScanCleanupInterval() time.Duration
}

type Attendance struct{}

var _ AttendanceConfig = Attendance{}

// GetAttendanceThreshold is the percentage below which a student is warned.
func (Attendance) GetAttendanceThreshold() int {
	return GetPercent("ATTENDANCE_THRESHOLD", 75)
}

func (Attendance) GetScanCleanupInterval() time.Duration {
	return GetDuration("SCAN_CLEANUP_INTERVAL", 5*time.Minute)
}
