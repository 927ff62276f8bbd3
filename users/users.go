package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// RoleType is the dashboard a user logs in to
type RoleType string

const (
	RoleAdmin   RoleType = "admin"   // Manages users, classes and settings
	RoleTeacher RoleType = "teacher" // Issues QR sessions and marks attendance
	RoleStudent RoleType = "student" // Scans QR codes and views own attendance
)

func (r RoleType) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id"`                     // Unique identifier for the user
	Username     string    `json:"username"`               // Unique login name
	Name         string    `json:"name,omitempty"`         // Display name
	Role         RoleType  `json:"role"`                   // Dashboard role
	StudentID    string    `json:"studentId,omitempty"`    // School roll number, students only
	PasswordHash string    `json:"passwordHash,omitempty"` // bcrypt hash, only ever read by the directory
	CreatedAt    time.Time `json:"createdAt,omitempty"`    // When the record was first stored
}

// AttendanceID is the identifier written to attendance records: the roll number
// for students who have one, the username otherwise.
func (u *User) AttendanceID() string {
	if u.StudentID != "" {
		return u.StudentID
	}
	return u.Username
}

// Public returns a copy without the password hash.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword checks a password against the user's hash
func (u *User) CheckPassword(password string) bool {
	return u.PasswordHash != "" && CheckPasswordHash(password, u.PasswordHash)
}
