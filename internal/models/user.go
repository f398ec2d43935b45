package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User represents an account allowed to call the internal API. Dashboard
// operators authenticate interactively; service callers use the same table
// with role "service". Only "admin" and "service" roles may invoke the
// resolver or write policies.
type User struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	UUID                string     `json:"uuid" gorm:"uniqueIndex"`
	Email               string     `json:"email" gorm:"uniqueIndex"`
	PasswordHash        string     `json:"-"` // Never serialize password hash
	Name                string     `json:"name"`
	Role                string     `json:"role" gorm:"default:'viewer'"` // "admin", "service", "viewer"
	SubjectID           string     `json:"subject_id" gorm:"index"`      // audit-stream user id this account maps to
	Enabled             bool       `json:"enabled" gorm:"default:true"`
	FailedLoginAttempts int        `json:"-" gorm:"default:0"`
	LockedUntil         *time.Time `json:"-"`
	LastLogin           *time.Time `json:"last_login,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetPassword hashes and sets the user's password.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares the provided password with the stored hash.
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// IsServiceCaller reports whether the account may call service-only
// endpoints (policy writes and the resolver).
func (u *User) IsServiceCaller() bool {
	return u.Role == "admin" || u.Role == "service"
}
