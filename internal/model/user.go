package model

import (
	"fmt"
	"time"
)

// Role determines the capability set granted to a user. There are exactly
// two roles: admins can read, write, and administer; users can only read.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole validates and normalizes a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", fmt.Errorf("unknown role %q (must be %q or %q)", s, RoleAdmin, RoleUser)
	}
}

// Valid reports whether the role is one of the recognized values.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is a stored credential record. PasswordHash holds the Argon2id digest
// of password+salt, encrypted at rest with the keyring key; it is never
// exposed over the API or written to logs.
type User struct {
	ID             int64      `json:"id" db:"id"`
	Username       string     `json:"username" db:"username"`
	DisplayName    string     `json:"display_name" db:"display_name"`
	PasswordHash   []byte     `json:"-" db:"password_hash"` // sealed digest, never expose
	Salt           []byte     `json:"-" db:"salt"`
	Role           Role       `json:"role" db:"role"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	FailedAttempts int        `json:"failed_attempts" db:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty" db:"locked_until"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

// Locked reports whether the account is locked out at the given instant.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Identity is the authenticated principal produced by a successful login.
// It carries no credential material and is safe to hand to callers.
type Identity struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}
