package types

import (
	"fmt"
	"strings"
	"time"
)

// Role is the access tier of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole converts raw input into a Role. Matching is exact.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(raw))
	if !role.Valid() {
		return "", fmt.Errorf("invalid role %q", raw)
	}
	return role, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether r grants admin privileges.
func (r Role) IsAdmin() bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleUser:
		return false
	default:
		return false
	}
}

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the unique login identifier. It is matched exactly as stored.
	Email string `json:"email" db:"email"`

	// Role indicates the user's authorization level.
	Role Role `json:"role" db:"role"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Principal is the identity resolved for an authenticated request.
type Principal struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Principal returns the request identity view of u.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Email: u.Email, Role: u.Role}
}
