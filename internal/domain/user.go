// Package domain contains the core circulation entities of the library.
// These are plain Go structs with no storage or transport dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is a borrower's category; it decides what the account may do.
type Role string

const (
	RoleStudent   Role = "student"
	RoleFaculty   Role = "faculty"
	RoleLibrarian Role = "librarian"
)

// ParseRole converts a case-insensitive role name.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleFaculty:
		return RoleFaculty, nil
	case RoleLibrarian:
		return RoleLibrarian, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// User is a registered borrower or staff member.
type User struct {
	// ID is the unique identifier for the user (auto-generated).
	ID int64 `json:"id"`

	// Username is the unique login name.
	// Constraints: 3-255 characters.
	Username string `json:"username"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`

	Role Role `json:"role"`

	// PasswordHash is the bcrypt hash of the user's password.
	// This should never be exposed in API responses.
	PasswordHash string `json:"-"`

	// IsActive is false once the account has been soft-deleted.
	// Inactive users cannot authenticate or borrow.
	IsActive bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser creates a new active User.
func NewUser(username, passwordHash string, role Role) *User {
	now := time.Now().UTC()
	return &User{
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// FullName returns "First Last", falling back to the username.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// CanAuthenticate returns true if the user is allowed to authenticate.
func (u *User) CanAuthenticate() bool {
	return u.IsActive
}

// IsLibrarian reports whether the user manages circulation.
func (u *User) IsLibrarian() bool {
	return u.Role == RoleLibrarian
}
