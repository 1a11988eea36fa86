package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/prn-tf/alexander-library/internal/domain"
)

// Claims are the JWT claims of a session token.
// The subject holds the user id in decimal.
type Claims struct {
	jwt.RegisteredClaims

	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

// AuthContext contains the authenticated caller, stored in the request context.
type AuthContext struct {
	// UserID is the authenticated user's ID.
	UserID int64

	// Username is the authenticated user's username.
	Username string

	// Role is the caller's role, refreshed from the account when the
	// middleware has an AccountLookup.
	Role domain.Role

	// TokenID is the token's "jti" claim.
	TokenID string
}

// IsLibrarian reports whether the caller manages the catalog and loans.
func (a *AuthContext) IsLibrarian() bool {
	return a != nil && a.Role == domain.RoleLibrarian
}

// CanActFor reports whether the caller may read data belonging to userID.
func (a *AuthContext) CanActFor(userID int64) bool {
	return a != nil && (a.IsLibrarian() || a.UserID == userID)
}

// contextKey is the type for context keys.
type contextKey string

// AuthContextKey is the context key for AuthContext.
const AuthContextKey contextKey = "auth"
