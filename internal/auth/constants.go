// Package auth issues and verifies session tokens for the library API.
// Tokens are HS256-signed JWTs carrying the user's id, username and role.
package auth

import "time"

// =============================================================================
// Constants
// =============================================================================

const (
	// AuthorizationHeader is the HTTP header for authorization.
	AuthorizationHeader = "Authorization"

	// BearerScheme prefixes the token in the Authorization header.
	BearerScheme = "Bearer"

	// DefaultIssuer is written to the "iss" claim when none is configured.
	DefaultIssuer = "alexander-library"

	// DefaultTokenTTL is used when the configured TTL is zero.
	DefaultTokenTTL = 8 * time.Hour

	// MinSecretLength is the shortest accepted signing secret.
	MinSecretLength = 32

	// MaxClockSkew is tolerated when checking exp and iat.
	MaxClockSkew = 30 * time.Second
)
