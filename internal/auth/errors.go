package auth

import (
	"errors"
	"net/http"
)

// Authentication errors.
var (
	// ErrMissingToken indicates the request carried no bearer token.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidAuthorizationHeader indicates the Authorization header is malformed.
	ErrInvalidAuthorizationHeader = errors.New("invalid authorization header")

	// ErrInvalidToken indicates the token failed signature or claim checks.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrAccessDenied indicates the caller's role may not use the route.
	ErrAccessDenied = errors.New("access denied")

	// ErrAccountDisabled indicates the token's account was deactivated or removed.
	ErrAccountDisabled = errors.New("account is deactivated")

	// ErrAccountLookup indicates the token's account could not be loaded.
	ErrAccountLookup = errors.New("account lookup failed")

	// ErrWeakSecret indicates the signing secret is too short.
	ErrWeakSecret = errors.New("token secret must be at least 32 characters")
)

// AuthError pairs an authentication error with its HTTP status.
type AuthError struct {
	// Code is the machine-readable error kind.
	Code string

	// Message is the error message.
	Message string

	// HTTPStatus is the HTTP status code.
	HTTPStatus int
}

func (e *AuthError) Error() string {
	return e.Code + ": " + e.Message
}

// NewAuthError creates a new AuthError from a standard error.
func NewAuthError(err error) *AuthError {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return &AuthError{
			Code:       "access_denied",
			Message:    err.Error(),
			HTTPStatus: http.StatusForbidden,
		}

	case errors.Is(err, ErrAccountDisabled):
		return &AuthError{
			Code:       "account_disabled",
			Message:    ErrAccountDisabled.Error(),
			HTTPStatus: http.StatusUnauthorized,
		}

	case errors.Is(err, ErrAccountLookup):
		return &AuthError{
			Code:       "unavailable",
			Message:    ErrAccountLookup.Error(),
			HTTPStatus: http.StatusServiceUnavailable,
		}

	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidAuthorizationHeader):
		return &AuthError{
			Code:       "unauthenticated",
			Message:    err.Error(),
			HTTPStatus: http.StatusUnauthorized,
		}

	default:
		return &AuthError{
			Code:       "invalid_token",
			Message:    ErrInvalidToken.Error(),
			HTTPStatus: http.StatusUnauthorized,
		}
	}
}
