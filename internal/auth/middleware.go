package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/prn-tf/alexander-library/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(token string) (*AuthContext, error)
}

// AccountLookup loads the account a token was issued to.
type AccountLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// Middleware creates an authentication middleware that requires a valid
// bearer token and stores the caller in the request context. When accounts
// is set, every request also requires the account to still be active and
// takes the caller's role from the account rather than the token.
func Middleware(parser TokenParser, accounts AccountLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			authCtx, err := parser.Parse(token)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("token authentication failed")
				writeAuthError(w, err)
				return
			}

			if accounts != nil {
				authCtx, err = refreshAccount(r.Context(), accounts, authCtx)
				if err != nil {
					log.Debug().Err(err).Int64("user_id", authCtx.UserID).Str("path", r.URL.Path).Msg("account check failed")
					writeAuthError(w, err)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), authCtx)))
		})
	}
}

// RequireRole rejects callers whose role is not listed.
// It must run after Middleware.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r.Context())
			if authCtx == nil {
				writeAuthError(w, ErrMissingToken)
				return
			}
			if _, ok := allowed[authCtx.Role]; !ok {
				writeAuthError(w, ErrAccessDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// refreshAccount rejects tokens of deactivated or deleted accounts and
// returns a copy of authCtx carrying the account's current role.
func refreshAccount(ctx context.Context, accounts AccountLookup, authCtx *AuthContext) (*AuthContext, error) {
	user, err := accounts.GetByID(ctx, authCtx.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return authCtx, ErrAccountDisabled
	}
	if err != nil {
		return authCtx, errors.Join(ErrAccountLookup, err)
	}
	if !user.IsActive {
		return authCtx, ErrAccountDisabled
	}

	fresh := *authCtx
	fresh.Role = user.Role
	return &fresh, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get(AuthorizationHeader)
	if header == "" {
		return "", ErrMissingToken
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, BearerScheme) {
		return "", ErrInvalidAuthorizationHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// writeAuthError writes the API's JSON error envelope.
func writeAuthError(w http.ResponseWriter, err error) {
	authErr := NewAuthError(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(authErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   authErr.Code,
		"message": authErr.Message,
	})
}

// WithAuthContext returns ctx carrying authCtx.
func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, authCtx)
}

// GetAuthContext retrieves the AuthContext from a request context.
func GetAuthContext(ctx context.Context) *AuthContext {
	if authCtx, ok := ctx.Value(AuthContextKey).(*AuthContext); ok {
		return authCtx
	}
	return nil
}

// RequireAuth is a helper to get auth context or return error.
func RequireAuth(ctx context.Context) (*AuthContext, error) {
	authCtx := GetAuthContext(ctx)
	if authCtx == nil {
		return nil, ErrAccessDenied
	}
	return authCtx, nil
}
