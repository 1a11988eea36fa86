package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testUser(role domain.Role) *domain.User {
	u := domain.NewUser("mreyes", "hash", role)
	u.ID = 42
	return u
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := issuer.Issue(testUser(domain.RoleFaculty))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	authCtx, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), authCtx.UserID)
	assert.Equal(t, "mreyes", authCtx.Username)
	assert.Equal(t, domain.RoleFaculty, authCtx.Role)
	assert.NotEmpty(t, authCtx.TokenID)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "library", time.Hour)
	require.NoError(t, err)

	token, _, err := issuer.Issue(testUser(domain.RoleStudent))
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		other, _ := NewTokenIssuer(strings.Repeat("x", 32), "library", time.Hour)
		_, err := other.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		other, _ := NewTokenIssuer(testSecret, "elsewhere", time.Hour)
		_, err := other.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		late, _ := NewTokenIssuer(testSecret, "library", time.Hour)
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewTokenIssuer_WeakSecret(t *testing.T) {
	_, err := NewTokenIssuer("short", "", 0)
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestMiddleware(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "", time.Hour)
	require.NoError(t, err)
	librarianToken, _, _ := issuer.Issue(testUser(domain.RoleLibrarian))
	studentToken, _, _ := issuer.Issue(testUser(domain.RoleStudent))

	var seen *AuthContext
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAuthContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Middleware(issuer, nil)(RequireRole(domain.RoleLibrarian)(final))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"no header", "", http.StatusUnauthorized, "unauthenticated"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "unauthenticated"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "invalid_token"},
		{"student", "Bearer " + studentToken, http.StatusForbidden, "access_denied"},
		{"librarian", "Bearer " + librarianToken, http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/loans", nil)
			if tt.header != "" {
				req.Header.Set(AuthorizationHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
				assert.Nil(t, seen)
			} else {
				require.NotNil(t, seen)
				assert.True(t, seen.IsLibrarian())
			}
		})
	}
}

// stubAccounts serves users by ID.
type stubAccounts struct {
	users map[int64]*domain.User
	err   error
}

func (s *stubAccounts) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	return u, nil
}

func TestMiddleware_RechecksAccount(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, "", time.Hour)
	require.NoError(t, err)

	user := testUser(domain.RoleLibrarian)
	token, _, err := issuer.Issue(user)
	require.NoError(t, err)

	var seen *AuthContext
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAuthContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		account    func() *domain.User
		lookupErr  error
		wantStatus int
		wantBody   string
		wantRole   domain.Role
	}{
		{
			name:       "active",
			account:    func() *domain.User { return testUser(domain.RoleLibrarian) },
			wantStatus: http.StatusNoContent,
			wantRole:   domain.RoleLibrarian,
		},
		{
			name: "deactivated after login",
			account: func() *domain.User {
				u := testUser(domain.RoleLibrarian)
				u.IsActive = false
				return u
			},
			wantStatus: http.StatusUnauthorized,
			wantBody:   "account_disabled",
		},
		{
			name:       "removed",
			account:    func() *domain.User { return nil },
			wantStatus: http.StatusUnauthorized,
			wantBody:   "account_disabled",
		},
		{
			name:       "demoted after login",
			account:    func() *domain.User { return testUser(domain.RoleStudent) },
			wantStatus: http.StatusNoContent,
			wantRole:   domain.RoleStudent,
		},
		{
			name:       "store down",
			account:    func() *domain.User { return testUser(domain.RoleLibrarian) },
			lookupErr:  errors.New("connection refused"),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &stubAccounts{users: map[int64]*domain.User{}, err: tt.lookupErr}
			if u := tt.account(); u != nil {
				accounts.users[u.ID] = u
			}
			handler := Middleware(issuer, accounts)(final)

			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me/loans", nil)
			req.Header.Set(AuthorizationHeader, "Bearer "+token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
				assert.Nil(t, seen)
				return
			}
			require.NotNil(t, seen)
			assert.Equal(t, tt.wantRole, seen.Role)
			assert.Equal(t, user.ID, seen.UserID)
		})
	}
}

func TestAuthContext_CanActFor(t *testing.T) {
	student := &AuthContext{UserID: 5, Role: domain.RoleStudent}
	librarian := &AuthContext{UserID: 1, Role: domain.RoleLibrarian}

	assert.True(t, student.CanActFor(5))
	assert.False(t, student.CanActFor(6))
	assert.True(t, librarian.CanActFor(6))

	var none *AuthContext
	assert.False(t, none.CanActFor(5))
}
