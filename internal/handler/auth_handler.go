package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/auth"
	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/service"
)

// AuthHandler exchanges credentials for session tokens.
type AuthHandler struct {
	users   *service.UserService
	tokens  *auth.TokenIssuer
	maxBody int64
	logger  zerolog.Logger
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token.
type LoginResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, r, h.logger, domain.NewDomainError(domain.ErrValidation, "username and password are required", ""))
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	token, expiresAt, err := h.tokens.Issue(user)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		TokenType: auth.BearerScheme,
		ExpiresAt: expiresAt.UTC(),
		User:      user,
	})
}
