package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/auth"
	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/service"
)

// UserHandler serves the user directory to librarians.
type UserHandler struct {
	users   *service.UserService
	loans   *service.LoanService
	maxBody int64
	logger  zerolog.Logger
}

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
}

// PasswordRequest is the body of PUT /users/{id}/password.
type PasswordRequest struct {
	Password string `json:"password"`
}

// List handles GET /users?active_only=.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := queryBool(r, "active_only")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	users, err := h.users.List(r.Context(), activeOnly)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// Create handles POST /users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out, err := h.users.Create(r.Context(), service.CreateUserInput{
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Role:      role,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, out.User)
}

// Get handles GET /users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// SetActive handles PUT /users/{id}/active.
func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req ActiveRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if caller := auth.GetAuthContext(r.Context()); caller != nil && caller.UserID == id && !req.Active {
		writeError(w, r, h.logger, domain.NewDomainError(domain.ErrValidation, "librarians cannot deactivate themselves", ""))
		return
	}

	if err := h.users.SetActive(r.Context(), id, req.Active); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ResetPassword handles PUT /users/{id}/password.
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req PasswordRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.users.ResetPassword(r.Context(), id, req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Loans handles GET /users/{id}/loans?active_only=.
func (h *UserHandler) Loans(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	activeOnly, err := queryBool(r, "active_only")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if _, err := h.users.GetByID(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	loans, err := h.loans.ListLoansForUser(r.Context(), id, activeOnly)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, loans)
}

func callerIsLibrarian(r *http.Request) bool {
	return auth.GetAuthContext(r.Context()).IsLibrarian()
}
