package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/service"
)

// LoanHandler serves the circulation desk.
type LoanHandler struct {
	loans   *service.LoanService
	maxBody int64
	logger  zerolog.Logger
}

// IssueRequest is the body of POST /loans. Dates default to today and
// today plus the loan period.
type IssueRequest struct {
	UserID    int64        `json:"user_id"`
	BookID    int64        `json:"book_id"`
	IssueDate *domain.Date `json:"issue_date,omitempty"`
	DueDate   *domain.Date `json:"due_date,omitempty"`
}

// IssueResponse is the result of an issue.
type IssueResponse struct {
	Loan            *domain.Loan `json:"loan"`
	AvailableCopies int          `json:"available_copies"`
}

// ReturnRequest is the optional body of POST /loans/{id}/return.
type ReturnRequest struct {
	ReturnDate *domain.Date `json:"return_date,omitempty"`
}

// ReturnResponse is the result of a return.
type ReturnResponse struct {
	Loan        *domain.Loan `json:"loan"`
	DaysOverdue int          `json:"days_overdue"`
}

// List handles GET /loans?status=active|overdue|all.
func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		views []*domain.LoanView
		err   error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "", "active":
		views, err = h.loans.ListActiveLoans(r.Context())
	case "overdue":
		views, err = h.loans.ListOverdueLoans(r.Context())
	case "all":
		views, err = h.loans.ListAllLoans(r.Context())
	default:
		err = domain.NewDomainError(domain.ErrValidation, "status must be active, overdue or all", status)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, views)
}

// Issue handles POST /loans.
func (h *LoanHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.UserID <= 0 || req.BookID <= 0 {
		writeError(w, r, h.logger, domain.NewDomainError(domain.ErrValidation, "user_id and book_id are required", ""))
		return
	}

	out, err := h.loans.IssueBook(r.Context(), service.IssueBookInput{
		UserID:    req.UserID,
		BookID:    req.BookID,
		IssueDate: req.IssueDate,
		DueDate:   req.DueDate,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, IssueResponse{Loan: out.Loan, AvailableCopies: out.AvailableCopies})
}

// Get handles GET /loans/{id}.
func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	view, err := h.loans.GetLoan(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Return handles POST /loans/{id}/return. An empty body returns today.
func (h *LoanHandler) Return(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req ReturnRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, r, h.logger, err)
		return
	}

	out, err := h.loans.ReturnBook(r.Context(), service.ReturnBookInput{
		LoanID:     id,
		ReturnDate: req.ReturnDate,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ReturnResponse{Loan: out.Loan, DaysOverdue: out.DaysOverdue})
}

// Fine handles GET /loans/{id}/fine?as_of=YYYY-MM-DD.
func (h *LoanHandler) Fine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	view, err := h.loans.PreviewFine(r.Context(), id, asOf)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}
