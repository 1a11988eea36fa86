package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/auth"
	"github.com/prn-tf/alexander-library/internal/service"
)

// ReportHandler serves the reports and the borrower's own views.
type ReportHandler struct {
	reports *service.ReportService
	loans   *service.LoanService
	logger  zerolog.Logger
}

// Dashboard handles GET /reports/dashboard.
func (h *ReportHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reports.DashboardStats(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// UserActivity handles GET /reports/user-activity.
func (h *ReportHandler) UserActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := h.reports.UserActivity(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

// MyLoans handles GET /me/loans?active_only=.
func (h *ReportHandler) MyLoans(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	activeOnly, err := queryBool(r, "active_only")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	loans, err := h.loans.ListLoansForUser(r.Context(), caller.UserID, activeOnly)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

// MyNotices handles GET /me/notices.
func (h *ReportHandler) MyNotices(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireAuth(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	notices, err := h.reports.BorrowerNotices(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, notices)
}
