package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/auth"
	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/metrics"
	"github.com/prn-tf/alexander-library/internal/service"
)

// HealthChecker reports whether the database is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router wires the API handlers onto a chi mux.
type Router struct {
	auth    *AuthHandler
	books   *BookHandler
	users   *UserHandler
	loans   *LoanHandler
	reports *ReportHandler

	tokens   auth.TokenParser
	accounts auth.AccountLookup
	health   HealthChecker
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	BookService   *service.BookService
	UserService   *service.UserService
	LoanService   *service.LoanService
	ReportService *service.ReportService
	Tokens        *auth.TokenIssuer
	Health        HealthChecker
	Metrics       *metrics.Metrics
	MaxBodySize   int64
	Logger        zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger.With().Str("component", "http").Logger()

	var accounts auth.AccountLookup
	if cfg.UserService != nil {
		accounts = cfg.UserService
	}

	return &Router{
		auth:     &AuthHandler{users: cfg.UserService, tokens: cfg.Tokens, maxBody: cfg.MaxBodySize, logger: logger},
		books:    &BookHandler{books: cfg.BookService, maxBody: cfg.MaxBodySize, logger: logger},
		users:    &UserHandler{users: cfg.UserService, loans: cfg.LoanService, maxBody: cfg.MaxBodySize, logger: logger},
		loans:    &LoanHandler{loans: cfg.LoanService, maxBody: cfg.MaxBodySize, logger: logger},
		reports:  &ReportHandler{reports: cfg.ReportService, loans: cfg.LoanService, logger: logger},
		tokens:   cfg.Tokens,
		accounts: accounts,
		health:   cfg.Health,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(rt.logger, rt.metrics))
	r.Use(middleware.Recoverer)

	// Health check (no auth)
	r.Get("/health", rt.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", rt.auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(rt.tokens, rt.accounts))

			// Any signed-in user
			r.Get("/books", rt.books.List)
			r.Get("/books/{id}", rt.books.Get)
			r.Get("/me/loans", rt.reports.MyLoans)
			r.Get("/me/notices", rt.reports.MyNotices)

			// Librarians
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(domain.RoleLibrarian))

				r.Post("/books", rt.books.Create)
				r.Put("/books/{id}", rt.books.Update)
				r.Put("/books/{id}/copies", rt.books.SetCopies)
				r.Put("/books/{id}/active", rt.books.SetActive)

				r.Get("/users", rt.users.List)
				r.Post("/users", rt.users.Create)
				r.Get("/users/{id}", rt.users.Get)
				r.Put("/users/{id}/active", rt.users.SetActive)
				r.Put("/users/{id}/password", rt.users.ResetPassword)
				r.Get("/users/{id}/loans", rt.users.Loans)

				r.Get("/loans", rt.loans.List)
				r.Post("/loans", rt.loans.Issue)
				r.Get("/loans/{id}", rt.loans.Get)
				r.Post("/loans/{id}/return", rt.loans.Return)
				r.Get("/loans/{id}/fine", rt.loans.Fine)

				r.Get("/reports/dashboard", rt.reports.Dashboard)
				r.Get("/reports/user-activity", rt.reports.UserActivity)
			})
		})
	})

	return r
}

// handleHealth reports database reachability.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if rt.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.health.Health(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
