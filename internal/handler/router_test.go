package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/alexander-library/internal/auth"
	"github.com/prn-tf/alexander-library/internal/cache/memory"
	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/metrics"
	"github.com/prn-tf/alexander-library/internal/repository/sqlite"
	"github.com/prn-tf/alexander-library/internal/service"
)

const testPassword = "correct-horse-battery"

type apiFixture struct {
	handler   http.Handler
	metrics   *metrics.Metrics
	book      *domain.Book
	librarian *domain.User
	student   *domain.User
}

type stubHealth struct{ err error }

func (s stubHealth) Health(ctx context.Context) error { return s.err }

// newAPIFixture serves the API over a migrated SQLite database whose
// today is 2024-01-10.
func newAPIFixture(t *testing.T, health HealthChecker) *apiFixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "library.db")), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	migrations, err := sqlite.Migrations()
	require.NoError(t, err)
	_, err = db.Migrate(ctx, migrations)
	require.NoError(t, err)
	repos := db.Repositories()

	cache := memory.NewCache()
	t.Cleanup(cache.Stop)
	m := metrics.New()

	loans := service.NewLoanService(service.LoanServiceConfig{
		Loans:   repos.Loans,
		Books:   repos.Books,
		Users:   repos.Users,
		Tx:      repos.Tx,
		Cache:   cache,
		Metrics: m,
		Policy:  domain.DefaultCirculationPolicy(),
		Clock:   service.FixedClock{T: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)},
		Logger:  zerolog.Nop(),
	})
	books := service.NewBookService(repos.Books, loans, repos.Tx, nil, cache, zerolog.Nop())
	users := service.NewUserService(repos.Users, loans, repos.Tx, cache, bcrypt.MinCost, zerolog.Nop())
	reports := service.NewReportService(repos.Reports, loans, cache, time.Minute, m, zerolog.Nop())

	tokens, err := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", "library-test", time.Hour)
	require.NoError(t, err)

	f := &apiFixture{metrics: m}
	f.librarian = createTestUser(t, users, "libby", domain.RoleLibrarian)
	f.student = createTestUser(t, users, "ada", domain.RoleStudent)
	f.book, err = books.CreateBook(ctx, service.CreateBookInput{
		Title:       "The Go Programming Language",
		Author:      "Donovan",
		Category:    "Programming",
		ISBN:        "978-0134190440",
		TotalCopies: 1,
	})
	require.NoError(t, err)

	f.handler = NewRouter(RouterConfig{
		BookService:   books,
		UserService:   users,
		LoanService:   loans,
		ReportService: reports,
		Tokens:        tokens,
		Health:        health,
		Metrics:       m,
		Logger:        zerolog.Nop(),
	}).Handler()
	return f
}

func createTestUser(t *testing.T, users *service.UserService, username string, role domain.Role) *domain.User {
	t.Helper()
	out, err := users.Create(context.Background(), service.CreateUserInput{
		Username: username,
		Password: testPassword,
		Email:    username + "@example.com",
		Role:     role,
	})
	require.NoError(t, err)
	return out.User
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(t *testing.T, username string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: username, Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	return resp.Error
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, stubHealth{})
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	f = newAPIFixture(t, stubHealth{err: errors.New("disk gone")})
	rec = f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","database":"unreachable"}`, rec.Body.String())
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t, nil)

	tests := []struct {
		name   string
		body   interface{}
		status int
		kind   string
	}{
		{"wrong password", LoginRequest{Username: "ada", Password: "nope-nope-nope"}, http.StatusUnauthorized, "invalid_credentials"},
		{"unknown user", LoginRequest{Username: "nobody", Password: testPassword}, http.StatusUnauthorized, "invalid_credentials"},
		{"missing password", LoginRequest{Username: "ada"}, http.StatusBadRequest, "validation"},
		{"empty body", nil, http.StatusBadRequest, "validation"},
		{"unknown field", `{"username":"ada","password":"x","admin":true}`, http.StatusBadRequest, "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, errorKind(t, rec))
		})
	}

	token := f.login(t, "libby")
	assert.NotEmpty(t, token)
}

func TestAuthorization(t *testing.T) {
	f := newAPIFixture(t, nil)
	student := f.login(t, "ada")

	rec := f.do(t, http.MethodGet, "/api/v1/books", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/books", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", errorKind(t, rec))

	rec = f.do(t, http.MethodGet, "/api/v1/books", student, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/loans", student, IssueRequest{UserID: f.student.ID, BookID: f.book.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "access_denied", errorKind(t, rec))

	rec = f.do(t, http.MethodGet, "/api/v1/reports/dashboard", student, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeactivatedAccountLosesSession(t *testing.T) {
	f := newAPIFixture(t, nil)
	librarian := f.login(t, "libby")
	student := f.login(t, "ada")

	rec := f.do(t, http.MethodGet, "/api/v1/me/loans", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/users/%d/active", f.student.ID), librarian, ActiveRequest{Active: false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, path := range []string{"/api/v1/me/loans", "/api/v1/me/notices", "/api/v1/books"} {
		rec = f.do(t, http.MethodGet, path, student, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "account_disabled", errorKind(t, rec), path)
	}

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/users/%d/active", f.student.ID), librarian, ActiveRequest{Active: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/me/loans", student, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIssueAndReturnFlow(t *testing.T) {
	f := newAPIFixture(t, nil)
	librarian := f.login(t, "libby")
	student := f.login(t, "ada")

	issueDate := domain.MustParseDate("2024-01-01")
	dueDate := domain.MustParseDate("2024-01-05")
	rec := f.do(t, http.MethodPost, "/api/v1/loans", librarian, IssueRequest{
		UserID:    f.student.ID,
		BookID:    f.book.ID,
		IssueDate: &issueDate,
		DueDate:   &dueDate,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var issued IssueResponse
	decodeBody(t, rec, &issued)
	assert.Equal(t, 0, issued.AvailableCopies)
	assert.NotEmpty(t, issued.Loan.Reference)
	loanPath := fmt.Sprintf("/api/v1/loans/%d", issued.Loan.ID)

	// the only copy is out
	rec = f.do(t, http.MethodPost, "/api/v1/loans", librarian, IssueRequest{UserID: f.librarian.ID, BookID: f.book.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "book_unavailable", errorKind(t, rec))

	rec = f.do(t, http.MethodGet, loanPath+"/fine?as_of=2024-01-08", librarian, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview domain.LoanView
	decodeBody(t, rec, &preview)
	assert.Equal(t, domain.Money(300), preview.CurrentFine)
	assert.Equal(t, domain.LoanOverdue, preview.State)

	rec = f.do(t, http.MethodGet, "/api/v1/me/loans?active_only=true", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []*domain.LoanView
	decodeBody(t, rec, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, issued.Loan.ID, mine[0].ID)

	rec = f.do(t, http.MethodGet, "/api/v1/me/notices", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notices domain.BorrowerNotices
	decodeBody(t, rec, &notices)
	assert.Len(t, notices.Overdue, 1)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/books/%d/active", f.book.ID), librarian, ActiveRequest{Active: false})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "has_active_loans", errorKind(t, rec))

	rec = f.do(t, http.MethodPost, loanPath+"/return", librarian, ReturnRequest{ReturnDate: datePtr("2024-01-08")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var returned ReturnResponse
	decodeBody(t, rec, &returned)
	assert.Equal(t, 3, returned.DaysOverdue)
	assert.Equal(t, domain.Money(300), returned.Loan.FineAmount)
	assert.True(t, returned.Loan.Returned)

	rec = f.do(t, http.MethodPost, loanPath+"/return", librarian, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_returned", errorKind(t, rec))

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/books/%d", f.book.ID), student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var book domain.Book
	decodeBody(t, rec, &book)
	assert.Equal(t, 1, book.AvailableCopies)
}

func TestReturnWithoutBodyDefaultsToToday(t *testing.T) {
	f := newAPIFixture(t, nil)
	librarian := f.login(t, "libby")

	rec := f.do(t, http.MethodPost, "/api/v1/loans", librarian, IssueRequest{UserID: f.student.ID, BookID: f.book.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var issued IssueResponse
	decodeBody(t, rec, &issued)
	assert.Equal(t, "2024-01-24", issued.Loan.DueDate.String())

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/loans/%d/return", issued.Loan.ID), librarian, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var returned ReturnResponse
	decodeBody(t, rec, &returned)
	require.NotNil(t, returned.Loan.ReturnDate)
	assert.Equal(t, "2024-01-10", returned.Loan.ReturnDate.String())
	assert.Equal(t, domain.Money(0), returned.Loan.FineAmount)
}

func TestErrorStatuses(t *testing.T) {
	f := newAPIFixture(t, nil)
	librarian := f.login(t, "libby")

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		kind   string
	}{
		{
			name:   "due before issue",
			method: http.MethodPost,
			path:   "/api/v1/loans",
			body:   fmt.Sprintf(`{"user_id":%d,"book_id":%d,"issue_date":"2024-01-10","due_date":"2024-01-09"}`, f.student.ID, f.book.ID),
			status: http.StatusUnprocessableEntity,
			kind:   "invalid_date_range",
		},
		{
			name:   "malformed date",
			method: http.MethodPost,
			path:   "/api/v1/loans",
			body:   fmt.Sprintf(`{"user_id":%d,"book_id":%d,"due_date":"10/01/2024"}`, f.student.ID, f.book.ID),
			status: http.StatusBadRequest,
			kind:   "validation",
		},
		{
			name:   "missing ids",
			method: http.MethodPost,
			path:   "/api/v1/loans",
			body:   `{}`,
			status: http.StatusBadRequest,
			kind:   "validation",
		},
		{
			name:   "unknown book",
			method: http.MethodPost,
			path:   "/api/v1/loans",
			body:   IssueRequest{UserID: f.student.ID, BookID: 999},
			status: http.StatusNotFound,
			kind:   "not_found",
		},
		{
			name:   "unknown loan",
			method: http.MethodGet,
			path:   "/api/v1/loans/999",
			status: http.StatusNotFound,
			kind:   "not_found",
		},
		{
			name:   "bad id",
			method: http.MethodGet,
			path:   "/api/v1/loans/abc",
			status: http.StatusBadRequest,
			kind:   "validation",
		},
		{
			name:   "bad status filter",
			method: http.MethodGet,
			path:   "/api/v1/loans?status=lost",
			status: http.StatusBadRequest,
			kind:   "validation",
		},
		{
			name:   "duplicate isbn",
			method: http.MethodPost,
			path:   "/api/v1/books",
			body:   BookRequest{Title: "Copy", Author: "A", Category: "C", ISBN: "978-0134190440", TotalCopies: 1},
			status: http.StatusConflict,
			kind:   "duplicate_isbn",
		},
		{
			name:   "negative copies",
			method: http.MethodPut,
			path:   fmt.Sprintf("/api/v1/books/%d/copies", f.book.ID),
			body:   CopiesRequest{TotalCopies: -1},
			status: http.StatusUnprocessableEntity,
			kind:   "invalid_copy_count",
		},
		{
			name:   "duplicate username",
			method: http.MethodPost,
			path:   "/api/v1/users",
			body:   CreateUserRequest{Username: "ada", Password: testPassword, Email: "ada2@example.com", Role: "student"},
			status: http.StatusConflict,
			kind:   "user_exists",
		},
		{
			name:   "self deactivation",
			method: http.MethodPut,
			path:   fmt.Sprintf("/api/v1/users/%d/active", f.librarian.ID),
			body:   ActiveRequest{Active: false},
			status: http.StatusBadRequest,
			kind:   "validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, librarian, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, errorKind(t, rec))
		})
	}
}

func TestCatalogAndUsers(t *testing.T) {
	f := newAPIFixture(t, nil)
	librarian := f.login(t, "libby")
	student := f.login(t, "ada")

	rec := f.do(t, http.MethodPost, "/api/v1/books", librarian, BookRequest{
		Title: "Designing Data-Intensive Applications", Author: "Kleppmann", Category: "Systems", ISBN: "978-1449373320", TotalCopies: 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created domain.Book
	decodeBody(t, rec, &created)
	assert.Equal(t, 3, created.AvailableCopies)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/books/%d/active", created.ID), librarian, ActiveRequest{Active: false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// withdrawn books are hidden from students even when asked for
	rec = f.do(t, http.MethodGet, "/api/v1/books?include_inactive=true", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var visible []*domain.Book
	decodeBody(t, rec, &visible)
	assert.Len(t, visible, 1)

	rec = f.do(t, http.MethodGet, "/api/v1/books?include_inactive=true&q=kleppmann", librarian, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &visible)
	require.Len(t, visible, 1)
	assert.False(t, visible[0].IsActive)

	rec = f.do(t, http.MethodPost, "/api/v1/users", librarian, CreateUserRequest{
		Username: "grace", Password: testPassword, FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com", Role: "faculty",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var grace domain.User
	decodeBody(t, rec, &grace)
	assert.Equal(t, domain.RoleFaculty, grace.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/users/%d/password", grace.ID), librarian, PasswordRequest{Password: "another-long-one"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: "grace", Password: "another-long-one"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/users?active_only=true", librarian, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []*domain.User
	decodeBody(t, rec, &users)
	assert.Len(t, users, 3)

	rec = f.do(t, http.MethodGet, "/api/v1/reports/dashboard", librarian, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats domain.DashboardStats
	decodeBody(t, rec, &stats)
	assert.Equal(t, int64(1), stats.ActiveBooks)
	assert.Equal(t, int64(3), stats.ActiveUsers)
}

func datePtr(s string) *domain.Date {
	d := domain.MustParseDate(s)
	return &d
}
