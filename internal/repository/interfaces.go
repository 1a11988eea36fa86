// Package repository defines data access interfaces for the library.
// These interfaces abstract database operations, allowing for different
// backends (SQLite, PostgreSQL, MySQL) while keeping the service layer clean.
package repository

import (
	"context"

	"github.com/prn-tf/alexander-library/internal/domain"
)

// =============================================================================
// Transactions
// =============================================================================

// TxManager runs a unit of work atomically.
// Repositories called with the ctx passed to fn take part in the transaction.
type TxManager interface {
	// WithTx commits when fn returns nil and rolls back otherwise.
	// Nested calls join the outer transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// =============================================================================
// Book Repository
// =============================================================================

// BookRepository defines the interface for catalog data access.
type BookRepository interface {
	// Create creates a new book.
	Create(ctx context.Context, book *domain.Book) error

	// GetByID retrieves a book by ID.
	// Returns ErrNotFound if the book does not exist.
	GetByID(ctx context.Context, id int64) (*domain.Book, error)

	// Update writes title, author, category, isbn and is_active.
	Update(ctx context.Context, book *domain.Book) error

	// SetTotalCopies sets total_copies and moves available_copies by the same delta.
	// Returns ErrConflict when the book is missing or total is below the copies on loan.
	SetTotalCopies(ctx context.Context, id int64, total int) error

	// AdjustAvailableCopies adds delta to available_copies.
	// Returns ErrConflict when the result would leave [0, total_copies].
	AdjustAvailableCopies(ctx context.Context, id int64, delta int) error

	// ExistsActiveISBN reports whether an active book other than excludeID uses isbn.
	ExistsActiveISBN(ctx context.Context, isbn string, excludeID int64) (bool, error)

	// List returns books matching the filter ordered by title.
	List(ctx context.Context, filter BookFilter) ([]*domain.Book, error)
}

// BookFilter narrows a book listing.
type BookFilter struct {
	// IncludeInactive also returns soft-deleted books.
	IncludeInactive bool

	// AvailableOnly returns only books with a copy on the shelf.
	AvailableOnly bool
}

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for borrower data access.
type UserRepository interface {
	// Create creates a new user.
	// Returns domain.ErrUserAlreadyExists on a duplicate username.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// Update updates profile, role, password hash and active flag.
	Update(ctx context.Context, user *domain.User) error

	// List returns users ordered by username.
	List(ctx context.Context, activeOnly bool) ([]*domain.User, error)

	// ExistsByUsername checks if a user with the given username exists.
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

// =============================================================================
// Loan Repository
// =============================================================================

// LoanRepository defines the interface for the loan ledger's storage.
type LoanRepository interface {
	// Create inserts a new open loan.
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan by ID.
	GetByID(ctx context.Context, id int64) (*domain.Loan, error)

	// GetDetails retrieves a loan joined with its book and borrower.
	GetDetails(ctx context.Context, id int64) (*domain.LoanDetails, error)

	// MarkReturned closes an open loan.
	// Returns ErrConflict if the loan was already returned.
	MarkReturned(ctx context.Context, id int64, returnDate domain.Date, fine domain.Money) error

	// List returns loans matching the filter.
	List(ctx context.Context, filter LoanFilter) ([]*domain.LoanDetails, error)

	// CountOpenByBook counts unreturned loans of a book.
	CountOpenByBook(ctx context.Context, bookID int64) (int64, error)

	// CountOpenByUser counts unreturned loans of a borrower.
	CountOpenByUser(ctx context.Context, userID int64) (int64, error)
}

// LoanFilter narrows a loan listing.
type LoanFilter struct {
	// OpenOnly excludes returned loans.
	OpenOnly bool

	// DueBefore keeps loans with due_date strictly before this date.
	DueBefore *domain.Date

	// DueOnOrBefore keeps loans with due_date on or before this date.
	DueOnOrBefore *domain.Date

	UserID int64
	BookID int64

	// OrderByDueDate sorts by due date ascending instead of newest issue first.
	OrderByDueDate bool
}

// =============================================================================
// Report Repository
// =============================================================================

// ReportRepository runs the aggregate queries behind the reports.
type ReportRepository interface {
	// DashboardStats counts books, copies, users and open/overdue loans as of today.
	DashboardStats(ctx context.Context, today domain.Date) (*domain.DashboardStats, error)

	// UserActivity aggregates loans and fines per active borrower with at least one loan.
	UserActivity(ctx context.Context) ([]*domain.UserActivity, error)
}
