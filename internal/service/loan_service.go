package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/lock"
	"github.com/prn-tf/alexander-library/internal/metrics"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// DefaultLockTTL bounds how long one issue or return may hold its record lock.
const DefaultLockTTL = 10 * time.Second

// LoanService is the loan ledger. It issues and returns books, keeping the
// loan table and the book's available copies consistent in one transaction.
type LoanService struct {
	loans   repository.LoanRepository
	books   repository.BookRepository
	users   repository.UserRepository
	tx      repository.TxManager
	locker  lock.Locker
	cache   repository.Cache
	metrics *metrics.Metrics
	policy  domain.CirculationPolicy
	clock   Clock
	refs    ReferenceGenerator
	lockTTL time.Duration
	retry   lock.RetryPolicy
	logger  zerolog.Logger
}

// LoanServiceConfig holds the dependencies of a LoanService.
// Locker, Cache, Metrics, Clock and References are optional.
type LoanServiceConfig struct {
	Loans      repository.LoanRepository
	Books      repository.BookRepository
	Users      repository.UserRepository
	Tx         repository.TxManager
	Locker     lock.Locker
	Cache      repository.Cache
	Metrics    *metrics.Metrics
	Policy     domain.CirculationPolicy
	Clock      Clock
	References ReferenceGenerator
	LockTTL    time.Duration
	Logger     zerolog.Logger
}

// NewLoanService creates a new LoanService.
func NewLoanService(cfg LoanServiceConfig) *LoanService {
	if cfg.Locker == nil {
		cfg.Locker = lock.NewNoOpLocker()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.References == nil {
		cfg.References = NewULIDGenerator()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}

	return &LoanService{
		loans:   cfg.Loans,
		books:   cfg.Books,
		users:   cfg.Users,
		tx:      cfg.Tx,
		locker:  cfg.Locker,
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
		policy:  cfg.Policy,
		clock:   cfg.Clock,
		refs:    cfg.References,
		lockTTL: cfg.LockTTL,
		retry:   lock.DefaultRetryPolicy,
		logger:  cfg.Logger.With().Str("service", "loan").Logger(),
	}
}

// Policy returns the circulation rules in force.
func (s *LoanService) Policy() domain.CirculationPolicy {
	return s.policy
}

// Today returns the ledger's current day.
func (s *LoanService) Today() domain.Date {
	return s.clock.Today()
}

// =============================================================================
// Issue
// =============================================================================

// IssueBookInput contains the data needed to lend a book.
type IssueBookInput struct {
	UserID int64
	BookID int64

	// IssueDate defaults to today.
	IssueDate *domain.Date

	// DueDate defaults to IssueDate plus the loan period.
	DueDate *domain.Date
}

// IssueBookOutput contains the result of issuing a book.
type IssueBookOutput struct {
	Loan *domain.Loan

	// AvailableCopies is the book's shelf count after the issue.
	AvailableCopies int
}

// IssueBook lends one copy of a book to a borrower. The loan insert and the
// copy decrement commit together or not at all.
func (s *LoanService) IssueBook(ctx context.Context, input IssueBookInput) (*IssueBookOutput, error) {
	start := time.Now()

	issueDate := s.clock.Today()
	if input.IssueDate != nil && !input.IssueDate.IsZero() {
		issueDate = *input.IssueDate
	}
	dueDate := s.policy.ComputeDueDate(issueDate)
	if input.DueDate != nil && !input.DueDate.IsZero() {
		dueDate = *input.DueDate
	}

	if dueDate.Before(issueDate) {
		err := domain.NewDomainError(domain.ErrInvalidDateRange,
			fmt.Sprintf("due date %s is before issue date %s", dueDate, issueDate), "")
		return nil, s.reject(err, "issue", input.BookID)
	}
	if dueDate.After(domain.MaxDate) {
		err := domain.NewDomainError(domain.ErrInvalidDateRange,
			fmt.Sprintf("due date falls after %s", domain.MaxDate), "")
		return nil, s.reject(err, "issue", input.BookID)
	}

	var out IssueBookOutput
	err := s.withLock(ctx, lock.Keys.Book(input.BookID), func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			user, err := s.users.GetByID(ctx, input.UserID)
			if err != nil {
				return notFound(err, fmt.Sprintf("user %d", input.UserID))
			}
			if !user.IsActive {
				return domain.NewDomainError(domain.ErrInactiveEntity, "borrower account is deactivated", fmt.Sprintf("user %d", user.ID))
			}

			book, err := s.books.GetByID(ctx, input.BookID)
			if err != nil {
				return notFound(err, fmt.Sprintf("book %d", input.BookID))
			}
			if !book.IsActive {
				return domain.NewDomainError(domain.ErrInactiveEntity, "book has been withdrawn", fmt.Sprintf("book %d", book.ID))
			}
			if book.AvailableCopies <= 0 {
				return domain.NewDomainError(domain.ErrBookUnavailable, "no copies on the shelf", fmt.Sprintf("book %d", book.ID))
			}

			if err := s.books.AdjustAvailableCopies(ctx, book.ID, -1); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return domain.NewDomainError(domain.ErrBookUnavailable, "no copies on the shelf", fmt.Sprintf("book %d", book.ID))
				}
				return persistenceError(err)
			}

			loan := domain.NewLoan(s.refs.NewReference(s.clock.Now()), book.ID, user.ID, issueDate, dueDate)
			if err := s.loans.Create(ctx, loan); err != nil {
				return persistenceError(err)
			}

			out.Loan = loan
			out.AvailableCopies = book.AvailableCopies - 1
			return nil
		})
	})
	if err != nil {
		return nil, s.reject(err, "issue", input.BookID)
	}

	s.invalidateReports(ctx)
	s.metrics.RecordIssue(time.Since(start))

	s.logger.Info().
		Int64("loan_id", out.Loan.ID).
		Str("reference", out.Loan.Reference).
		Int64("book_id", out.Loan.BookID).
		Int64("user_id", out.Loan.UserID).
		Str("issue_date", out.Loan.IssueDate.String()).
		Str("due_date", out.Loan.DueDate.String()).
		Int("available_copies", out.AvailableCopies).
		Msg("book issued")

	return &out, nil
}

// =============================================================================
// Return
// =============================================================================

// ReturnBookInput contains the data needed to close a loan.
type ReturnBookInput struct {
	LoanID int64

	// ReturnDate defaults to today.
	ReturnDate *domain.Date
}

// ReturnBookOutput contains the closed loan.
type ReturnBookOutput struct {
	Loan *domain.Loan

	// DaysOverdue is how many days late the book came back.
	DaysOverdue int
}

// ReturnBook closes an open loan, records its fine and puts the copy back
// on the shelf, all in one transaction.
func (s *LoanService) ReturnBook(ctx context.Context, input ReturnBookInput) (*ReturnBookOutput, error) {
	start := time.Now()

	returnDate := s.clock.Today()
	if input.ReturnDate != nil && !input.ReturnDate.IsZero() {
		returnDate = *input.ReturnDate
	}

	var out ReturnBookOutput
	err := s.withLock(ctx, lock.Keys.Loan(input.LoanID), func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			loan, err := s.loans.GetByID(ctx, input.LoanID)
			if err != nil {
				return notFound(err, fmt.Sprintf("loan %d", input.LoanID))
			}
			if loan.Returned {
				return domain.NewDomainError(domain.ErrAlreadyReturned,
					fmt.Sprintf("returned on %s", loan.ReturnDate), fmt.Sprintf("loan %d", loan.ID))
			}
			if returnDate.Before(loan.IssueDate) {
				return domain.NewDomainError(domain.ErrInvalidDateRange,
					fmt.Sprintf("return date %s is before issue date %s", returnDate, loan.IssueDate),
					fmt.Sprintf("loan %d", loan.ID))
			}

			fine := s.policy.CalculateFine(loan.DueDate, returnDate)

			if err := s.loans.MarkReturned(ctx, loan.ID, returnDate, fine); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return domain.NewDomainError(domain.ErrAlreadyReturned, "loan was closed concurrently", fmt.Sprintf("loan %d", loan.ID))
				}
				return persistenceError(err)
			}
			if err := s.books.AdjustAvailableCopies(ctx, loan.BookID, 1); err != nil {
				// A full shelf here means the copy counts were edited out of band.
				return persistenceError(fmt.Errorf("restore copy of book %d: %w", loan.BookID, err))
			}

			loan.Returned = true
			loan.ReturnDate = domain.DatePtr(returnDate)
			loan.FineAmount = fine
			loan.UpdatedAt = time.Now().UTC()

			out.Loan = loan
			out.DaysOverdue = s.policy.OverdueDays(loan.DueDate, returnDate)
			return nil
		})
	})
	if err != nil {
		return nil, s.reject(err, "return", input.LoanID)
	}

	s.invalidateReports(ctx)
	s.metrics.RecordReturn(time.Since(start), out.Loan.FineAmount.Float64())

	s.logger.Info().
		Int64("loan_id", out.Loan.ID).
		Int64("book_id", out.Loan.BookID).
		Int64("user_id", out.Loan.UserID).
		Str("return_date", returnDate.String()).
		Int("days_overdue", out.DaysOverdue).
		Str("fine", out.Loan.FineAmount.String()).
		Msg("book returned")

	return &out, nil
}

// =============================================================================
// Fines and state
// =============================================================================

// CalculateFine returns the fine for returning on returnDate a book due on dueDate.
func (s *LoanService) CalculateFine(dueDate, returnDate domain.Date) domain.Money {
	return s.policy.CalculateFine(dueDate, returnDate)
}

// ComputeDueDate returns the default due date for a loan issued on issueDate.
func (s *LoanService) ComputeDueDate(issueDate domain.Date) domain.Date {
	return s.policy.ComputeDueDate(issueDate)
}

// PreviewFine evaluates a loan as of asOf (default today) without changing it.
// Returned loans report their stored fine.
func (s *LoanService) PreviewFine(ctx context.Context, loanID int64, asOf *domain.Date) (*domain.LoanView, error) {
	day := s.clock.Today()
	if asOf != nil && !asOf.IsZero() {
		day = *asOf
	}

	details, err := s.loans.GetDetails(ctx, loanID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("loan %d", loanID))
	}
	if day.Before(details.IssueDate) {
		return nil, domain.NewDomainError(domain.ErrInvalidDateRange,
			fmt.Sprintf("%s is before issue date %s", day, details.IssueDate), fmt.Sprintf("loan %d", loanID))
	}

	return s.policy.View(details, day), nil
}

// GetLoan returns a loan evaluated as of today.
func (s *LoanService) GetLoan(ctx context.Context, loanID int64) (*domain.LoanView, error) {
	details, err := s.loans.GetDetails(ctx, loanID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("loan %d", loanID))
	}
	return s.policy.View(details, s.clock.Today()), nil
}

// BookHasActiveLoans reports whether any copy of the book is out.
func (s *LoanService) BookHasActiveLoans(ctx context.Context, bookID int64) (bool, error) {
	n, err := s.loans.CountOpenByBook(ctx, bookID)
	if err != nil {
		return false, persistenceError(err)
	}
	return n > 0, nil
}

// BorrowerHasActiveLoans reports whether the borrower still holds a book.
func (s *LoanService) BorrowerHasActiveLoans(ctx context.Context, userID int64) (bool, error) {
	n, err := s.loans.CountOpenByUser(ctx, userID)
	if err != nil {
		return false, persistenceError(err)
	}
	return n > 0, nil
}

// =============================================================================
// Listings
// =============================================================================

// ListActiveLoans returns every unreturned loan, newest issue first.
func (s *LoanService) ListActiveLoans(ctx context.Context) ([]*domain.LoanView, error) {
	return s.list(ctx, repository.LoanFilter{OpenOnly: true})
}

// ListOverdueLoans returns unreturned loans past their due date, most overdue first.
func (s *LoanService) ListOverdueLoans(ctx context.Context) ([]*domain.LoanView, error) {
	today := s.clock.Today()
	return s.list(ctx, repository.LoanFilter{
		OpenOnly:       true,
		DueBefore:      &today,
		OrderByDueDate: true,
	})
}

// ListAllLoans returns the whole ledger, newest issue first.
func (s *LoanService) ListAllLoans(ctx context.Context) ([]*domain.LoanView, error) {
	return s.list(ctx, repository.LoanFilter{})
}

// ListLoansForUser returns one borrower's loans.
func (s *LoanService) ListLoansForUser(ctx context.Context, userID int64, activeOnly bool) ([]*domain.LoanView, error) {
	return s.list(ctx, repository.LoanFilter{UserID: userID, OpenOnly: activeOnly})
}

// ListDueSoonForUser returns the borrower's open loans due within the warning window.
func (s *LoanService) ListDueSoonForUser(ctx context.Context, userID int64) ([]*domain.LoanView, error) {
	limit := s.clock.Today().AddDays(s.policy.WarningDays)
	views, err := s.list(ctx, repository.LoanFilter{
		UserID:         userID,
		OpenOnly:       true,
		DueOnOrBefore:  &limit,
		OrderByDueDate: true,
	})
	if err != nil {
		return nil, err
	}

	dueSoon := views[:0]
	for _, v := range views {
		if v.State == domain.LoanDueSoon {
			dueSoon = append(dueSoon, v)
		}
	}
	return dueSoon, nil
}

func (s *LoanService) list(ctx context.Context, filter repository.LoanFilter) ([]*domain.LoanView, error) {
	rows, err := s.loans.List(ctx, filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list loans")
		return nil, persistenceError(err)
	}

	today := s.clock.Today()
	views := make([]*domain.LoanView, 0, len(rows))
	for _, d := range rows {
		views = append(views, s.policy.View(d, today))
	}
	return views, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (s *LoanService) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return withRecordLock(ctx, s.locker, key, s.lockTTL, s.retry, fn)
}

// withRecordLock runs fn holding key. A lock held elsewhere past the retry
// policy becomes ErrResourceBusy.
func withRecordLock(ctx context.Context, locker lock.Locker, key string, ttl time.Duration, retry lock.RetryPolicy, fn func(ctx context.Context) error) error {
	err := lock.WithLock(ctx, locker, key, ttl, retry, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return domain.NewDomainError(domain.ErrResourceBusy, "record is being updated at another desk", key)
	}
	if err != nil && !isDomainError(err) {
		return persistenceError(err)
	}
	return err
}

// reject logs and counts a failed ledger operation and returns err.
func (s *LoanService) reject(err error, operation string, id int64) error {
	kind := domain.Kind(err)
	s.metrics.RecordRejection(kind)

	if errors.Is(err, domain.ErrPersistenceFailure) {
		s.logger.Error().Err(err).Str("operation", operation).Int64("id", id).Msg("ledger operation failed")
	} else {
		s.logger.Debug().Err(err).Str("operation", operation).Int64("id", id).Str("reason", kind).Msg("ledger operation rejected")
	}
	return err
}

// invalidateReports drops cached figures that an issue or return made stale.
func (s *LoanService) invalidateReports(ctx context.Context) {
	dropReportCache(ctx, s.cache, s.logger)
}

// dropReportCache drops every cached report. cache may be nil.
func dropReportCache(ctx context.Context, cache repository.Cache, logger zerolog.Logger) {
	if cache == nil {
		return
	}
	if err := cache.DeleteMulti(ctx, repository.CacheKeys.Reports()...); err != nil {
		logger.Warn().Err(err).Msg("failed to invalidate report cache")
	}
}
