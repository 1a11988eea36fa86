package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/lock"
	"github.com/prn-tf/alexander-library/internal/repository"
	"github.com/prn-tf/alexander-library/internal/repository/sqlite"
	"github.com/prn-tf/alexander-library/internal/repository/sqlstore"
)

// openTestDB opens a migrated SQLite database in a temp dir.
func openTestDB(t *testing.T) (*sqlstore.DB, *repository.Repositories) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "library.db")), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrations, err := sqlite.Migrations()
	require.NoError(t, err)
	_, err = db.Migrate(ctx, migrations)
	require.NoError(t, err)

	return db, db.Repositories()
}

// failingLoans fails every Create after the book row was already decremented.
type failingLoans struct {
	repository.LoanRepository
}

func (failingLoans) Create(ctx context.Context, loan *domain.Loan) error {
	return errors.New("insert failed")
}

// failingRestore refuses to put a copy back on the shelf, after the loan
// row was already marked returned.
type failingRestore struct {
	repository.BookRepository
}

func (f failingRestore) AdjustAvailableCopies(ctx context.Context, id int64, delta int) error {
	if delta > 0 {
		return errors.New("update failed")
	}
	return f.BookRepository.AdjustAvailableCopies(ctx, id, delta)
}

func seedBookAndUser(t *testing.T, repos *repository.Repositories, copies int) (*domain.Book, *domain.User) {
	t.Helper()
	ctx := context.Background()

	book := domain.NewBook("Structure and Interpretation", "Abelson", "CS", "978-0262510875", copies)
	require.NoError(t, repos.Books.Create(ctx, book))

	user := domain.NewUser("ada", "hash", domain.RoleStudent)
	user.Email = "ada@example.com"
	require.NoError(t, repos.Users.Create(ctx, user))

	return book, user
}

func newSQLiteLedger(repos *repository.Repositories, loans repository.LoanRepository, locker lock.Locker) *LoanService {
	if loans == nil {
		loans = repos.Loans
	}
	return NewLoanService(LoanServiceConfig{
		Loans:  loans,
		Books:  repos.Books,
		Users:  repos.Users,
		Tx:     repos.Tx,
		Locker: locker,
		Policy: domain.DefaultCirculationPolicy(),
		Clock:  FixedClock{T: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)},
		Logger: zerolog.Nop(),
	})
}

func TestLedgerSQLite_IssueRollsBackOnLoanInsertFailure(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)
	book, user := seedBookAndUser(t, repos, 2)

	svc := newSQLiteLedger(repos, failingLoans{repos.Loans}, nil)

	_, err := svc.IssueBook(ctx, IssueBookInput{UserID: user.ID, BookID: book.ID})
	require.ErrorIs(t, err, domain.ErrPersistenceFailure)

	stored, err := repos.Books.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.AvailableCopies, "copy decrement must be rolled back")

	loans, err := repos.Loans.List(ctx, repository.LoanFilter{})
	require.NoError(t, err)
	assert.Empty(t, loans)
}

func TestLedgerSQLite_ReturnRollsBackOnCopyRestoreFailure(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)
	book, user := seedBookAndUser(t, repos, 2)
	svc := newSQLiteLedger(repos, nil, nil)

	issued, err := svc.IssueBook(ctx, IssueBookInput{
		UserID:    user.ID,
		BookID:    book.ID,
		IssueDate: datePtr("2024-01-01"),
		DueDate:   datePtr("2024-01-10"),
	})
	require.NoError(t, err)

	broken := NewLoanService(LoanServiceConfig{
		Loans:  repos.Loans,
		Books:  failingRestore{repos.Books},
		Users:  repos.Users,
		Tx:     repos.Tx,
		Policy: domain.DefaultCirculationPolicy(),
		Clock:  FixedClock{T: time.Date(2024, 1, 13, 12, 0, 0, 0, time.UTC)},
		Logger: zerolog.Nop(),
	})
	_, err = broken.ReturnBook(ctx, ReturnBookInput{LoanID: issued.Loan.ID})
	require.ErrorIs(t, err, domain.ErrPersistenceFailure)

	loan, err := repos.Loans.GetByID(ctx, issued.Loan.ID)
	require.NoError(t, err)
	assert.False(t, loan.Returned, "return flag must be rolled back")
	assert.Nil(t, loan.ReturnDate)
	assert.Equal(t, domain.Money(0), loan.FineAmount)

	stored, err := repos.Books.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AvailableCopies)

	returned, err := svc.ReturnBook(ctx, ReturnBookInput{LoanID: issued.Loan.ID, ReturnDate: datePtr("2024-01-13")})
	require.NoError(t, err)
	assert.Equal(t, domain.Money(300), returned.Loan.FineAmount)

	stored, err = repos.Books.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.AvailableCopies)
}

func TestLedgerSQLite_CopyChangeKeepsLoansReturnable(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)
	book, user := seedBookAndUser(t, repos, 3)
	ledger := newSQLiteLedger(repos, nil, nil)
	catalog := NewBookService(repos.Books, ledger, repos.Tx, nil, nil, zerolog.Nop())

	issued, err := ledger.IssueBook(ctx, IssueBookInput{UserID: user.ID, BookID: book.ID})
	require.NoError(t, err)

	updated, err := catalog.SetTotalCopies(ctx, book.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.TotalCopies)
	assert.Equal(t, 4, updated.AvailableCopies)

	_, err = catalog.SetTotalCopies(ctx, book.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidCopyCount)

	_, err = ledger.ReturnBook(ctx, ReturnBookInput{LoanID: issued.Loan.ID})
	require.NoError(t, err)

	stored, err := repos.Books.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.TotalCopies)
	assert.Equal(t, 5, stored.AvailableCopies)
}

func TestLedgerSQLite_IssueAndReturn(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)
	book, user := seedBookAndUser(t, repos, 1)
	svc := newSQLiteLedger(repos, nil, nil)

	issued, err := svc.IssueBook(ctx, IssueBookInput{
		UserID:    user.ID,
		BookID:    book.ID,
		IssueDate: datePtr("2024-01-01"),
		DueDate:   datePtr("2024-01-10"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Loan.Reference)

	_, err = svc.IssueBook(ctx, IssueBookInput{UserID: user.ID, BookID: book.ID})
	assert.ErrorIs(t, err, domain.ErrBookUnavailable)

	view, err := svc.PreviewFine(ctx, issued.Loan.ID, datePtr("2024-01-13"))
	require.NoError(t, err)
	assert.Equal(t, domain.Money(300), view.CurrentFine)
	assert.Equal(t, "ada", view.BorrowerUsername)
	assert.Equal(t, book.Title, view.BookTitle)

	returned, err := svc.ReturnBook(ctx, ReturnBookInput{LoanID: issued.Loan.ID, ReturnDate: datePtr("2024-01-13")})
	require.NoError(t, err)
	assert.Equal(t, domain.Money(300), returned.Loan.FineAmount)

	stored, err := repos.Loans.GetByID(ctx, issued.Loan.ID)
	require.NoError(t, err)
	assert.True(t, stored.Returned)
	require.NotNil(t, stored.ReturnDate)
	assert.Equal(t, domain.MustParseDate("2024-01-13"), *stored.ReturnDate)
	assert.Equal(t, domain.Money(300), stored.FineAmount)

	b, err := repos.Books.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableCopies)

	_, err = svc.ReturnBook(ctx, ReturnBookInput{LoanID: issued.Loan.ID})
	assert.ErrorIs(t, err, domain.ErrAlreadyReturned)

	b, err = repos.Books.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, b.AvailableCopies)
}

func TestLedgerSQLite_ConcurrentIssuesNeverOverlend(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)
	book, _ := seedBookAndUser(t, repos, 3)

	var borrowers []int64
	for _, name := range []string{"b1", "b2", "b3", "b4", "b5", "b6", "b7", "b8"} {
		u := domain.NewUser(name, "hash", domain.RoleFaculty)
		require.NoError(t, repos.Users.Create(ctx, u))
		borrowers = append(borrowers, u.ID)
	}

	locker := lock.NewMemoryLocker()
	t.Cleanup(locker.Close)
	svc := newSQLiteLedger(repos, nil, locker)
	svc.retry = lock.RetryPolicy{MaxRetries: 500, Delay: 5 * time.Millisecond}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		kinds     = map[string]int{}
	)
	for _, id := range borrowers {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.IssueBook(ctx, IssueBookInput{UserID: userID, BookID: book.ID})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			kinds[domain.Kind(err)]++
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, map[string]int{"book_unavailable": 5}, kinds)

	b, err := repos.Books.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, b.AvailableCopies)

	open, err := repos.Loans.CountOpenByBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), open)
}

func TestLedgerSQLite_DeactivationGuards(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)
	book, user := seedBookAndUser(t, repos, 1)

	ledger := newSQLiteLedger(repos, nil, nil)
	books := NewBookService(repos.Books, ledger, repos.Tx, nil, nil, zerolog.Nop())
	users := NewUserService(repos.Users, ledger, repos.Tx, nil, 4, zerolog.Nop())

	issued, err := ledger.IssueBook(ctx, IssueBookInput{UserID: user.ID, BookID: book.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, books.SetActive(ctx, book.ID, false), domain.ErrHasActiveLoans)
	assert.ErrorIs(t, users.SetActive(ctx, user.ID, false), domain.ErrHasActiveLoans)

	_, err = ledger.ReturnBook(ctx, ReturnBookInput{LoanID: issued.Loan.ID})
	require.NoError(t, err)

	require.NoError(t, books.SetActive(ctx, book.ID, false))
	require.NoError(t, users.SetActive(ctx, user.ID, false))

	_, err = ledger.IssueBook(ctx, IssueBookInput{UserID: user.ID, BookID: book.ID})
	assert.ErrorIs(t, err, domain.ErrInactiveEntity)

	// History survives deactivation.
	all, err := ledger.ListAllLoans(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.LoanReturned, all[0].State)
}

func TestLedgerSQLite_Reports(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)
	book, user := seedBookAndUser(t, repos, 4)
	ledger := newSQLiteLedger(repos, nil, nil)

	_, err := ledger.IssueBook(ctx, IssueBookInput{
		UserID:    user.ID,
		BookID:    book.ID,
		IssueDate: datePtr("2023-12-01"),
		DueDate:   datePtr("2023-12-15"),
	})
	require.NoError(t, err)
	_, err = ledger.IssueBook(ctx, IssueBookInput{UserID: user.ID, BookID: book.ID})
	require.NoError(t, err)
	late, err := ledger.IssueBook(ctx, IssueBookInput{
		UserID:    user.ID,
		BookID:    book.ID,
		IssueDate: datePtr("2023-12-01"),
		DueDate:   datePtr("2023-12-10"),
	})
	require.NoError(t, err)
	_, err = ledger.ReturnBook(ctx, ReturnBookInput{LoanID: late.Loan.ID, ReturnDate: datePtr("2023-12-12")})
	require.NoError(t, err)

	reports := NewReportService(repos.Reports, ledger, nil, 0, nil, zerolog.Nop())

	stats, err := reports.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ActiveBooks)
	assert.Equal(t, int64(2), stats.AvailableCopies)
	assert.Equal(t, int64(1), stats.ActiveUsers)
	assert.Equal(t, int64(2), stats.ActiveLoans)
	assert.Equal(t, int64(1), stats.OverdueLoans)
	assert.Equal(t, domain.MustParseDate("2024-01-10"), stats.AsOf)

	activity, err := reports.UserActivity(ctx)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, int64(3), activity[0].TotalLoans)
	assert.Equal(t, int64(2), activity[0].ActiveLoans)
	assert.Equal(t, domain.Money(200), activity[0].TotalFines)

	overdue, err := ledger.ListOverdueLoans(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, 26, overdue[0].DaysOverdue)
}
