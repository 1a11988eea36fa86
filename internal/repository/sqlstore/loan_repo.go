package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// loanRepository implements repository.LoanRepository.
type loanRepository struct {
	db *DB
}

// NewLoanRepository creates a new loan repository.
func NewLoanRepository(db *DB) repository.LoanRepository {
	return &loanRepository{db: db}
}

// Create inserts a new loan.
func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	var returnDate interface{}
	if loan.ReturnDate != nil {
		returnDate = loan.ReturnDate.String()
	}

	ds := r.db.insertInto(tableLoans).Rows(goqu.Record{
		"reference":   loan.Reference,
		"book_id":     loan.BookID,
		"user_id":     loan.UserID,
		"issue_date":  loan.IssueDate.String(),
		"due_date":    loan.DueDate.String(),
		"return_date": returnDate,
		"fine_cents":  int64(loan.FineAmount),
		"returned":    boolToInt(loan.Returned),
		"created_at":  formatTime(loan.CreatedAt),
		"updated_at":  formatTime(loan.UpdatedAt),
	})

	id, err := r.db.insert(ctx, ds)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	loan.ID = id

	return nil
}

// GetByID retrieves a loan by ID.
func (r *loanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	ds := r.db.from(tableLoans).
		Select(columns("", loanColumns...)...).
		Where(goqu.C("id").Eq(id))

	var row loanRow
	if err := r.db.get(ctx, &row, ds); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get loan by ID: %w", err)
	}

	return row.toDomain()
}

// GetDetails retrieves a loan with its book title and borrower name.
func (r *loanRepository) GetDetails(ctx context.Context, id int64) (*domain.LoanDetails, error) {
	ds := r.detailsQuery().Where(goqu.I("l.id").Eq(id))

	var row loanDetailsRow
	if err := r.db.get(ctx, &row, ds); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get loan details: %w", err)
	}

	return row.toDomain()
}

// MarkReturned closes an open loan. The returned = 0 guard makes a
// second return of the same loan a no-op reported as ErrConflict.
func (r *loanRepository) MarkReturned(ctx context.Context, id int64, returnDate domain.Date, fine domain.Money) error {
	ds := r.db.update(tableLoans).
		Set(goqu.Record{
			"return_date": returnDate.String(),
			"fine_cents":  int64(fine),
			"returned":    1,
			"updated_at":  formatTime(time.Now()),
		}).
		Where(
			goqu.C("id").Eq(id),
			goqu.C("returned").Eq(0),
		)

	if err := r.db.execAffecting(ctx, ds); err != nil {
		if err == repository.ErrConflict {
			return err
		}
		return fmt.Errorf("failed to mark loan returned: %w", err)
	}

	return nil
}

// List returns loans matching the filter.
func (r *loanRepository) List(ctx context.Context, filter repository.LoanFilter) ([]*domain.LoanDetails, error) {
	ds := r.detailsQuery()

	if filter.OpenOnly {
		ds = ds.Where(goqu.I("l.returned").Eq(0))
	}
	if filter.DueBefore != nil {
		ds = ds.Where(goqu.I("l.due_date").Lt(filter.DueBefore.String()))
	}
	if filter.DueOnOrBefore != nil {
		ds = ds.Where(goqu.I("l.due_date").Lte(filter.DueOnOrBefore.String()))
	}
	if filter.UserID != 0 {
		ds = ds.Where(goqu.I("l.user_id").Eq(filter.UserID))
	}
	if filter.BookID != 0 {
		ds = ds.Where(goqu.I("l.book_id").Eq(filter.BookID))
	}

	if filter.OrderByDueDate {
		ds = ds.Order(goqu.I("l.due_date").Asc(), goqu.I("l.id").Asc())
	} else {
		ds = ds.Order(goqu.I("l.issue_date").Desc(), goqu.I("l.id").Desc())
	}

	var rows []loanDetailsRow
	if err := r.db.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}

	loans := make([]*domain.LoanDetails, 0, len(rows))
	for i := range rows {
		d, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		loans = append(loans, d)
	}

	return loans, nil
}

// CountOpenByBook counts unreturned loans of a book.
func (r *loanRepository) CountOpenByBook(ctx context.Context, bookID int64) (int64, error) {
	return r.countOpen(ctx, goqu.C("book_id").Eq(bookID))
}

// CountOpenByUser counts unreturned loans of a borrower.
func (r *loanRepository) CountOpenByUser(ctx context.Context, userID int64) (int64, error) {
	return r.countOpen(ctx, goqu.C("user_id").Eq(userID))
}

func (r *loanRepository) countOpen(ctx context.Context, cond goqu.Expression) (int64, error) {
	ds := r.db.from(tableLoans).
		Select(goqu.COUNT("*")).
		Where(cond, goqu.C("returned").Eq(0))

	var n int64
	if err := r.db.get(ctx, &n, ds); err != nil {
		return 0, fmt.Errorf("failed to count open loans: %w", err)
	}

	return n, nil
}

func (r *loanRepository) detailsQuery() *goqu.SelectDataset {
	cols := columns("l", loanColumns...)
	cols = append(cols,
		goqu.I("b.title").As("book_title"),
		goqu.I("b.isbn").As("book_isbn"),
		goqu.I("u.username").As("borrower_username"),
		goqu.I("u.first_name").As("borrower_first_name"),
		goqu.I("u.last_name").As("borrower_last_name"),
	)

	return r.db.from(goqu.T(tableLoans).As("l")).
		Join(goqu.T(tableBooks).As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Join(goqu.T(tableUsers).As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("l.user_id")))).
		Select(cols...)
}

var _ repository.LoanRepository = (*loanRepository)(nil)
