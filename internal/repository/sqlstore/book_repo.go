package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// bookRepository implements repository.BookRepository.
type bookRepository struct {
	db *DB
}

// NewBookRepository creates a new book repository.
func NewBookRepository(db *DB) repository.BookRepository {
	return &bookRepository{db: db}
}

// Create creates a new book.
func (r *bookRepository) Create(ctx context.Context, book *domain.Book) error {
	ds := r.db.insertInto(tableBooks).Rows(goqu.Record{
		"title":            book.Title,
		"author":           book.Author,
		"category":         book.Category,
		"isbn":             book.ISBN,
		"total_copies":     book.TotalCopies,
		"available_copies": book.AvailableCopies,
		"is_active":        boolToInt(book.IsActive),
		"created_at":       formatTime(book.CreatedAt),
		"updated_at":       formatTime(book.UpdatedAt),
	})

	id, err := r.db.insert(ctx, ds)
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	book.ID = id

	return nil
}

// GetByID retrieves a book by ID.
func (r *bookRepository) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	ds := r.db.from(tableBooks).
		Select(columns("", bookColumns...)...).
		Where(goqu.C("id").Eq(id))

	var row bookRow
	if err := r.db.get(ctx, &row, ds); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get book by ID: %w", err)
	}

	return row.toDomain(), nil
}

// Update writes the descriptive fields and the active flag.
func (r *bookRepository) Update(ctx context.Context, book *domain.Book) error {
	book.UpdatedAt = time.Now().UTC()

	ds := r.db.update(tableBooks).
		Set(goqu.Record{
			"title":      book.Title,
			"author":     book.Author,
			"category":   book.Category,
			"isbn":       book.ISBN,
			"is_active":  boolToInt(book.IsActive),
			"updated_at": formatTime(book.UpdatedAt),
		}).
		Where(goqu.C("id").Eq(book.ID))

	if err := r.db.execAffecting(ctx, ds); err != nil {
		if err == repository.ErrConflict {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to update book: %w", err)
	}

	return nil
}

// SetTotalCopies sets total_copies and shifts available_copies by the same
// amount, so copies on loan stay on loan. The update is guarded in SQL so the
// total never drops below the copies currently on loan.
func (r *bookRepository) SetTotalCopies(ctx context.Context, id int64, total int) error {
	// goqu orders SET columns by name, so available_copies is assigned from
	// the old total_copies on MySQL too.
	ds := r.db.update(tableBooks).
		Set(goqu.Record{
			"available_copies": goqu.L("? - (total_copies - available_copies)", total),
			"total_copies":     total,
			"updated_at":       formatTime(time.Now()),
		}).
		Where(
			goqu.C("id").Eq(id),
			goqu.L("total_copies - available_copies <= ?", total),
		)

	if err := r.db.execAffecting(ctx, ds); err != nil {
		if err == repository.ErrConflict {
			return err
		}
		return fmt.Errorf("failed to set total copies: %w", err)
	}

	return nil
}

// AdjustAvailableCopies shifts available_copies by delta, guarded in SQL
// so the count never leaves [0, total_copies].
func (r *bookRepository) AdjustAvailableCopies(ctx context.Context, id int64, delta int) error {
	ds := r.db.update(tableBooks).
		Set(goqu.Record{
			"available_copies": goqu.L("available_copies + ?", delta),
			"updated_at":       formatTime(time.Now()),
		}).
		Where(
			goqu.C("id").Eq(id),
			goqu.L("available_copies + ? >= 0", delta),
			goqu.L("available_copies + ? <= total_copies", delta),
		)

	if err := r.db.execAffecting(ctx, ds); err != nil {
		if err == repository.ErrConflict {
			return err
		}
		return fmt.Errorf("failed to adjust available copies: %w", err)
	}

	return nil
}

// ExistsActiveISBN reports whether another active book carries isbn.
func (r *bookRepository) ExistsActiveISBN(ctx context.Context, isbn string, excludeID int64) (bool, error) {
	ds := r.db.from(tableBooks).
		Select(goqu.COUNT("*")).
		Where(
			goqu.C("isbn").Eq(isbn),
			goqu.C("is_active").Eq(1),
			goqu.C("id").Neq(excludeID),
		)

	var n int64
	if err := r.db.get(ctx, &n, ds); err != nil {
		return false, fmt.Errorf("failed to check isbn: %w", err)
	}

	return n > 0, nil
}

// List returns books ordered by title.
func (r *bookRepository) List(ctx context.Context, filter repository.BookFilter) ([]*domain.Book, error) {
	ds := r.db.from(tableBooks).
		Select(columns("", bookColumns...)...).
		Order(goqu.C("title").Asc(), goqu.C("id").Asc())

	if !filter.IncludeInactive {
		ds = ds.Where(goqu.C("is_active").Eq(1))
	}
	if filter.AvailableOnly {
		ds = ds.Where(goqu.C("available_copies").Gt(0))
	}

	var rows []bookRow
	if err := r.db.selectAll(ctx, &rows, ds); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}

	books := make([]*domain.Book, 0, len(rows))
	for i := range rows {
		books = append(books, rows[i].toDomain())
	}

	return books, nil
}

var _ repository.BookRepository = (*bookRepository)(nil)
