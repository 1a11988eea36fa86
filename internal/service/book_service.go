package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/lock"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// ActiveLoanChecker answers whether a record is still referenced by an open loan.
type ActiveLoanChecker interface {
	BookHasActiveLoans(ctx context.Context, bookID int64) (bool, error)
	BorrowerHasActiveLoans(ctx context.Context, userID int64) (bool, error)
}

// BookService manages the catalog. Copy and withdrawal changes take the
// same per-book lock as the ledger.
type BookService struct {
	books  repository.BookRepository
	loans  ActiveLoanChecker
	tx     repository.TxManager
	locker lock.Locker
	retry  lock.RetryPolicy
	cache  repository.Cache
	logger zerolog.Logger
}

// NewBookService creates a new BookService. locker and cache may be nil.
func NewBookService(books repository.BookRepository, loans ActiveLoanChecker, tx repository.TxManager, locker lock.Locker, cache repository.Cache, logger zerolog.Logger) *BookService {
	if locker == nil {
		locker = lock.NewNoOpLocker()
	}
	return &BookService{
		books:  books,
		loans:  loans,
		tx:     tx,
		locker: locker,
		retry:  lock.DefaultRetryPolicy,
		cache:  cache,
		logger: logger.With().Str("service", "book").Logger(),
	}
}

// CreateBookInput contains the data needed to catalog a book.
type CreateBookInput struct {
	Title       string
	Author      string
	Category    string
	ISBN        string
	TotalCopies int
}

// CreateBook adds a book with every copy on the shelf.
func (s *BookService) CreateBook(ctx context.Context, input CreateBookInput) (*domain.Book, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Author = strings.TrimSpace(input.Author)
	input.Category = strings.TrimSpace(input.Category)
	input.ISBN = strings.TrimSpace(input.ISBN)

	if err := validateBookFields(input.Title, input.Author, input.Category, input.ISBN); err != nil {
		return nil, err
	}
	if input.TotalCopies < 0 {
		return nil, domain.NewDomainError(domain.ErrInvalidCopyCount, "total copies must not be negative", "")
	}

	book := domain.NewBook(input.Title, input.Author, input.Category, input.ISBN, input.TotalCopies)

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkISBN(ctx, input.ISBN, 0); err != nil {
			return err
		}
		if err := s.books.Create(ctx, book); err != nil {
			return persistenceError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dropReportCache(ctx, s.cache, s.logger)

	s.logger.Info().
		Int64("book_id", book.ID).
		Str("isbn", book.ISBN).
		Int("total_copies", book.TotalCopies).
		Msg("book created")

	return book, nil
}

// UpdateBookInput contains new descriptive fields for a book.
type UpdateBookInput struct {
	ID       int64
	Title    string
	Author   string
	Category string
	ISBN     string
}

// UpdateBook changes a book's descriptive fields. Copy counts are untouched.
func (s *BookService) UpdateBook(ctx context.Context, input UpdateBookInput) (*domain.Book, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Author = strings.TrimSpace(input.Author)
	input.Category = strings.TrimSpace(input.Category)
	input.ISBN = strings.TrimSpace(input.ISBN)

	if err := validateBookFields(input.Title, input.Author, input.Category, input.ISBN); err != nil {
		return nil, err
	}

	var book *domain.Book
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		book, err = s.books.GetByID(ctx, input.ID)
		if err != nil {
			return notFound(err, fmt.Sprintf("book %d", input.ID))
		}
		if book.IsActive {
			if err := s.checkISBN(ctx, input.ISBN, book.ID); err != nil {
				return err
			}
		}

		book.Title = input.Title
		book.Author = input.Author
		book.Category = input.Category
		book.ISBN = input.ISBN

		if err := s.books.Update(ctx, book); err != nil {
			return notFound(err, fmt.Sprintf("book %d", book.ID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("book_id", book.ID).Msg("book updated")
	return book, nil
}

// SetTotalCopies changes how many copies the library owns. Copies on loan
// stay on loan, so total may not drop below them; the shelf count becomes
// total minus copies on loan.
func (s *BookService) SetTotalCopies(ctx context.Context, bookID int64, total int) (*domain.Book, error) {
	if total < 0 {
		return nil, domain.NewDomainError(domain.ErrInvalidCopyCount, "total copies must not be negative", fmt.Sprintf("book %d", bookID))
	}

	var book *domain.Book
	err := s.withBookLock(ctx, bookID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			current, err := s.books.GetByID(ctx, bookID)
			if err != nil {
				return notFound(err, fmt.Sprintf("book %d", bookID))
			}
			if onLoan := current.CopiesOnLoan(); total < onLoan {
				return tooFewCopies(bookID, onLoan)
			}

			if err := s.books.SetTotalCopies(ctx, bookID, total); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return s.copyCountConflict(ctx, bookID)
				}
				return persistenceError(err)
			}

			book, err = s.books.GetByID(ctx, bookID)
			if err != nil {
				return persistenceError(err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	dropReportCache(ctx, s.cache, s.logger)

	s.logger.Info().
		Int64("book_id", bookID).
		Int("total_copies", book.TotalCopies).
		Int("available_copies", book.AvailableCopies).
		Msg("book copies updated")

	return book, nil
}

// copyCountConflict explains a guarded copy update that matched no row.
func (s *BookService) copyCountConflict(ctx context.Context, bookID int64) error {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return notFound(err, fmt.Sprintf("book %d", bookID))
	}
	return tooFewCopies(bookID, book.CopiesOnLoan())
}

func tooFewCopies(bookID int64, onLoan int) error {
	return domain.NewDomainError(domain.ErrInvalidCopyCount,
		fmt.Sprintf("%d copies are on loan", onLoan), fmt.Sprintf("book %d", bookID))
}

// SetActive withdraws or restores a book. A book with copies out on loan
// cannot be withdrawn.
func (s *BookService) SetActive(ctx context.Context, bookID int64, active bool) error {
	err := s.withBookLock(ctx, bookID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			book, err := s.books.GetByID(ctx, bookID)
			if err != nil {
				return notFound(err, fmt.Sprintf("book %d", bookID))
			}
			if book.IsActive == active {
				return nil
			}

			if active {
				if err := s.checkISBN(ctx, book.ISBN, book.ID); err != nil {
					return err
				}
			} else {
				busy, err := s.loans.BookHasActiveLoans(ctx, bookID)
				if err != nil {
					return err
				}
				if busy {
					return domain.NewDomainError(domain.ErrHasActiveLoans, "return all copies before withdrawing", fmt.Sprintf("book %d", bookID))
				}
			}

			book.IsActive = active
			if err := s.books.Update(ctx, book); err != nil {
				return notFound(err, fmt.Sprintf("book %d", bookID))
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	dropReportCache(ctx, s.cache, s.logger)

	s.logger.Info().Int64("book_id", bookID).Bool("is_active", active).Msg("book active status updated")
	return nil
}

// GetBook retrieves a book by ID.
func (s *BookService) GetBook(ctx context.Context, bookID int64) (*domain.Book, error) {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("book %d", bookID))
	}
	return book, nil
}

// SearchBooksInput narrows a catalog search.
type SearchBooksInput struct {
	// Query matches title, author, category or ISBN, ignoring case.
	// Empty lists everything.
	Query           string
	IncludeInactive bool
	AvailableOnly   bool
}

// SearchBooks lists books matching the query, ordered by title.
func (s *BookService) SearchBooks(ctx context.Context, input SearchBooksInput) ([]*domain.Book, error) {
	books, err := s.books.List(ctx, repository.BookFilter{
		IncludeInactive: input.IncludeInactive,
		AvailableOnly:   input.AvailableOnly,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list books")
		return nil, persistenceError(err)
	}

	// A Caser keeps state, so each search folds with its own.
	fold := cases.Fold()
	query := fold.String(strings.TrimSpace(input.Query))
	if query == "" {
		return books, nil
	}

	matched := make([]*domain.Book, 0, len(books))
	for _, b := range books {
		for _, field := range []string{b.Title, b.Author, b.Category, b.ISBN} {
			if strings.Contains(fold.String(field), query) {
				matched = append(matched, b)
				break
			}
		}
	}
	return matched, nil
}

func (s *BookService) withBookLock(ctx context.Context, bookID int64, fn func(ctx context.Context) error) error {
	return withRecordLock(ctx, s.locker, lock.Keys.Book(bookID), DefaultLockTTL, s.retry, fn)
}

func (s *BookService) checkISBN(ctx context.Context, isbn string, excludeID int64) error {
	exists, err := s.books.ExistsActiveISBN(ctx, isbn, excludeID)
	if err != nil {
		return persistenceError(err)
	}
	if exists {
		return domain.NewDomainError(domain.ErrDuplicateISBN, "another active book uses this ISBN", isbn)
	}
	return nil
}

func validateBookFields(title, author, category, isbn string) error {
	var missing []string
	if title == "" {
		missing = append(missing, "title")
	}
	if author == "" {
		missing = append(missing, "author")
	}
	if category == "" {
		missing = append(missing, "category")
	}
	if isbn == "" {
		missing = append(missing, "isbn")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

var _ ActiveLoanChecker = (*LoanService)(nil)
