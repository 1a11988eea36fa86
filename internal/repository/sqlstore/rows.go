package sqlstore

import (
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/prn-tf/alexander-library/internal/domain"
)

// columns returns goqu select expressions, qualified by alias when set.
func columns(alias string, names ...string) []interface{} {
	out := make([]interface{}, 0, len(names))
	for _, n := range names {
		if alias == "" {
			out = append(out, goqu.C(n))
			continue
		}
		out = append(out, goqu.I(alias+"."+n).As(n))
	}
	return out
}

// =============================================================================
// books
// =============================================================================

var bookColumns = []string{
	"id", "title", "author", "category", "isbn",
	"total_copies", "available_copies", "is_active", "created_at", "updated_at",
}

type bookRow struct {
	ID              int64  `db:"id"`
	Title           string `db:"title"`
	Author          string `db:"author"`
	Category        string `db:"category"`
	ISBN            string `db:"isbn"`
	TotalCopies     int    `db:"total_copies"`
	AvailableCopies int    `db:"available_copies"`
	IsActive        bool   `db:"is_active"`
	CreatedAt       string `db:"created_at"`
	UpdatedAt       string `db:"updated_at"`
}

func (r *bookRow) toDomain() *domain.Book {
	return &domain.Book{
		ID:              r.ID,
		Title:           r.Title,
		Author:          r.Author,
		Category:        r.Category,
		ISBN:            r.ISBN,
		TotalCopies:     r.TotalCopies,
		AvailableCopies: r.AvailableCopies,
		IsActive:        r.IsActive,
		CreatedAt:       parseTime(r.CreatedAt),
		UpdatedAt:       parseTime(r.UpdatedAt),
	}
}

// =============================================================================
// users
// =============================================================================

var userColumns = []string{
	"id", "username", "first_name", "last_name", "email", "phone",
	"role", "password_hash", "is_active", "created_at", "updated_at",
}

type userRow struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	FirstName    string `db:"first_name"`
	LastName     string `db:"last_name"`
	Email        string `db:"email"`
	Phone        string `db:"phone"`
	Role         string `db:"role"`
	PasswordHash string `db:"password_hash"`
	IsActive     bool   `db:"is_active"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func (r *userRow) toDomain() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Username:     r.Username,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Email:        r.Email,
		Phone:        r.Phone,
		Role:         domain.Role(r.Role),
		PasswordHash: r.PasswordHash,
		IsActive:     r.IsActive,
		CreatedAt:    parseTime(r.CreatedAt),
		UpdatedAt:    parseTime(r.UpdatedAt),
	}
}

// =============================================================================
// loans
// =============================================================================

var loanColumns = []string{
	"id", "reference", "book_id", "user_id", "issue_date", "due_date",
	"return_date", "fine_cents", "returned", "created_at", "updated_at",
}

type loanRow struct {
	ID         int64          `db:"id"`
	Reference  string         `db:"reference"`
	BookID     int64          `db:"book_id"`
	UserID     int64          `db:"user_id"`
	IssueDate  string         `db:"issue_date"`
	DueDate    string         `db:"due_date"`
	ReturnDate sql.NullString `db:"return_date"`
	FineCents  int64          `db:"fine_cents"`
	Returned   bool           `db:"returned"`
	CreatedAt  string         `db:"created_at"`
	UpdatedAt  string         `db:"updated_at"`
}

func (r *loanRow) toDomain() (*domain.Loan, error) {
	issue, err := domain.ParseDate(r.IssueDate)
	if err != nil {
		return nil, fmt.Errorf("loan %d: issue_date: %w", r.ID, err)
	}
	due, err := domain.ParseDate(r.DueDate)
	if err != nil {
		return nil, fmt.Errorf("loan %d: due_date: %w", r.ID, err)
	}

	loan := &domain.Loan{
		ID:         r.ID,
		Reference:  r.Reference,
		BookID:     r.BookID,
		UserID:     r.UserID,
		IssueDate:  issue,
		DueDate:    due,
		FineAmount: domain.Money(r.FineCents),
		Returned:   r.Returned,
		CreatedAt:  parseTime(r.CreatedAt),
		UpdatedAt:  parseTime(r.UpdatedAt),
	}

	if r.ReturnDate.Valid && r.ReturnDate.String != "" {
		ret, err := domain.ParseDate(r.ReturnDate.String)
		if err != nil {
			return nil, fmt.Errorf("loan %d: return_date: %w", r.ID, err)
		}
		loan.ReturnDate = &ret
	}

	return loan, nil
}

type loanDetailsRow struct {
	loanRow
	BookTitle         string `db:"book_title"`
	BookISBN          string `db:"book_isbn"`
	BorrowerUsername  string `db:"borrower_username"`
	BorrowerFirstName string `db:"borrower_first_name"`
	BorrowerLastName  string `db:"borrower_last_name"`
}

func (r *loanDetailsRow) toDomain() (*domain.LoanDetails, error) {
	loan, err := r.loanRow.toDomain()
	if err != nil {
		return nil, err
	}
	borrower := domain.User{
		Username:  r.BorrowerUsername,
		FirstName: r.BorrowerFirstName,
		LastName:  r.BorrowerLastName,
	}
	return &domain.LoanDetails{
		Loan:             *loan,
		BookTitle:        r.BookTitle,
		BookISBN:         r.BookISBN,
		BorrowerUsername: r.BorrowerUsername,
		BorrowerName:     borrower.FullName(),
	}, nil
}
