package domain

import (
	"time"
)

// LoanState is the derived status of a loan. It is never stored.
type LoanState string

const (
	LoanActive   LoanState = "active"
	LoanDueSoon  LoanState = "due_soon"
	LoanOverdue  LoanState = "overdue"
	LoanReturned LoanState = "returned"
)

// Loan records one copy of a book lent to one borrower.
// Created at issue, mutated exactly once at return, never deleted.
type Loan struct {
	ID int64 `json:"id"`

	// Reference is the receipt number handed to the borrower.
	Reference string `json:"reference"`

	BookID int64 `json:"book_id"`
	UserID int64 `json:"user_id"`

	IssueDate  Date  `json:"issue_date"`
	DueDate    Date  `json:"due_date"`
	ReturnDate *Date `json:"return_date"`

	// FineAmount is assessed at return; zero while the loan is open.
	FineAmount Money `json:"fine_amount"`

	Returned bool `json:"returned"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewLoan creates an open loan with no fine.
func NewLoan(reference string, bookID, userID int64, issueDate, dueDate Date) *Loan {
	now := time.Now().UTC()
	return &Loan{
		Reference: reference,
		BookID:    bookID,
		UserID:    userID,
		IssueDate: issueDate,
		DueDate:   dueDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsOpen reports whether the book is still out.
func (l *Loan) IsOpen() bool {
	return !l.Returned
}

// LoanDetails is a loan joined with the titles a librarian reads on screen.
type LoanDetails struct {
	Loan

	BookTitle        string `json:"book_title"`
	BookISBN         string `json:"book_isbn"`
	BorrowerUsername string `json:"borrower_username"`
	BorrowerName     string `json:"borrower_name"`
}

// LoanView is a loan with its state and fine evaluated as of a given day.
type LoanView struct {
	LoanDetails

	State       LoanState `json:"state"`
	DaysOverdue int       `json:"days_overdue"`

	// CurrentFine is the stored fine for returned loans and
	// the fine accrued so far for open ones.
	CurrentFine Money `json:"current_fine"`
	AsOf        Date  `json:"as_of"`
}
