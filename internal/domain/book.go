package domain

import (
	"time"
)

// Book is a catalog title with a pool of interchangeable copies.
type Book struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Category string `json:"category"`

	// ISBN is unique among active books.
	ISBN string `json:"isbn"`

	// TotalCopies is the number of physical copies owned.
	TotalCopies int `json:"total_copies"`

	// AvailableCopies is the number of copies on the shelf.
	// Always 0 <= AvailableCopies <= TotalCopies.
	AvailableCopies int `json:"available_copies"`

	// IsActive is false once the book has been soft-deleted.
	IsActive bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBook creates an active book with every copy on the shelf.
func NewBook(title, author, category, isbn string, copies int) *Book {
	now := time.Now().UTC()
	return &Book{
		Title:           title,
		Author:          author,
		Category:        category,
		ISBN:            isbn,
		TotalCopies:     copies,
		AvailableCopies: copies,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// CopiesOnLoan returns the number of copies currently lent out.
func (b *Book) CopiesOnLoan() int {
	return b.TotalCopies - b.AvailableCopies
}

// CanLend reports whether a copy can be issued right now.
func (b *Book) CanLend() bool {
	return b.IsActive && b.AvailableCopies > 0
}
