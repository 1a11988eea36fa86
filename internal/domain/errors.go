// Package domain contains the core circulation entities of the library.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business rule violations.
// Infrastructure faults surface as ErrPersistenceFailure.

var (
	// ===========================================
	// Circulation Errors
	// ===========================================

	// ErrBookUnavailable indicates the book has no copy left to lend.
	ErrBookUnavailable = errors.New("book unavailable")

	// ErrInactiveEntity indicates the book or borrower has been deactivated.
	ErrInactiveEntity = errors.New("entity is inactive")

	// ErrInvalidDateRange indicates a due or return date earlier than the issue date.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrAlreadyReturned indicates the loan has already been closed.
	ErrAlreadyReturned = errors.New("loan already returned")

	// ErrNotFound indicates the referenced book, borrower or loan does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPersistenceFailure indicates the store failed; the operation had no effect.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrResourceBusy indicates another workstation holds the record.
	ErrResourceBusy = errors.New("resource busy, try again")

	// ===========================================
	// Catalog and Directory Errors
	// ===========================================

	// ErrHasActiveLoans indicates a deactivation blocked by open loans.
	ErrHasActiveLoans = errors.New("has active loans")

	// ErrDuplicateISBN indicates another active book already uses the ISBN.
	ErrDuplicateISBN = errors.New("isbn already in use")

	// ErrInvalidCopyCount indicates a copy count outside the allowed range.
	ErrInvalidCopyCount = errors.New("invalid copy count")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrUserAlreadyExists indicates the username is taken.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccessDenied indicates the caller's role does not allow the operation.
	ErrAccessDenied = errors.New("access denied")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected record, e.g. "book 12".
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// WrapError wraps an error with domain context if it's not already a DomainError.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	return &DomainError{
		Err:     err,
		Message: message,
	}
}

// Kind returns the name of the first domain error kind err matches,
// or "internal" when none matches.
func Kind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrBookUnavailable, "book_unavailable"},
	{ErrInactiveEntity, "inactive_entity"},
	{ErrInvalidDateRange, "invalid_date_range"},
	{ErrAlreadyReturned, "already_returned"},
	{ErrNotFound, "not_found"},
	{ErrPersistenceFailure, "persistence_failure"},
	{ErrResourceBusy, "resource_busy"},
	{ErrHasActiveLoans, "has_active_loans"},
	{ErrDuplicateISBN, "duplicate_isbn"},
	{ErrInvalidCopyCount, "invalid_copy_count"},
	{ErrValidation, "validation"},
	{ErrUserAlreadyExists, "user_exists"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrAccessDenied, "access_denied"},
}
