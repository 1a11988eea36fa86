// Package service provides the business logic of the library: the loan
// ledger, the catalog, the user directory and the reports.
package service

import (
	"errors"
	"fmt"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// Input validation errors. All match domain.ErrValidation.
var (
	ErrInvalidPassword = fmt.Errorf("%w: password must be at least 8 characters", domain.ErrValidation)
	ErrInvalidUsername = fmt.Errorf("%w: username must be 3-255 characters", domain.ErrValidation)
	ErrInvalidEmail    = fmt.Errorf("%w: invalid email format", domain.ErrValidation)
	ErrMissingField    = fmt.Errorf("%w: required field is empty", domain.ErrValidation)
)

// persistenceError wraps an infrastructure failure so callers can match
// domain.ErrPersistenceFailure while the cause stays in the message.
func persistenceError(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
}

// notFound maps repository.ErrNotFound to a domain error naming the record,
// and anything else to a persistence failure.
func notFound(err error, resource string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NewDomainError(domain.ErrNotFound, "no such record", resource)
	}
	return persistenceError(err)
}

// isDomainError reports whether err already carries a domain kind.
func isDomainError(err error) bool {
	return domain.Kind(err) != "internal"
}
