package repository

import (
	"context"
)

// Repositories holds all repository instances sharing one database.
type Repositories struct {
	Books   BookRepository
	Users   UserRepository
	Loans   LoanRepository
	Reports ReportRepository
	Tx      TxManager
}

// DatabaseHealth is an interface for database health checks.
// It satisfies handler.HealthChecker.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Store is an opened database with its repositories.
type Store struct {
	Repos    *Repositories
	Database DatabaseHealth

	// Driver is the configured database driver name.
	Driver string
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.Database.Close()
}
