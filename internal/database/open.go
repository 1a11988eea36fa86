// Package database opens the configured backend and its migrations.
package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/config"
	"github.com/prn-tf/alexander-library/internal/repository"
	"github.com/prn-tf/alexander-library/internal/repository/mysql"
	"github.com/prn-tf/alexander-library/internal/repository/postgres"
	"github.com/prn-tf/alexander-library/internal/repository/sqlite"
	"github.com/prn-tf/alexander-library/internal/repository/sqlstore"
)

// Open connects to the database selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*sqlstore.DB, error) {
	switch cfg.Driver {
	case sqlstore.DriverSQLite:
		sqliteCfg := sqlite.DefaultConfig(cfg.Path)
		if cfg.JournalMode != "" {
			sqliteCfg.JournalMode = cfg.JournalMode
		}
		if cfg.BusyTimeout > 0 {
			sqliteCfg.BusyTimeout = cfg.BusyTimeout
		}
		if cfg.CacheSize != 0 {
			sqliteCfg.CacheSize = cfg.CacheSize
		}
		if cfg.SynchronousMode != "" {
			sqliteCfg.SynchronousMode = cfg.SynchronousMode
		}
		return sqlite.Open(ctx, sqliteCfg, logger)
	case sqlstore.DriverPostgres:
		return postgres.Open(ctx, cfg, logger)
	case sqlstore.DriverMySQL:
		return mysql.Open(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrations returns the schema migrations for driver.
func Migrations(driver string) ([]sqlstore.Migration, error) {
	switch driver {
	case sqlstore.DriverSQLite:
		return sqlite.Migrations()
	case sqlstore.DriverPostgres:
		return postgres.Migrations()
	case sqlstore.DriverMySQL:
		return mysql.Migrations()
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenStore opens the database, applies migrations when cfg.AutoMigrate is
// set and returns the repositories.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.Store, *sqlstore.DB, error) {
	db, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	if cfg.AutoMigrate {
		migrations, err := Migrations(cfg.Driver)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if _, err := db.Migrate(ctx, migrations); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &repository.Store{
		Repos:    db.Repositories(),
		Database: db,
		Driver:   cfg.Driver,
	}, db, nil
}
