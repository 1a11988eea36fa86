// Package mysql opens a MySQL or MariaDB circulation database.
package mysql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/config"
	"github.com/prn-tf/alexander-library/internal/repository/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DriverConfig converts the database settings into a driver configuration.
func DriverConfig(cfg config.DatabaseConfig) *gomysql.Config {
	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.Loc = time.UTC
	mc.Timeout = 10 * time.Second

	// Guarded updates compare matched rows, not changed rows.
	mc.ClientFoundRows = true
	return mc
}

// Open connects to MySQL and wraps the pool for the repositories.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*sqlstore.DB, error) {
	connector, err := gomysql.NewConnector(DriverConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to configure MySQL connector: %w", err)
	}

	sqlDB := sql.OpenDB(connector)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping MySQL database: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Int("max_conns", cfg.MaxOpenConns).
		Msg("connected to MySQL")

	return sqlstore.New(sqlDB, sqlstore.DriverMySQL, logger)
}

// Migrations returns the embedded MySQL schema migrations.
func Migrations() ([]sqlstore.Migration, error) {
	return sqlstore.LoadMigrations(migrationsFS, "migrations")
}
