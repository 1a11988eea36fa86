// Package sqlstore implements the repositories on database/sql.
// Queries are built with goqu so one implementation serves SQLite,
// PostgreSQL and MySQL; rows are scanned with sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/repository"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Table names.
const (
	tableBooks      = "books"
	tableUsers      = "users"
	tableLoans      = "loans"
	tableMigrations = "schema_migrations"
)

// DB wraps a sqlx connection with the goqu dialect of its driver.
type DB struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	driver  string
	logger  zerolog.Logger
	closers []func()
}

// New wraps an opened *sql.DB. driver is one of the Driver constants.
func New(sqlDB *sql.DB, driver string, logger zerolog.Logger) (*DB, error) {
	var dialect, sqlxName string
	switch driver {
	case DriverSQLite:
		dialect, sqlxName = "sqlite3", "sqlite"
	case DriverPostgres:
		dialect, sqlxName = "postgres", "pgx"
	case DriverMySQL:
		dialect, sqlxName = "mysql", "mysql"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	return &DB{
		db:      sqlx.NewDb(sqlDB, sqlxName),
		dialect: goqu.Dialect(dialect),
		driver:  driver,
		logger:  logger.With().Str("component", "sqlstore").Logger(),
	}, nil
}

// Driver returns the driver name.
func (db *DB) Driver() string {
	return db.driver
}

// OnClose registers fn to run after the connection is closed.
func (db *DB) OnClose(fn func()) {
	db.closers = append(db.closers, fn)
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.logger.Info().Str("driver", db.driver).Msg("closing database connection")
	err := db.db.Close()
	for _, fn := range db.closers {
		fn()
	}
	return err
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Health checks the database connection health.
func (db *DB) Health(ctx context.Context) error {
	return db.Ping(ctx)
}

// SQL returns the underlying *sql.DB.
func (db *DB) SQL() *sql.DB {
	return db.db.DB
}

// Repositories builds every repository on this database.
func (db *DB) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Books:   NewBookRepository(db),
		Users:   NewUserRepository(db),
		Loans:   NewLoanRepository(db),
		Reports: NewReportRepository(db),
		Tx:      db,
	}
}

// =============================================================================
// Transactions
// =============================================================================

type txKey struct{}

// WithTx executes fn within a transaction carried by the context.
// If fn returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// conn returns the transaction in ctx, or the pool.
func (db *DB) conn(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db.db
}

var _ repository.TxManager = (*DB)(nil)
var _ repository.DatabaseHealth = (*DB)(nil)

// =============================================================================
// Query helpers
// =============================================================================

type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

func (db *DB) from(table interface{}) *goqu.SelectDataset {
	return db.dialect.From(table).Prepared(true)
}

func (db *DB) insertInto(table string) *goqu.InsertDataset {
	return db.dialect.Insert(table).Prepared(true)
}

func (db *DB) update(table string) *goqu.UpdateDataset {
	return db.dialect.Update(table).Prepared(true)
}

func (db *DB) get(ctx context.Context, dest interface{}, b sqlBuilder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return sqlx.GetContext(ctx, db.conn(ctx), dest, query, args...)
}

func (db *DB) selectAll(ctx context.Context, dest interface{}, b sqlBuilder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return sqlx.SelectContext(ctx, db.conn(ctx), dest, query, args...)
}

func (db *DB) exec(ctx context.Context, b sqlBuilder) (sql.Result, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return db.conn(ctx).ExecContext(ctx, query, args...)
}

// execAffecting runs an update and returns ErrConflict when no row matched.
func (db *DB) execAffecting(ctx context.Context, b sqlBuilder) error {
	result, err := db.exec(ctx, b)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return repository.ErrConflict
	}
	return nil
}

// insert runs ds and returns the generated id.
// PostgreSQL has no LastInsertId, so it uses RETURNING.
func (db *DB) insert(ctx context.Context, ds *goqu.InsertDataset) (int64, error) {
	if db.driver == DriverPostgres {
		query, args, err := ds.Returning("id").ToSQL()
		if err != nil {
			return 0, fmt.Errorf("failed to build query: %w", err)
		}
		var id int64
		if err := db.conn(ctx).QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	result, err := db.exec(ctx, ds)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// =============================================================================
// Value conversion
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
