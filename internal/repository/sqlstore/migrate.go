package sqlstore

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
)

// Migration is one numbered schema file.
type Migration struct {
	Version int64
	Name    string
	SQL     string
}

// MigrationStatus describes a migration and whether it has run.
type MigrationStatus struct {
	Migration
	Applied bool
}

// LoadMigrations reads NNNNNN_name.up.sql files from dir in fsys, ordered by version.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []Migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: missing version prefix", name)
		}
		version, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %s: invalid version: %w", name, err)
		}

		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    strings.TrimSuffix(name, ".up.sql"),
			SQL:     string(body),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// Migrate applies every migration newer than the recorded schema version.
// It returns the number of migrations applied.
func (db *DB) Migrate(ctx context.Context, migrations []Migration) (int, error) {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return 0, err
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	db.logger.Info().Int("applied", len(applied)).Int("available", len(migrations)).Msg("checking migrations")

	count := 0
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		// DDL is not transactional on MySQL, so statements run one by one.
		for _, stmt := range splitStatements(m.SQL) {
			if _, err := db.db.ExecContext(ctx, stmt); err != nil {
				return count, fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
			}
		}

		ds := db.insertInto(tableMigrations).Rows(goqu.Record{
			"version":    m.Version,
			"applied_at": formatTime(time.Now()),
		})
		if _, err := db.exec(ctx, ds); err != nil {
			return count, fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		db.logger.Info().Int64("version", m.Version).Str("name", m.Name).Msg("applied migration")
		count++
	}

	return count, nil
}

// Status reports which migrations have been applied.
func (db *DB) Status(ctx context.Context, migrations []Migration) ([]MigrationStatus, error) {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		out = append(out, MigrationStatus{Migration: m, Applied: applied[m.Version]})
	}
	return out, nil
}

func (db *DB) ensureMigrationsTable(ctx context.Context) error {
	_, err := db.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version BIGINT NOT NULL PRIMARY KEY,
			applied_at VARCHAR(40) NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[int64]bool, error) {
	var versions []int64
	ds := db.from(tableMigrations).Select(goqu.C("version"))
	if err := db.selectAll(ctx, &versions, ds); err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	applied := make(map[int64]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// splitStatements splits a migration file on semicolons.
// Migration files must not contain semicolons inside string literals.
func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt = strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
