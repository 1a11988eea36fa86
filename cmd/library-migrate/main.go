// Package main is the entry point for the library schema migration tool.
// It applies the embedded migrations of the configured database driver.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/prn-tf/alexander-library/internal/config"
	"github.com/prn-tf/alexander-library/internal/database"
	"github.com/prn-tf/alexander-library/internal/logging"
	"github.com/prn-tf/alexander-library/internal/repository/sqlstore"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "library-migrate",
		Short:         "Manage the library database schema",
		Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, db *sqlstore.DB, migrations []sqlstore.Migration) error {
				n, err := db.Migrate(ctx, migrations)
				if err != nil {
					return err
				}
				fmt.Printf("applied %d migration(s)\n", n)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show which migrations have been applied",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, db *sqlstore.DB, migrations []sqlstore.Migration) error {
				statuses, err := db.Status(ctx, migrations)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
				for _, s := range statuses {
					fmt.Fprintf(w, "%06d\t%s\t%t\n", s.Version, s.Name, s.Applied)
				}
				return w.Flush()
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, db *sqlstore.DB, migrations []sqlstore.Migration) error {
				statuses, err := db.Status(ctx, migrations)
				if err != nil {
					return err
				}
				fmt.Println(schemaVersion(statuses))
				return nil
			}),
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "library-migrate: %v\n", err)
		os.Exit(1)
	}
}

// schemaVersion returns the highest applied version, or 0.
func schemaVersion(statuses []sqlstore.MigrationStatus) int64 {
	var v int64
	for _, s := range statuses {
		if s.Applied && s.Version > v {
			v = s.Version
		}
	}
	return v
}

type migrateFunc func(ctx context.Context, db *sqlstore.DB, migrations []sqlstore.Migration) error

// withDB opens the configured database for fn. Migrations are never
// applied implicitly here.
func withDB(fn migrateFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Logging)
		if err != nil {
			return err
		}

		migrations, err := database.Migrations(cfg.Database.Driver)
		if err != nil {
			return err
		}

		db, err := database.Open(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		return fn(ctx, db, migrations)
	}
}
