// Package main is the entry point for the library admin CLI.
// It manages users, the catalog and circulation directly against the
// configured database, and takes backups.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/prn-tf/alexander-library/internal/app"
	"github.com/prn-tf/alexander-library/internal/config"
	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "library-admin",
		Short:         "Administer the library",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level instead of warnings only")

	root.AddCommand(
		newUserCommand(),
		newBookCommand(),
		newLoanCommand(),
		newFineCommand(),
		newBackupCommand(),
		newKeygenCommand(),
		newVersionCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "library-admin: %s\n", describeError(err))
		os.Exit(1)
	}
}

type appFunc func(ctx context.Context, a *app.App, args []string) error

// withApp loads the configuration and opens the library for fn.
func withApp(fn appFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		// Keep stdout for command output.
		logCfg := cfg.Logging
		logCfg.Output = "stderr"
		if !verbose {
			logCfg.Level = "warn"
		}
		logger, err := logging.New(logCfg)
		if err != nil {
			return err
		}

		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		return fn(ctx, a, args)
	}
}

// describeError prefixes domain errors with their kind.
func describeError(err error) string {
	if kind := domain.Kind(err); kind != "internal" {
		return fmt.Sprintf("%s: %v", kind, err)
	}
	return err.Error()
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewDomainError(domain.ErrValidation, "invalid "+what+" id", s)
	}
	return id, nil
}

// parseOptionalDate returns nil for an empty flag value.
func parseOptionalDate(s, flag string) (*domain.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrValidation, err.Error(), flag)
	}
	return &d, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("library-admin\n")
			fmt.Printf("Version: %s\n", Version)
			fmt.Printf("Build Time: %s\n", BuildTime)
			fmt.Printf("Git Commit: %s\n", GitCommit)
		},
	}
}
