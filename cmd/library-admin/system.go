package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prn-tf/alexander-library/internal/app"
	"github.com/prn-tf/alexander-library/internal/pkg/crypto"
)

func newBackupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the SQLite database and upload it to the backup bucket",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
			svc, err := a.Backup(ctx)
			if err != nil {
				return err
			}
			result, err := svc.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Uploaded s3://%s/%s (%d bytes, %d ms)\n", result.Bucket, result.Key, result.Size, result.TookMS)
			return nil
		}),
	}
}

func newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a session token secret",
		Long:  "Generate a random secret for auth.token_secret (or LIBRARY_AUTH_TOKEN_SECRET).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := crypto.GenerateTokenSecret()
			if err != nil {
				return err
			}
			fmt.Println(secret)
			return nil
		},
	}
}
