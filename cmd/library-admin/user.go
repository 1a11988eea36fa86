package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/prn-tf/alexander-library/internal/app"
	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/pkg/crypto"
	"github.com/prn-tf/alexander-library/internal/service"
)

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCommand(), newUserListCommand(), newUserDeactivateCommand())
	return cmd
}

func newUserCreateCommand() *cobra.Command {
	var (
		input    service.CreateUserInput
		role     string
		generate bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Example: "  library-admin user create --username libby --email libby@example.com --role librarian\n" +
			"  library-admin user create --username ada --email ada@example.com --generate-password",
		Args: cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			input.Role = r

			switch {
			case generate:
				input.Password, err = crypto.GeneratePassword(crypto.DefaultPasswordLength)
			default:
				input.Password, err = promptNewPassword(input.Username)
			}
			if err != nil {
				return err
			}

			out, err := a.Users.Create(ctx, input)
			if err != nil {
				return err
			}

			fmt.Printf("Created %s %q with ID %d\n", out.User.Role, out.User.Username, out.User.ID)
			if generate {
				fmt.Printf("Initial password: %s\n", input.Password)
			}
			return nil
		}),
	}

	f := cmd.Flags()
	f.StringVar(&input.Username, "username", "", "login name (3-255 characters)")
	f.StringVar(&input.Email, "email", "", "email address")
	f.StringVar(&input.FirstName, "first-name", "", "first name")
	f.StringVar(&input.LastName, "last-name", "", "last name")
	f.StringVar(&input.Phone, "phone", "", "phone number")
	f.StringVar(&role, "role", string(domain.RoleStudent), "student, faculty or librarian")
	f.BoolVar(&generate, "generate-password", false, "generate a random password and print it")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// promptNewPassword reads a password twice from the terminal without echo.
func promptNewPassword(username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal, use --generate-password")
	}

	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return strings.TrimSpace(string(first)), nil
}

func newUserListCommand() *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
			users, err := a.Users.List(ctx, activeOnly)
			if err != nil {
				return err
			}

			w := newTable(os.Stdout)
			fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tEMAIL\tROLE\tACTIVE")
			for _, u := range users {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\n", u.ID, u.Username, u.FullName(), u.Email, u.Role, u.IsActive)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().BoolVar(&activeOnly, "active-only", false, "hide deactivated accounts")
	return cmd
}

func newUserDeactivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id|username>",
		Short: "Deactivate an account with no open loans",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
			user, err := lookupUser(ctx, a, args[0])
			if err != nil {
				return err
			}
			if err := a.Users.SetActive(ctx, user.ID, false); err != nil {
				return err
			}
			fmt.Printf("Deactivated %q (ID %d)\n", user.Username, user.ID)
			return nil
		}),
	}
}

func lookupUser(ctx context.Context, a *app.App, ref string) (*domain.User, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return a.Users.GetByID(ctx, id)
	}
	return a.Users.GetByUsername(ctx, ref)
}
