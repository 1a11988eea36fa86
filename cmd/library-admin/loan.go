package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/prn-tf/alexander-library/internal/app"
	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/service"
)

func newLoanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loan",
		Short: "Issue and return books",
	}
	cmd.AddCommand(newLoanIssueCommand(), newLoanReturnCommand(), newLoanOverdueCommand())
	return cmd
}

func newLoanIssueCommand() *cobra.Command {
	var (
		userRef   string
		bookID    int64
		issueDate string
		dueDate   string
	)

	cmd := &cobra.Command{
		Use:     "issue",
		Short:   "Lend a copy of a book",
		Example: "  library-admin loan issue --user ada --book 12\n  library-admin loan issue --user 7 --book 12 --due 2024-02-01",
		Args:    cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
			user, err := lookupUser(ctx, a, userRef)
			if err != nil {
				return err
			}
			input := service.IssueBookInput{UserID: user.ID, BookID: bookID}
			if input.IssueDate, err = parseOptionalDate(issueDate, "--issued"); err != nil {
				return err
			}
			if input.DueDate, err = parseOptionalDate(dueDate, "--due"); err != nil {
				return err
			}

			out, err := a.Loans.IssueBook(ctx, input)
			if err != nil {
				return err
			}
			fmt.Printf("Loan %d (%s) issued to %s, due %s. %d copies left.\n",
				out.Loan.ID, out.Loan.Reference, user.Username, out.Loan.DueDate, out.AvailableCopies)
			return nil
		}),
	}

	f := cmd.Flags()
	f.StringVar(&userRef, "user", "", "borrower id or username")
	f.Int64Var(&bookID, "book", 0, "book id")
	f.StringVar(&issueDate, "issued", "", "issue date YYYY-MM-DD (default today)")
	f.StringVar(&dueDate, "due", "", "due date YYYY-MM-DD (default issue date plus the loan period)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("book")
	return cmd
}

func newLoanReturnCommand() *cobra.Command {
	var returnDate string

	cmd := &cobra.Command{
		Use:   "return <loan-id>",
		Short: "Record a returned book and assess its fine",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
			id, err := parseID(args[0], "loan")
			if err != nil {
				return err
			}
			date, err := parseOptionalDate(returnDate, "--date")
			if err != nil {
				return err
			}

			out, err := a.Loans.ReturnBook(ctx, service.ReturnBookInput{LoanID: id, ReturnDate: date})
			if err != nil {
				return err
			}
			if out.DaysOverdue > 0 {
				fmt.Printf("Loan %d returned %d day(s) late, fine %s\n", id, out.DaysOverdue, out.Loan.FineAmount)
			} else {
				fmt.Printf("Loan %d returned on time\n", id)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&returnDate, "date", "", "return date YYYY-MM-DD (default today)")
	return cmd
}

func newLoanOverdueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List overdue loans, most overdue first",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
			views, err := a.Loans.ListOverdueLoans(ctx)
			if err != nil {
				return err
			}
			return printLoans(os.Stdout, views)
		}),
	}
}

func printLoans(out io.Writer, views []*domain.LoanView) error {
	w := newTable(out)
	fmt.Fprintln(w, "ID\tBOOK\tBORROWER\tISSUED\tDUE\tSTATE\tDAYS LATE\tFINE")
	for _, v := range views {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			v.ID, v.BookTitle, v.BorrowerUsername, v.IssueDate, v.DueDate, v.State, v.DaysOverdue, v.CurrentFine)
	}
	return w.Flush()
}

func newFineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fine",
		Short: "Inspect fines",
	}

	var asOf string
	preview := &cobra.Command{
		Use:   "preview <loan-id>",
		Short: "Show the fine a loan would carry if returned on a given day",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
			id, err := parseID(args[0], "loan")
			if err != nil {
				return err
			}
			date, err := parseOptionalDate(asOf, "--as-of")
			if err != nil {
				return err
			}

			view, err := a.Loans.PreviewFine(ctx, id, date)
			if err != nil {
				return err
			}
			fmt.Printf("Loan %d (%s, %s) as of %s: %s, %d day(s) late, fine %s\n",
				view.ID, view.BookTitle, view.BorrowerUsername, view.AsOf, view.State, view.DaysOverdue, view.CurrentFine)
			return nil
		}),
	}
	preview.Flags().StringVar(&asOf, "as-of", "", "evaluation date YYYY-MM-DD (default today)")

	cmd.AddCommand(preview)
	return cmd
}
