package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/prn-tf/alexander-library/internal/app"
	"github.com/prn-tf/alexander-library/internal/service"
)

func newBookCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage the catalog",
	}
	cmd.AddCommand(newBookAddCommand(), newBookListCommand())
	return cmd
}

func newBookAddCommand() *cobra.Command {
	var input service.CreateBookInput

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Catalog a book",
		Example: `  library-admin book add --title "Dune" --author "Frank Herbert" --category Fiction --isbn 978-0441013593 --copies 3`,
		Args:    cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
			book, err := a.Books.CreateBook(ctx, input)
			if err != nil {
				return err
			}
			fmt.Printf("Added %q with ID %d (%d copies)\n", book.Title, book.ID, book.TotalCopies)
			return nil
		}),
	}

	f := cmd.Flags()
	f.StringVar(&input.Title, "title", "", "title")
	f.StringVar(&input.Author, "author", "", "author")
	f.StringVar(&input.Category, "category", "", "category")
	f.StringVar(&input.ISBN, "isbn", "", "ISBN, unique among active books")
	f.IntVar(&input.TotalCopies, "copies", 1, "number of copies")
	for _, name := range []string{"title", "author", "category", "isbn"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newBookListCommand() *cobra.Command {
	var input service.SearchBooksInput

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List or search the catalog",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
			books, err := a.Books.SearchBooks(ctx, input)
			if err != nil {
				return err
			}

			w := newTable(os.Stdout)
			fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tCATEGORY\tISBN\tAVAILABLE\tACTIVE")
			for _, b := range books {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d/%d\t%t\n",
					b.ID, b.Title, b.Author, b.Category, b.ISBN, b.AvailableCopies, b.TotalCopies, b.IsActive)
			}
			return w.Flush()
		}),
	}

	f := cmd.Flags()
	f.StringVarP(&input.Query, "query", "q", "", "match title, author, category or ISBN")
	f.BoolVar(&input.AvailableOnly, "available", false, "only books with copies on the shelf")
	f.BoolVar(&input.IncludeInactive, "include-withdrawn", false, "include withdrawn books")
	return cmd
}
