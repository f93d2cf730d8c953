package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kuitang/notedeck/internal/errs"
	"github.com/kuitang/notedeck/internal/mutation"
	"github.com/kuitang/notedeck/internal/notes"
)

var (
	createTitle   string
	createContent string
	createTag     string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a note",
	Long: `Create submits one note. The title needs 3 to 50 characters, content at
most 500, and the tag must be one of Todo, Work, Personal, Meeting, Shopping.`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createTitle, "title", "", "Note title")
	createCmd.Flags().StringVar(&createContent, "content", "", "Note content (markdown)")
	createCmd.Flags().StringVar(&createTag, "tag", string(notes.TagTodo), "Note tag")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	remote, err := newRemote()
	if err != nil {
		return err
	}

	form := mutation.NewForm()
	_ = form.Set(mutation.FieldTitle, createTitle)
	_ = form.Set(mutation.FieldContent, createContent)
	_ = form.Set(mutation.FieldTag, createTag)

	out := cmd.OutOrStdout()
	handler := mutation.NewHandler(remote, newCache(),
		mutation.WithNotifier(mutation.NotifierFunc(func(msg string) { fmt.Fprintln(cmd.ErrOrStderr(), msg) })),
	)
	note, err := handler.Submit(cmd.Context(), form)
	if err != nil {
		var fields notes.FieldErrors
		if mutation.IsValidation(err) && errors.As(err, &fields) {
			printFieldErrors(out, fields)
			return errs.New(errs.InvalidArgument, "note not created")
		}
		return err
	}

	fmt.Fprintf(out, "created %s (%s) %s\n", note.ID, note.Tag, note.Title)
	return nil
}
