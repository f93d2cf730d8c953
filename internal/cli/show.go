package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kuitang/notedeck/internal/errs"
	"github.com/kuitang/notedeck/internal/notesapi"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, err := newRemote()
		if err != nil {
			return err
		}

		id := args[0]
		cache := newCache()
		key := notesapi.NoteKey(id)
		if _, err := cache.Fetch(cmd.Context(), key, notesapi.NoteFetcher(remote, id)); err != nil {
			return err
		}
		note, ok := notesapi.NoteFromEntry(cache.Read(key))
		if !ok || note == nil {
			return errs.New(errs.Internal, "unexpected note value")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n[%s] %s  %s\n", note.Title, note.Tag, note.CreatedAt.Format("Jan 2, 2006 15:04"), note.ID)
		if note.Content != "" {
			fmt.Fprintf(out, "\n%s\n", note.Content)
		}
		return nil
	},
}
