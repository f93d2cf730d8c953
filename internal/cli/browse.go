package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuitang/notedeck/internal/errs"
	"github.com/kuitang/notedeck/internal/hydrate"
	"github.com/kuitang/notedeck/internal/listview"
	"github.com/kuitang/notedeck/internal/mutation"
	"github.com/kuitang/notedeck/internal/notes"
	"github.com/kuitang/notedeck/internal/notesapi"
	"github.com/kuitang/notedeck/internal/query"
)

var (
	browseWebURL   string
	browseDebounce time.Duration
	browseSettle   time.Duration
)

var browseCmd = &cobra.Command{
	Use:   "browse [tag]",
	Short: "Page through notes interactively",
	Long: `Browse opens a list of notes, optionally filtered by tag (All = every tag).

Type any text to search; the search runs once typing pauses. Commands:
  :next, :prev      move one page
  :page N           jump to page N
  :tag T            switch the tag filter (All clears it)
  :new T Title [| content]
                    create a note with tag T
  :refresh          apply typed search now and fetch the page again
  :quit             leave

With --web, the first page is taken from the web UI's rendered page instead
of being fetched again.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBrowse,
}

func init() {
	browseCmd.Flags().StringVar(&browseWebURL, "web", "", "Web UI base URL to hydrate the first page from")
	browseCmd.Flags().DurationVar(&browseDebounce, "debounce", searchDebounceDefault, "Search quiet period")
	browseCmd.Flags().DurationVar(&browseSettle, "settle", 30*time.Second, "Longest wait for a page after a command")
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	remote, err := newRemote()
	if err != nil {
		return err
	}
	cache := newCache()

	tag := hydrate.RouteTag(args)
	if browseWebURL != "" {
		hydrateFromWeb(ctx, cmd.ErrOrStderr(), cache, browseWebURL, tag)
	}

	s := newSession(cache, remote, tag, cmd.OutOrStdout())
	s.ctrl.Mount(ctx)
	defer s.ctrl.Unmount()

	s.settle(ctx)
	s.render()
	return s.loop(ctx, cmd.InOrStdin())
}

// hydrateFromWeb seeds cache from the web UI's page for tag. Failures are
// reported and browsing continues with an empty cache.
func hydrateFromWeb(ctx context.Context, errOut io.Writer, cache *query.Cache, base, tag string) {
	slug := notes.AllTagsSentinel
	if tag != "" {
		slug = tag
	}
	pageURL := strings.TrimRight(base, "/") + "/notes/filter/" + url.PathEscape(slug)

	snap, err := hydrate.Load(ctx, &http.Client{Timeout: apiTimeout}, pageURL)
	if err != nil {
		fmt.Fprintf(errOut, "could not hydrate from %s: %v\n", pageURL, err)
		return
	}
	n, err := hydrate.Seed(cache, snap)
	if err != nil {
		fmt.Fprintf(errOut, "could not hydrate from %s: %v\n", pageURL, err)
		return
	}
	fmt.Fprintf(errOut, "hydrated %d queries from %s\n", n, pageURL)
}

// session is one interactive browse: a list controller, a create handler on
// the same cache, and a line-oriented command loop.
type session struct {
	ctrl    *listview.Controller
	creator *mutation.Handler
	out     io.Writer
	changed chan struct{}
}

func newSession(cache *query.Cache, remote *notesapi.Client, tag string, out io.Writer) *session {
	s := &session{
		ctrl:    listview.New(cache, remote, tag, listview.WithDebounce(browseDebounce)),
		out:     out,
		changed: make(chan struct{}, 1),
	}
	s.creator = mutation.NewHandler(remote, cache,
		mutation.WithNotifier(mutation.NotifierFunc(func(msg string) { fmt.Fprintln(out, msg) })),
	)
	s.ctrl.OnChange(func(listview.View) {
		select {
		case s.changed <- struct{}{}:
		default:
		}
	})
	return s
}

func (s *session) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		quit, err := s.handle(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
		s.settle(ctx)
		s.render()
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

// handle runs one input line. Plain text is search input.
func (s *session) handle(ctx context.Context, line string) (quit bool, err error) {
	if !strings.HasPrefix(line, ":") {
		s.ctrl.Input(strings.TrimSpace(line))
		return false, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		return true, nil
	case ":next":
		if !s.ctrl.Next() {
			fmt.Fprintln(s.out, "already on the last page")
		}
	case ":prev":
		if !s.ctrl.Prev() {
			fmt.Fprintln(s.out, "already on the first page")
		}
	case ":page":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: :page N")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return false, fmt.Errorf("page must be a positive number")
		}
		s.ctrl.SetPage(n)
	case ":tag":
		s.ctrl.SetTag(hydrate.RouteTag(fields[1:]))
	case ":refresh":
		s.ctrl.FlushSearch()
		s.ctrl.Refetch()
	case ":new":
		return false, s.create(ctx, strings.TrimSpace(strings.TrimPrefix(line, ":new")))
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}

// create parses "Tag Title [| content]" and submits it.
func (s *session) create(ctx context.Context, spec string) error {
	tag, rest, _ := strings.Cut(spec, " ")
	title, content, _ := strings.Cut(rest, "|")

	form := mutation.NewForm()
	for field, value := range map[mutation.Field]string{
		mutation.FieldTag:     tag,
		mutation.FieldTitle:   strings.TrimSpace(title),
		mutation.FieldContent: strings.TrimSpace(content),
	} {
		if err := form.Set(field, value); err != nil {
			return err
		}
	}

	note, err := s.creator.Submit(ctx, form)
	if err != nil {
		var fields notes.FieldErrors
		if mutation.IsValidation(err) && errors.As(err, &fields) {
			printFieldErrors(s.out, fields)
			return errs.New(errs.InvalidArgument, "note not created")
		}
		return err
	}
	fmt.Fprintf(s.out, "created %s (%s)\n", note.ID, note.Tag)
	return nil
}

// settle waits until pending search input is committed and the current page
// has either data or an error, or until the settle timeout passes.
func (s *session) settle(ctx context.Context) {
	timer := time.NewTimer(browseSettle)
	defer timer.Stop()
	for !settled(s.ctrl.View()) {
		select {
		case <-s.changed:
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func settled(v listview.View) bool {
	if v.Query.Search != v.RawSearch || v.Fetching {
		return false
	}
	return v.Err != nil || !(v.Loading || v.Placeholder)
}

func (s *session) render() {
	writeView(s.out, s.ctrl.View())
}

func writeView(w io.Writer, v listview.View) {
	tag := v.Query.Tag
	if tag == "" {
		tag = notes.AllTagsSentinel
	}
	header := fmt.Sprintf("[%s] page %d", tag, v.Query.Page)
	if v.TotalPages > 0 {
		header += fmt.Sprintf("/%d", v.TotalPages)
	}
	if v.Query.Search != "" {
		header += fmt.Sprintf("  search %q", v.Query.Search)
	}
	if v.Placeholder {
		header += "  (previous results)"
	}
	fmt.Fprintln(w, header)

	switch {
	case v.Loading:
		fmt.Fprintln(w, "loading...")
	case v.NotFound:
		fmt.Fprintln(w, "Tasks not found")
	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, n := range v.Notes {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", n.ID, n.Tag, n.CreatedAt.Format("Jan 2"), n.Title)
		}
		_ = tw.Flush()
	}
	if v.Err != nil {
		fmt.Fprintf(w, "error: %s (:refresh to retry)\n", errs.MessageOf(v.Err))
	}
}

func printFieldErrors(w io.Writer, fields notes.FieldErrors) {
	for _, name := range []string{string(mutation.FieldTitle), string(mutation.FieldContent), string(mutation.FieldTag)} {
		if msg, ok := fields[name]; ok {
			fmt.Fprintf(w, "  %s: %s\n", name, msg)
		}
	}
}
