// Package cli implements notesctl, a terminal client for the notes service
// that browses through the same query cache and list controller as the web UI.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuitang/notedeck/internal/debounce"
	"github.com/kuitang/notedeck/internal/notesapi"
	"github.com/kuitang/notedeck/internal/obs"
	"github.com/kuitang/notedeck/internal/query"
)

const defaultAPIURL = "http://localhost:8080/api"

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var (
	apiURL     string
	apiTimeout time.Duration
	staleTime  time.Duration
	retries    int
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "notesctl",
	Short: "Browse and create notes from the terminal",
	Long: `notesctl talks to the remote notes service. Lists are read through a local
query cache, so pages already seen come back instantly and a created note
refreshes every list it could appear in.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		obs.Init()
		obs.SetLevel(obs.ParseLevel(logLevel))
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&apiURL, "api", envOr("NOTES_API_URL", defaultAPIURL), "Notes service base URL")
	flags.DurationVar(&apiTimeout, "timeout", envDuration("NOTES_API_TIMEOUT", notesapi.DefaultTimeout), "Per-request timeout")
	flags.DurationVar(&staleTime, "stale-time", envDuration("QUERY_STALE_TIME", query.DefaultStaleTime), "How long cached lists stay fresh")
	flags.IntVar(&retries, "retries", query.DefaultRetryCount, "Retries for failed reads")
	flags.StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func newRemote() (*notesapi.Client, error) {
	return notesapi.New(notesapi.Config{BaseURL: apiURL, Timeout: apiTimeout})
}

func newCache() *query.Cache {
	return query.New(
		query.WithStaleTime(staleTime),
		query.WithRetry(retries, query.DefaultRetryMin, query.DefaultRetryMax),
		query.WithLogger(obs.Pkg("notesctl")),
	)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return d
}

// searchDebounceDefault is shared by browse's flag and its tests.
var searchDebounceDefault = envDuration("SEARCH_DEBOUNCE", debounce.DefaultWindow)
