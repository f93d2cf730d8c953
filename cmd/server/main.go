// notedeck server: renders the notes list pages with an embedded query
// snapshot and, with --mock-backend, also serves the notes service itself.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kuitang/notedeck/internal/backend"
	"github.com/kuitang/notedeck/internal/config"
	"github.com/kuitang/notedeck/internal/hydrate"
	"github.com/kuitang/notedeck/internal/notesapi"
	"github.com/kuitang/notedeck/internal/obs"
	"github.com/kuitang/notedeck/internal/query"
	"github.com/kuitang/notedeck/internal/ratelimit"
	"github.com/kuitang/notedeck/internal/s3client"
	"github.com/kuitang/notedeck/internal/web"
)

const (
	mockBucketName  = "notedeck"
	shutdownTimeout = 10 * time.Second
)

func main() {
	obs.Init()
	flags := config.ParseFlags()
	cfg := config.MustLoadConfig(flags)
	obs.SetLevel(obs.ParseLevel(cfg.LogLevel))
	cfg.PrintStartupSummary(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		obs.Pkg("server").Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := obs.Pkg("server")
	mux := http.NewServeMux()

	if cfg.MockBackend {
		store, closeStore, err := newMockStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		svc := backend.NewService(store)
		if err := seedIfEmpty(ctx, store, svc); err != nil {
			return err
		}

		limiter := ratelimit.NewRateLimiter(cfg.RateLimitConfig)
		defer limiter.Stop()
		mountMockBackend(mux, cfg.MockAPIPath(), backend.NewHandler(svc, limiter).Throttled())
	}

	remote, err := notesapi.New(notesapi.Config{
		BaseURL: cfg.NotesAPIURL,
		RPS:     cfg.NotesAPIRPS,
		Burst:   cfg.NotesAPIBurst,
		Timeout: cfg.NotesAPITimeout,
	})
	if err != nil {
		return err
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		return err
	}
	bridge := hydrate.NewBridge(remote, query.WithStaleTime(cfg.QueryStaleTime))
	web.NewHandler(renderer, bridge, remote).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           serverHandler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, srv, log)
}

// serverHandler adds request correlation and one access log line per request.
// Everything mounted on mux, the mock backend included, is logged here only.
func serverHandler(mux http.Handler) http.Handler {
	return obs.RequestContextMiddleware(obs.AccessLogMiddleware("server", mux))
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("server_listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// mountMockBackend serves h under prefix with the prefix stripped, so the
// mock service sees the same paths as the real one.
func mountMockBackend(mux *http.ServeMux, prefix string, h http.Handler) {
	prefix = "/" + strings.Trim(prefix, "/")
	mux.Handle(prefix+"/", http.StripPrefix(prefix, h))
}

// newMockStore picks where mock notes live: in-memory S3 for --no-s3,
// otherwise the configured bucket.
func newMockStore(ctx context.Context, cfg *config.Config) (backend.Store, func(), error) {
	if cfg.NoS3 {
		mem, err := s3client.NewInMemory(ctx, mockBucketName)
		if err != nil {
			return nil, nil, fmt.Errorf("in-memory S3: %w", err)
		}
		return backend.NewObjectStore(mem.Client), func() { _ = mem.Close() }, nil
	}

	client, err := s3client.New(ctx, s3client.Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.AWSBucketName,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure bucket %s: %w", cfg.AWSBucketName, err)
	}
	return backend.NewObjectStore(client), func() {}, nil
}

// seedIfEmpty loads the sample notes into an empty store.
func seedIfEmpty(ctx context.Context, store backend.Store, svc *backend.Service) error {
	existing, err := store.All(ctx)
	if err != nil {
		return fmt.Errorf("read mock store: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	drafts := backend.SampleDrafts()
	if err := svc.Seed(ctx, drafts); err != nil {
		return fmt.Errorf("seed mock store: %w", err)
	}
	obs.From(ctx).Info("mock_store_seeded", "pkg", "server", "notes", len(drafts))
	return nil
}
