package s3client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"

	"github.com/kuitang/notedeck/internal/obs"
)

// InMemory serves a gofakes3 bucket on a loopback port for --no-s3 runs.
type InMemory struct {
	*Client
	srv *http.Server
}

// NewInMemory starts an in-memory S3 server and returns a client bound to a
// freshly created bucket. Close stops the server; its data is lost.
func NewInMemory(ctx context.Context, bucketName string) (*InMemory, error) {
	faker := gofakes3.New(s3mem.New())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("s3client: failed to listen for fake S3: %w", err)
	}
	srv := &http.Server{Handler: faker.Server(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Pkg("s3client").Error("fake_s3_serve_failed", "error", err)
		}
	}()

	client, err := New(ctx, Config{
		Endpoint:        "http://" + ln.Addr().String(),
		Region:          "us-east-1",
		AccessKeyID:     "local-key",
		SecretAccessKey: "local-secret",
		BucketName:      bucketName,
		UsePathStyle:    true,
	})
	if err != nil {
		_ = srv.Close()
		return nil, err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		_ = srv.Close()
		return nil, err
	}
	return &InMemory{Client: client, srv: srv}, nil
}

// Close shuts the fake server down.
func (m *InMemory) Close() error {
	return m.srv.Close()
}
