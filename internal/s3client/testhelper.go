package s3client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// TestClient creates a client backed by gofakes3 on an httptest server.
// The server is closed when the test completes.
func TestClient(t testing.TB, bucketName string) *Client {
	t.Helper()

	faker := gofakes3.New(s3mem.New())
	ts := httptest.NewServer(faker.Server())
	t.Cleanup(ts.Close)

	ctx := context.Background()
	client, err := New(ctx, Config{
		Endpoint:        ts.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		BucketName:      bucketName,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create test bucket: %v", err)
	}
	return client
}
