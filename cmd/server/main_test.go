package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/kuitang/notedeck/internal/backend"
	"github.com/kuitang/notedeck/internal/obs"
)

func TestMountMockBackend_StripsPrefix(t *testing.T) {
	mux := http.NewServeMux()
	var gotPath string
	mountMockBackend(mux, "/api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, path := range []string{"/api/notes", "/api/notes/abc"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("GET %s: expected 204, got %d", path, rec.Code)
		}
		if want := path[len("/api"):]; gotPath != want {
			t.Fatalf("GET %s reached handler as %q, want %q", path, gotPath, want)
		}
	}
}

func testMountMockBackend_NormalizesPrefix(t *rapid.T) {
	name := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "name")
	slashes := rapid.SampledFrom([]string{"%s", "/%s", "%s/", "/%s/"}).Draw(t, "shape")

	mux := http.NewServeMux()
	reached := false
	mountMockBackend(mux, fmt.Sprintf(slashes, name), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = r.URL.Path == "/notes"
	}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+name+"/notes", nil))
	if !reached {
		t.Fatalf("prefix %q did not route /%s/notes", fmt.Sprintf(slashes, name), name)
	}
}

func TestMountMockBackend_NormalizesPrefix(t *testing.T) {
	rapid.Check(t, testMountMockBackend_NormalizesPrefix)
}

func FuzzMountMockBackend_NormalizesPrefix(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testMountMockBackend_NormalizesPrefix))
}

func TestSeedIfEmpty_SeedsOnce(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMemoryStore()
	svc := backend.NewService(store)

	if err := seedIfEmpty(ctx, store, svc); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if err := seedIfEmpty(ctx, store, svc); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if want := len(backend.SampleDrafts()); len(all) != want {
		t.Fatalf("store holds %d notes, want %d", len(all), want)
	}
}

func TestServerHandler_MockBackendRequestLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutputForTests(&buf)
	defer restore()
	obs.SetLevel(slog.LevelDebug)
	defer obs.SetLevel(slog.LevelInfo)

	mux := http.NewServeMux()
	svc := backend.NewService(backend.NewMemoryStore())
	mountMockBackend(mux, "/api", backend.NewHandler(svc, nil).Throttled())

	rec := httptest.NewRecorder()
	serverHandler(mux).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notes", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/notes: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("missing X-Request-Id")
	}
	if n := strings.Count(buf.String(), `"http_access"`); n != 1 {
		t.Fatalf("expected one access log line, got %d:\n%s", n, buf.String())
	}
}
