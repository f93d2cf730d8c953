package obs

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestContextMiddleware_PropagatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()
	SetLevel(slog.LevelDebug)
	defer SetLevel(slog.LevelInfo)

	var seen string
	h := RequestContextMiddleware(AccessLogMiddleware("web", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/notes/filter/All", nil)
	req.Header.Set("X-Request-Id", "req-fixed")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "req-fixed" {
		t.Fatalf("request id in context = %q", seen)
	}
	if rec.Header().Get("X-Request-Id") != "req-fixed" {
		t.Fatalf("response header = %q", rec.Header().Get("X-Request-Id"))
	}

	line := strings.TrimSpace(buf.String())
	var event map[string]any
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		t.Fatalf("access log is not JSON: %v (%q)", err, line)
	}
	if event["msg"] != "http_access" || event["request_id"] != "req-fixed" {
		t.Fatalf("unexpected access event: %v", event)
	}
	if status, _ := event["status"].(float64); int(status) != http.StatusTeapot {
		t.Fatalf("status = %v", event["status"])
	}
}

func TestRequestContextMiddleware_UsesTraceparent(t *testing.T) {
	var got Correlation
	h := RequestContextMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CorrelationFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" || got.RequestID != got.TraceID {
		t.Fatalf("unexpected correlation: %+v", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
