package logutil

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestFormatHeadersForLog_RedactsSensitiveHeaders(t *testing.T) {
	t.Parallel()
	h := http.Header{}
	h.Set("Authorization", "Bearer abc")
	h.Set("Accept", "application/json")
	h.Set("X-Api-Key", "k")

	got := FormatHeadersForLog(h)
	if strings.Contains(got, "abc") || strings.Contains(got, `"k"`) {
		t.Fatalf("secret leaked into log line: %s", got)
	}
	if !strings.Contains(got, `accept="application/json"`) {
		t.Fatalf("expected accept header in %s", got)
	}
	if FormatHeadersForLog(nil) != "{}" {
		t.Fatal("empty headers should format as {}")
	}
}

func TestFormatURLForLog(t *testing.T) {
	t.Parallel()
	u, _ := url.Parse("https://api.example.com/notes?page=2&search=milk&access_token=s3cr3t")
	got := FormatURLForLog(u)
	if strings.Contains(got, "s3cr3t") {
		t.Fatalf("token leaked: %s", got)
	}
	if !strings.Contains(got, "search=milk") || !strings.Contains(got, "page=2") {
		t.Fatalf("non-sensitive params dropped: %s", got)
	}
	if FormatURLForLog(nil) != "" {
		t.Fatal("nil URL should format as empty")
	}
}

func testTruncateForLog_Bounded(t *rapid.T) {
	value := rapid.String().Draw(t, "value")
	limit := rapid.IntRange(1, 64).Draw(t, "limit")

	got := TruncateForLog(value, limit)
	if strings.Contains(got, "\n") {
		t.Fatalf("newline survived: %q", got)
	}
	if len(got) > limit+len("... [truncated]") {
		t.Fatalf("result too long: %d > %d", len(got), limit)
	}
}

func TestTruncateForLog_Bounded(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testTruncateForLog_Bounded)
}
