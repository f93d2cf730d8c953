package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"pgregory.net/rapid"
)

var allCodes = []Code{
	InvalidArgument,
	NotFound,
	Unavailable,
	Conflict,
	Internal,
}

func testCodeOf_RoundtripForTypedErrors(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")

	err := New(code, message)
	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf(New) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(err); got != message {
		t.Fatalf("MessageOf(New) mismatch: got=%q want=%q", got, message)
	}
	if !Is(err, code) {
		t.Fatalf("Is(New, %q) = false", code)
	}
}

func TestCodeOf_RoundtripForTypedErrors(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOf_RoundtripForTypedErrors)
}

func testCodeOfAndMessageOf_WrappedTypedError(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")
	cause := errors.New(rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "cause"))

	err := Wrap(code, message, cause)
	wrapped := fmt.Errorf("outer: %w", err)

	if got := CodeOf(wrapped); got != code {
		t.Fatalf("CodeOf(wrapped) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(wrapped); got != message {
		t.Fatalf("MessageOf(wrapped) mismatch: got=%q want=%q", got, message)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("wrapped error lost its cause")
	}
}

func TestCodeOfAndMessageOf_WrappedTypedError(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOfAndMessageOf_WrappedTypedError)
}

func TestUntypedAndNilFallbacks(t *testing.T) {
	t.Parallel()
	untyped := errors.New("dial tcp 10.0.0.1:443: connection refused")

	if got := CodeOf(untyped); got != Internal {
		t.Fatalf("CodeOf(untyped) mismatch: got=%q want=%q", got, Internal)
	}
	if got := MessageOf(untyped); got != "internal error" {
		t.Fatalf("MessageOf(untyped) mismatch: got=%q", got)
	}
	if got := CodeOf(nil); got != Internal {
		t.Fatalf("CodeOf(nil) mismatch: got=%q want=%q", got, Internal)
	}
	if Is(nil, Internal) {
		t.Fatal("Is(nil) should be false")
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{New(InvalidArgument, "bad"), false},
		{New(NotFound, "gone"), false},
		{New(Unavailable, "down"), true},
		{New(Conflict, "busy"), false},
		{errors.New("raw"), true},
		{fmt.Errorf("ctx: %w", New(NotFound, "gone")), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Errorf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func testHTTPStatus_Mapping(t *rapid.T) {
	cases := map[Code]int{
		InvalidArgument: http.StatusBadRequest,
		NotFound:        http.StatusNotFound,
		Unavailable:     http.StatusServiceUnavailable,
		Conflict:        http.StatusConflict,
		Internal:        http.StatusInternalServerError,
	}

	code := rapid.SampledFrom(append(append([]Code{}, allCodes...), Code("unknown_code"))).Draw(t, "code")

	want := http.StatusInternalServerError
	if mapped, ok := cases[code]; ok {
		want = mapped
	}
	if got := HTTPStatus(code); got != want {
		t.Fatalf("HTTPStatus mismatch: code=%q got=%d want=%d", code, got, want)
	}
}

func TestHTTPStatus_Mapping(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testHTTPStatus_Mapping)
}

func TestCodeForStatus(t *testing.T) {
	t.Parallel()
	cases := map[int]Code{
		http.StatusNotFound:            NotFound,
		http.StatusBadRequest:          InvalidArgument,
		http.StatusUnprocessableEntity: InvalidArgument,
		http.StatusConflict:            Conflict,
		http.StatusTooManyRequests:     Unavailable,
		http.StatusBadGateway:          Unavailable,
		http.StatusInternalServerError: Unavailable,
		http.StatusTeapot:              Internal,
	}
	for status, want := range cases {
		if got := CodeForStatus(status); got != want {
			t.Errorf("CodeForStatus(%d) = %q, want %q", status, got, want)
		}
	}
}
