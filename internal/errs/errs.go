package errs

import (
	"errors"
	"net/http"
)

// Code is an application error code.
type Code string

const (
	// InvalidArgument marks user input that failed validation. Never retried.
	InvalidArgument Code = "invalid_argument"
	// NotFound is terminal for a given id or query.
	NotFound Code = "not_found"
	// Unavailable marks a transient network or upstream failure.
	Unavailable Code = "unavailable"
	// Conflict marks a request that clashes with work already in progress.
	Conflict Code = "conflict"
	Internal Code = "internal"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Retryable reports whether a failed fetch may be attempted again automatically.
// Validation failures and missing resources are terminal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case InvalidArgument, NotFound, Conflict:
		return false
	default:
		return true
	}
}

// MessageOf returns a user-facing error message.
// If the error has no typed wrapper, returns "internal error" so raw transport
// errors and upstream bodies never reach a rendered page.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps error code to HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Unavailable:
		return http.StatusServiceUnavailable
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CodeForStatus maps an upstream HTTP status to an error code.
func CodeForStatus(status int) Code {
	switch {
	case status == http.StatusNotFound:
		return NotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return InvalidArgument
	case status == http.StatusConflict:
		return Conflict
	case status == http.StatusTooManyRequests || status >= 500:
		return Unavailable
	default:
		return Internal
	}
}
