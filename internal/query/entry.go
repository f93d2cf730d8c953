package query

import "time"

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is an immutable view of one cached query. Every state change installs
// a new Entry, so two reads of an untouched key return the same pointer.
type Entry struct {
	Key    Key
	Status Status

	// Value is the last successful result. A failed refetch keeps it.
	Value any
	// PreviousValue is the result Value replaced on the last successful refetch.
	PreviousValue any

	Err          error
	FailureCount int

	// UpdatedAt is when Value was produced; zero while nothing succeeded yet.
	UpdatedAt time.Time
	ErrorAt   time.Time

	// Stale is set by invalidation; the next query of the key refetches.
	Stale bool
	// Fetching is true while a fetch for the key is in flight.
	Fetching bool
}

// HasValue reports whether a successful result is available.
func (e *Entry) HasValue() bool {
	return e != nil && e.Value != nil
}

func (e *Entry) clone() *Entry {
	cp := *e
	return &cp
}

// ValueAs returns the entry value as T.
func ValueAs[T any](e *Entry) (T, bool) {
	var zero T
	if e == nil || e.Value == nil {
		return zero, false
	}
	v, ok := e.Value.(T)
	return v, ok
}
