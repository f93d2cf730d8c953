package mutation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kuitang/notedeck/internal/errs"
	"github.com/kuitang/notedeck/internal/notes"
	"github.com/kuitang/notedeck/internal/notesapi"
	"github.com/kuitang/notedeck/internal/obs"
	"github.com/kuitang/notedeck/internal/query"
)

// FailureMessage is the transient notification shown when a submit fails.
const FailureMessage = "something went wrong"

// ErrSubmitInFlight is returned while a previous submit has not finished.
var ErrSubmitInFlight = errs.New(errs.Conflict, "a submission is already in progress")

// Notifier shows a transient message to the user.
type Notifier interface {
	Error(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (fn NotifierFunc) Error(msg string) { fn(msg) }

// Handler submits forms to the remote service and keeps the cache coherent.
type Handler struct {
	creator   notesapi.Creator
	cache     *query.Cache
	notifier  Notifier
	onClose   func()
	tagScoped bool
	log       *slog.Logger

	mu         sync.Mutex
	submitting bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithNotifier sets where failure notifications go.
func WithNotifier(n Notifier) Option {
	return func(h *Handler) { h.notifier = n }
}

// WithOnClose sets the callback run after a successful submit.
func WithOnClose(fn func()) Option {
	return func(h *Handler) { h.onClose = fn }
}

// WithTagScopedInvalidation limits invalidation to unfiltered lists and lists
// of the created note's tag. The default invalidates every list key.
func WithTagScopedInvalidation() Option {
	return func(h *Handler) { h.tagScoped = true }
}

// NewHandler creates a handler writing through creator and invalidating cache.
func NewHandler(creator notesapi.Creator, cache *query.Cache, opts ...Option) *Handler {
	h := &Handler{
		creator:  creator,
		cache:    cache,
		notifier: NotifierFunc(func(string) {}),
		onClose:  func() {},
		log:      obs.Pkg("mutation"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Submit creates a note from form. A form that is invalid or unchanged is
// rejected without contacting the remote. On success the form is reset, note
// lists are invalidated and the close callback runs. On failure the form keeps
// its values, the cache is untouched and the notifier is told.
func (h *Handler) Submit(ctx context.Context, form *Form) (*notes.Note, error) {
	if !form.Dirty() {
		return nil, errs.New(errs.InvalidArgument, "nothing to submit")
	}
	if fields := form.Errors(); fields != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "invalid note", fields)
	}

	h.mu.Lock()
	if h.submitting {
		h.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	h.submitting = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.submitting = false
		h.mu.Unlock()
	}()

	draft := form.Values()
	note, err := h.creator.Create(ctx, draft)
	if err != nil {
		h.log.Warn("create_note_failed", "tag", draft.Tag, "error", err)
		h.notifier.Error(FailureMessage)
		return nil, err
	}
	if note == nil {
		err := errs.New(errs.Internal, "remote returned no note")
		h.notifier.Error(FailureMessage)
		return nil, err
	}

	form.Reset()
	n := h.invalidate(note.Tag)
	h.log.Info("note_created", "note_id", note.ID, "tag", note.Tag, "invalidated", n)
	h.onClose()
	return note, nil
}

// Submitting reports whether a submit is in flight.
func (h *Handler) Submitting() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.submitting
}

func (h *Handler) invalidate(tag notes.Tag) int {
	if !h.tagScoped {
		return h.cache.InvalidatePrefix(notesapi.ListPrefix())
	}
	return h.cache.Invalidate(func(k query.Key) bool {
		if !k.HasPrefix(notesapi.ListPrefix()) || len(k) < 4 {
			return false
		}
		return k[3] == "" || k[3] == string(tag)
	})
}

// IsValidation reports whether err came from form or remote validation.
func IsValidation(err error) bool {
	var fields notes.FieldErrors
	return errs.Is(err, errs.InvalidArgument) && errors.As(err, &fields)
}
