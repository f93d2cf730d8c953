// Package mutation holds the create-note form and its submission, which on
// success invalidates cached note lists so every list view refetches.
package mutation

import (
	"fmt"
	"sync"

	"github.com/kuitang/notedeck/internal/notes"
)

// Field names a form input.
type Field string

const (
	FieldTitle   Field = "title"
	FieldContent Field = "content"
	FieldTag     Field = "tag"
)

// InitialDraft is the value a new or reset form starts from.
func InitialDraft() notes.Draft {
	return notes.Draft{Title: "", Content: "", Tag: notes.TagTodo}
}

// Form is the editable state of one create-note form.
type Form struct {
	mu      sync.Mutex
	initial notes.Draft
	values  notes.Draft
	touched map[Field]bool
}

// NewForm returns a form at InitialDraft.
func NewForm() *Form {
	return &Form{initial: InitialDraft(), values: InitialDraft(), touched: map[Field]bool{}}
}

// Set changes one field and marks it touched.
func (f *Form) Set(field Field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch field {
	case FieldTitle:
		f.values.Title = value
	case FieldContent:
		f.values.Content = value
	case FieldTag:
		f.values.Tag = notes.Tag(value)
	default:
		return fmt.Errorf("unknown form field %q", field)
	}
	f.touched[field] = true
	return nil
}

// Values returns the current draft.
func (f *Form) Values() notes.Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values
}

// Touched reports whether field was edited since the last reset.
func (f *Form) Touched(field Field) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touched[field]
}

// Dirty reports whether the values differ from the initial draft.
func (f *Form) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values != f.initial
}

// Errors validates the current values; nil means valid.
func (f *Form) Errors() notes.FieldErrors {
	return notes.ValidateDraft(f.Values())
}

// VisibleErrors is Errors limited to touched fields, for display while the
// user is still typing.
func (f *Form) VisibleErrors() notes.FieldErrors {
	all := f.Errors()
	if all == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := notes.FieldErrors{}
	for field, msg := range all {
		if f.touched[Field(field)] {
			out[field] = msg
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// CanSubmit is true when the form is valid and has changes.
func (f *Form) CanSubmit() bool {
	return f.Dirty() && f.Errors() == nil
}

// Reset restores the initial draft and clears touched state.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = f.initial
	f.touched = map[Field]bool{}
}

// FormFromDraft returns a form holding d with every field touched, as after
// a full server-side form post.
func FormFromDraft(d notes.Draft) *Form {
	f := NewForm()
	f.values = d
	f.touched = map[Field]bool{FieldTitle: true, FieldContent: true, FieldTag: true}
	return f
}
