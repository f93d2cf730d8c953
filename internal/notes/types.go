// Package notes holds the note domain shared by the web front end, the
// interactive client and the mock remote service.
package notes

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Tag is a note category. The set is closed.
type Tag string

const (
	TagTodo     Tag = "Todo"
	TagWork     Tag = "Work"
	TagPersonal Tag = "Personal"
	TagMeeting  Tag = "Meeting"
	TagShopping Tag = "Shopping"
)

// AllTagsSentinel is the route value meaning "no tag filter". It is never stored.
const AllTagsSentinel = "All"

// ListResource is the first key part of every cached list read.
const ListResource = "notes"

// NoteResource is the first key part of a cached single-note read.
const NoteResource = "note"

// PerPage is the page size requested from the remote service.
const PerPage = 12

// ErrInvalidTag is returned when a value is outside the closed tag set.
var ErrInvalidTag = errors.New("invalid category")

// Tags lists the closed tag set in display order.
func Tags() []Tag {
	return []Tag{TagTodo, TagWork, TagPersonal, TagMeeting, TagShopping}
}

// Valid reports whether t is one of the five stored tags.
func (t Tag) Valid() bool {
	switch t {
	case TagTodo, TagWork, TagPersonal, TagMeeting, TagShopping:
		return true
	default:
		return false
	}
}

// ParseTag validates a stored tag value.
func ParseTag(s string) (Tag, error) {
	t := Tag(strings.TrimSpace(s))
	if !t.Valid() {
		return "", ErrInvalidTag
	}
	return t, nil
}

// Note is a read-only copy of a note owned by the remote service.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tag       Tag       `json:"tag"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// ListQuery is the sole key shape for cached list reads. Tag "" means unfiltered.
type ListQuery struct {
	Page   int    `json:"page"`
	Search string `json:"search"`
	Tag    string `json:"tag"`
}

// Normalize clamps the page to at least 1.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	return q
}

// KeyParts returns the cache key parts ["notes", page, search, tag].
// Equal queries produce equal parts; any differing field changes them.
func (q ListQuery) KeyParts() []string {
	q = q.Normalize()
	return []string{ListResource, strconv.Itoa(q.Page), q.Search, q.Tag}
}

// NoteKeyParts returns the cache key parts ["note", id].
func NoteKeyParts(id string) []string {
	return []string{NoteResource, id}
}

// ListResult is one page of notes.
type ListResult struct {
	Notes      []Note `json:"notes"`
	TotalPages int    `json:"totalPages"`
}

// Draft is a note being composed. It is submitted once and never cached.
type Draft struct {
	Title   string `json:"title" validate:"required,min=3,max=50"`
	Content string `json:"content" validate:"max=500"`
	Tag     Tag    `json:"tag" validate:"required,oneof=Todo Work Personal Meeting Shopping"`
}
