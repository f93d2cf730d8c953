// Package backend is an in-process implementation of the Remote Notes Service
// used for development and tests: tag filtering, case-insensitive search,
// newest-first pagination and draft validation over a pluggable store.
package backend

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/notedeck/internal/errs"
	"github.com/kuitang/notedeck/internal/notes"
)

const MaxPerPage = 100

// Service implements list, read and create over a Store.
type Service struct {
	store Store
	now   func() time.Time
	newID func() string
}

// NewService creates a service over store.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// List returns one page of notes matching q, newest first.
func (s *Service) List(ctx context.Context, q notes.ListQuery, perPage int) (*notes.ListResult, error) {
	q = q.Normalize()
	if perPage <= 0 {
		perPage = notes.PerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if q.Tag != "" && !notes.Tag(q.Tag).Valid() {
		return nil, errs.New(errs.InvalidArgument, "invalid category")
	}

	all, err := s.store.All(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "failed to read notes", err)
	}

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]notes.Note, 0, len(all))
	for _, n := range all {
		if q.Tag != "" && string(n.Tag) != q.Tag {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(n.Title), needle) &&
			!strings.Contains(strings.ToLower(n.Content), needle) {
			continue
		}
		matched = append(matched, n)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	totalPages := (len(matched) + perPage - 1) / perPage
	page := []notes.Note{}
	// Pages past the end are empty; checking first keeps the offset from overflowing.
	if q.Page <= totalPages {
		start := (q.Page - 1) * perPage
		end := min(start+perPage, len(matched))
		page = append(page, matched[start:end]...)
	}
	return &notes.ListResult{Notes: page, TotalPages: totalPages}, nil
}

// Get returns a note by id.
func (s *Service) Get(ctx context.Context, id string) (*notes.Note, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errs.New(errs.InvalidArgument, "note id is required")
	}
	n, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNoteNotFound) {
		return nil, errs.Wrap(errs.NotFound, "note not found", err)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "failed to read note", err)
	}
	return n, nil
}

// Create validates d and stores it as a new note.
func (s *Service) Create(ctx context.Context, d notes.Draft) (*notes.Note, error) {
	if fields := notes.ValidateDraft(d); fields != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "invalid note", fields)
	}
	now := s.now()
	n := notes.Note{
		ID:        s.newID(),
		Title:     d.Title,
		Content:   d.Content,
		Tag:       d.Tag,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Put(ctx, n); err != nil {
		return nil, errs.Wrap(errs.Unavailable, "failed to store note", err)
	}
	return &n, nil
}

// Seed stores sample drafts, spacing their creation times a minute apart so
// the listing order is stable.
func (s *Service) Seed(ctx context.Context, drafts []notes.Draft) error {
	base := s.now().Add(-time.Duration(len(drafts)) * time.Minute)
	for i, d := range drafts {
		if fields := notes.ValidateDraft(d); fields != nil {
			return errs.Wrap(errs.InvalidArgument, "invalid seed note", fields)
		}
		at := base.Add(time.Duration(i) * time.Minute)
		n := notes.Note{ID: s.newID(), Title: d.Title, Content: d.Content, Tag: d.Tag, CreatedAt: at, UpdatedAt: at}
		if err := s.store.Put(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// SampleDrafts is the development data set loaded by --mock-backend.
func SampleDrafts() []notes.Draft {
	return []notes.Draft{
		{Title: "Weekly planning", Content: "Review **priorities** for the week.", Tag: notes.TagWork},
		{Title: "Buy groceries", Content: "- milk\n- eggs\n- bread", Tag: notes.TagShopping},
		{Title: "Dentist appointment", Content: "Thursday 10:30", Tag: notes.TagPersonal},
		{Title: "Team standup", Content: "Blockers, progress, plans.", Tag: notes.TagMeeting},
		{Title: "Fix the leaking tap", Content: "Needs a new washer.", Tag: notes.TagTodo},
		{Title: "Quarterly report", Content: "Draft due Friday.", Tag: notes.TagWork},
		{Title: "Birthday gift", Content: "Something for Sam.", Tag: notes.TagShopping},
		{Title: "Call the bank", Content: "Ask about the card renewal.", Tag: notes.TagTodo},
		{Title: "Design review", Content: "Walk through the new list view.", Tag: notes.TagMeeting},
		{Title: "Read a novel", Content: "", Tag: notes.TagPersonal},
		{Title: "Renew passport", Content: "Photos first.", Tag: notes.TagTodo},
		{Title: "One-on-one", Content: "Career goals.", Tag: notes.TagMeeting},
		{Title: "Water the plants", Content: "", Tag: notes.TagTodo},
		{Title: "Hardware store", Content: "Washers, tape.", Tag: notes.TagShopping},
	}
}
