package notesapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kuitang/notedeck/internal/notes"
	"github.com/kuitang/notedeck/internal/query"
)

// Lister reads pages of notes.
type Lister interface {
	List(ctx context.Context, q notes.ListQuery) (*notes.ListResult, error)
}

// Getter reads single notes.
type Getter interface {
	Get(ctx context.Context, id string) (*notes.Note, error)
}

// Creator stores new notes.
type Creator interface {
	Create(ctx context.Context, d notes.Draft) (*notes.Note, error)
}

// ListKey is the cache key for a list query.
func ListKey(q notes.ListQuery) query.Key {
	return query.NewKey(q.KeyParts()...)
}

// NoteKey is the cache key for a single note.
func NoteKey(id string) query.Key {
	return query.NewKey(notes.NoteKeyParts(id)...)
}

// ListPrefix matches every list key.
func ListPrefix() query.Key {
	return query.NewKey(notes.ListResource)
}

// ListFetcher loads q through l. The cached value is a *notes.ListResult.
func ListFetcher(l Lister, q notes.ListQuery) query.Fetcher {
	return func(ctx context.Context) (any, error) {
		res, err := l.List(ctx, q)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}

// NoteFetcher loads one note through g. The cached value is a *notes.Note.
func NoteFetcher(g Getter, id string) query.Fetcher {
	return func(ctx context.Context) (any, error) {
		n, err := g.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return n, nil
	}
}

// Decode restores a dehydrated value by the resource named in its key.
func Decode(key query.Key, raw json.RawMessage) (any, error) {
	switch key.Resource() {
	case notes.ListResource:
		var res notes.ListResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, err
		}
		if res.Notes == nil {
			res.Notes = []notes.Note{}
		}
		return &res, nil
	case notes.NoteResource:
		var n notes.Note
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return &n, nil
	default:
		return nil, fmt.Errorf("unknown resource %q", key.Resource())
	}
}

// ListFromEntry returns the list result held by e, if any.
func ListFromEntry(e *query.Entry) (*notes.ListResult, bool) {
	return query.ValueAs[*notes.ListResult](e)
}

// NoteFromEntry returns the note held by e, if any.
func NoteFromEntry(e *query.Entry) (*notes.Note, bool) {
	return query.ValueAs[*notes.Note](e)
}
