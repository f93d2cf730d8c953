// Package hydrate moves query results from the server that rendered a page to
// the client that continues from it: the server prefetches into a throwaway
// cache and embeds a snapshot, the client extracts the snapshot and seeds its
// own cache before the first read.
package hydrate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kuitang/notedeck/internal/notes"
	"github.com/kuitang/notedeck/internal/notesapi"
	"github.com/kuitang/notedeck/internal/obs"
	"github.com/kuitang/notedeck/internal/query"
)

// Remote is what the bridge reads through.
type Remote interface {
	notesapi.Lister
	notesapi.Getter
}

// RouteTag maps the catch-all route segments to a tag filter. The first
// segment selects the tag; the All sentinel or no segment means unfiltered.
func RouteTag(slug []string) string {
	if len(slug) == 0 {
		return ""
	}
	first := strings.TrimSpace(slug[0])
	if first == "" || first == notes.AllTagsSentinel {
		return ""
	}
	return first
}

// Page is the outcome of a server prefetch. Result or Note is nil when the
// fetch failed; Err says why and Snapshot is then empty.
type Page struct {
	Tag      string
	Query    notes.ListQuery
	Result   *notes.ListResult
	Note     *notes.Note
	Err      error
	Snapshot query.Snapshot
}

// Bridge runs server-side prefetches. Every prefetch uses its own cache, so
// nothing leaks between requests.
type Bridge struct {
	remote    Remote
	cacheOpts []query.Option
	log       *slog.Logger
}

// NewBridge creates a bridge. Server-side caches do not retry unless opts
// say otherwise: a failed prefetch falls back to the client's own fetch.
func NewBridge(remote Remote, opts ...query.Option) *Bridge {
	base := []query.Option{query.WithRetry(0, 0, 0)}
	return &Bridge{
		remote:    remote,
		cacheOpts: append(base, opts...),
		log:       obs.Pkg("hydrate"),
	}
}

// PrefetchList fetches the first unfiltered-search page for the route's tag.
// A failed fetch is logged and yields an empty snapshot; it never fails the page.
func (b *Bridge) PrefetchList(ctx context.Context, slug []string) Page {
	tag := RouteTag(slug)
	q := notes.ListQuery{Page: 1, Search: "", Tag: tag}
	page := Page{Tag: tag, Query: q}

	cache := query.New(b.cacheOpts...)
	key := notesapi.ListKey(q)
	if _, err := cache.Fetch(ctx, key, notesapi.ListFetcher(b.remote, q)); err != nil {
		obs.From(ctx).Warn("prefetch_list_failed", "pkg", "hydrate", "tag", tag, "error", err)
		page.Err = err
		return page
	}
	page.Result, _ = notesapi.ListFromEntry(cache.Read(key))
	page.Snapshot = b.dehydrate(ctx, cache)
	return page
}

// PrefetchNote fetches one note for the detail route.
func (b *Bridge) PrefetchNote(ctx context.Context, id string) Page {
	cache := query.New(b.cacheOpts...)
	var page Page
	key := notesapi.NoteKey(id)
	if _, err := cache.Fetch(ctx, key, notesapi.NoteFetcher(b.remote, id)); err != nil {
		obs.From(ctx).Warn("prefetch_note_failed", "pkg", "hydrate", "note_id", id, "error", err)
		page.Err = err
		return page
	}
	page.Note, _ = notesapi.NoteFromEntry(cache.Read(key))
	page.Snapshot = b.dehydrate(ctx, cache)
	return page
}

func (b *Bridge) dehydrate(ctx context.Context, cache *query.Cache) query.Snapshot {
	snap, err := cache.Dehydrate()
	if err != nil {
		obs.From(ctx).Error("dehydrate_failed", "pkg", "hydrate", "error", err)
		return query.Snapshot{}
	}
	return snap
}
