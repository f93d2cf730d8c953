// Package listview derives the notes list query from user input and turns the
// matching cache entry into something a front end can draw.
package listview

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kuitang/notedeck/internal/clock"
	"github.com/kuitang/notedeck/internal/debounce"
	"github.com/kuitang/notedeck/internal/notes"
	"github.com/kuitang/notedeck/internal/notesapi"
	"github.com/kuitang/notedeck/internal/obs"
	"github.com/kuitang/notedeck/internal/query"
)

// View is what the list looks like right now.
type View struct {
	Query     notes.ListQuery
	RawSearch string

	Notes      []notes.Note
	TotalPages int

	// Loading: nothing to show yet, a fetch is pending.
	Loading bool
	// Fetching: a fetch for the current query is in flight, even if data shows.
	Fetching bool
	// Placeholder: Notes belong to a previously shown query.
	Placeholder bool
	// NotFound: the current query succeeded with no notes.
	NotFound       bool
	ShowPagination bool
	Err            error
}

// Controller owns page, search and tag state for one list view.
type Controller struct {
	cache  *query.Cache
	lister notesapi.Lister
	search *debounce.Debouncer[string]
	log    *slog.Logger

	mu          sync.Mutex
	page        int
	rawSearch   string
	committed   string
	tag         string
	lastShown   *notes.ListResult
	mounted     bool
	ctx         context.Context
	unsubscribe func()
	listeners   []func(View)
}

// Option configures a Controller.
type Option func(*config)

type config struct {
	clock    clock.Clock
	debounce time.Duration
}

// WithClock drives the search debounce from clk.
func WithClock(clk clock.Clock) Option {
	return func(c *config) { c.clock = clk }
}

// WithDebounce sets the search quiet period.
func WithDebounce(d time.Duration) Option {
	return func(c *config) { c.debounce = d }
}

// New creates a controller for tag ("" = all notes) starting at page 1.
func New(cache *query.Cache, lister notesapi.Lister, tag string, opts ...Option) *Controller {
	cfg := config{clock: clock.Real(), debounce: debounce.DefaultWindow}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Controller{
		cache:  cache,
		lister: lister,
		log:    obs.Pkg("listview"),
		page:   1,
		tag:    tag,
		ctx:    context.Background(),
	}
	c.search = debounce.New(cfg.clock, cfg.debounce, c.commitSearch)
	return c
}

// Query derives the list query from the current state.
func (c *Controller) Query() notes.ListQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryLocked()
}

func (c *Controller) queryLocked() notes.ListQuery {
	return notes.ListQuery{Page: c.page, Search: c.committed, Tag: c.tag}
}

// OnChange registers fn to receive the view whenever it may have changed.
// fn may be called from any goroutine.
func (c *Controller) OnChange(fn func(View)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Mount starts observing the cache and reads the current query.
func (c *Controller) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.ctx = ctx
	c.mu.Unlock()

	unsubscribe := c.cache.Subscribe(c.onEntry)
	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	c.refresh()
}

// Unmount stops observing the cache and drops any pending search input.
// Fetches already started still land in the cache.
func (c *Controller) Unmount() {
	c.search.Cancel()
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mounted = false
	c.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Input records a search keystroke. The committed search follows after the
// debounce window.
func (c *Controller) Input(raw string) {
	c.mu.Lock()
	c.rawSearch = raw
	c.mu.Unlock()
	c.search.Input(raw)
	c.emit()
}

// FlushSearch commits pending search input immediately.
func (c *Controller) FlushSearch() bool {
	return c.search.Flush()
}

func (c *Controller) commitSearch(v string) {
	c.mu.Lock()
	c.committed = v
	c.page = 1
	c.mu.Unlock()
	c.refresh()
}

// SetTag switches the tag filter and returns to page 1.
func (c *Controller) SetTag(tag string) {
	c.mu.Lock()
	c.tag = tag
	c.page = 1
	c.mu.Unlock()
	c.refresh()
}

// SetPage moves to page n (at least 1). Search and tag are unchanged.
func (c *Controller) SetPage(n int) {
	if n < 1 {
		n = 1
	}
	c.mu.Lock()
	c.page = n
	c.mu.Unlock()
	c.refresh()
}

// Next moves one page forward unless already on the last page.
func (c *Controller) Next() bool {
	v := c.View()
	if v.Query.Page >= v.TotalPages {
		return false
	}
	c.SetPage(v.Query.Page + 1)
	return true
}

// Prev moves one page back unless on the first page.
func (c *Controller) Prev() bool {
	q := c.Query()
	if q.Page <= 1 {
		return false
	}
	c.SetPage(q.Page - 1)
	return true
}

// Refetch forces a fetch of the current query, e.g. after an error.
func (c *Controller) Refetch() {
	c.mu.Lock()
	q := c.queryLocked()
	ctx := c.ctx
	c.mu.Unlock()
	c.cache.Refetch(ctx, notesapi.ListKey(q), notesapi.ListFetcher(c.lister, q))
	c.emit()
}

// refresh reads the current query through the cache, starting a fetch when
// the cached entry needs one, then publishes the view.
func (c *Controller) refresh() {
	c.mu.Lock()
	mounted := c.mounted
	q := c.queryLocked()
	ctx := c.ctx
	c.mu.Unlock()

	if mounted {
		c.cache.Query(ctx, notesapi.ListKey(q), notesapi.ListFetcher(c.lister, q))
	}
	c.emit()
}

// onEntry reacts to cache changes. Entries for queries the controller no
// longer shows are ignored; an invalidated current entry is refetched.
func (c *Controller) onEntry(e *query.Entry) {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	q := c.queryLocked()
	ctx := c.ctx
	c.mu.Unlock()

	key := notesapi.ListKey(q)
	if !e.Key.Equal(key) {
		return
	}
	if e.Stale && !e.Fetching {
		c.log.Debug("listview_refetch_stale", "key", key.Hash())
		c.cache.Query(ctx, key, notesapi.ListFetcher(c.lister, q))
	}
	c.emit()
}

// View computes the current view. While the current query has no data the
// last shown result stays visible, flagged as a placeholder.
func (c *Controller) View() View {
	c.mu.Lock()
	q := c.queryLocked()
	raw := c.rawSearch
	c.mu.Unlock()

	e := c.cache.Read(notesapi.ListKey(q))
	v := View{Query: q, RawSearch: raw}
	if e != nil {
		v.Fetching = e.Fetching
		if e.Status == query.StatusError {
			v.Err = e.Err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if res, ok := notesapi.ListFromEntry(e); ok && res != nil {
		c.lastShown = res
		v.Notes = res.Notes
		v.TotalPages = res.TotalPages
		v.NotFound = len(res.Notes) == 0
	} else if c.lastShown != nil {
		v.Notes = c.lastShown.Notes
		v.TotalPages = c.lastShown.TotalPages
		v.Placeholder = true
	} else {
		v.Loading = v.Err == nil
	}
	v.ShowPagination = v.TotalPages > 1
	return v
}

func (c *Controller) emit() {
	c.mu.Lock()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()
	if len(listeners) == 0 {
		return
	}
	v := c.View()
	for _, fn := range listeners {
		fn(v)
	}
}
