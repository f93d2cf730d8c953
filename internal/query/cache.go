// Package query is a keyed read cache for remote data. Reads of the same key
// are de-duplicated, results carry their freshness, and a mutation can mark
// a whole family of keys stale in one call.
package query

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/singleflight"

	"github.com/kuitang/notedeck/internal/clock"
	"github.com/kuitang/notedeck/internal/errs"
	"github.com/kuitang/notedeck/internal/obs"
)

// Fetcher loads the value for one key from the remote service.
type Fetcher func(ctx context.Context) (any, error)

// Cache stores one Entry per key hash. It is safe for concurrent use; all
// state transitions happen under a single mutex, so readers always observe
// whole entries.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	gens     map[string]uint64 // bumped on every invalidation of the key
	inflight map[string]uint64 // key hash -> flight sequence
	seq      uint64
	subs     map[uint64]func(*Entry)
	subSeq   uint64

	flights singleflight.Group

	clock      clock.Clock
	staleTime  time.Duration
	retryCount int
	retryMin   time.Duration
	retryMax   time.Duration
	log        *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(cache *Cache) { cache.clock = c }
}

// WithStaleTime sets how long a successful result is served without refetching.
// Zero means every query refetches.
func WithStaleTime(d time.Duration) Option {
	return func(cache *Cache) {
		if d >= 0 {
			cache.staleTime = d
		}
	}
}

// WithRetry sets the retry budget for retryable fetch failures and the
// exponential delay bounds between attempts.
func WithRetry(count int, min, max time.Duration) Option {
	return func(cache *Cache) {
		if count >= 0 {
			cache.retryCount = count
		}
		if min > 0 {
			cache.retryMin = min
		}
		if max >= min && max > 0 {
			cache.retryMax = max
		}
	}
}

// WithLogger overrides the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(cache *Cache) { cache.log = l }
}

const (
	DefaultStaleTime  = time.Minute
	DefaultRetryCount = 3
	DefaultRetryMin   = time.Second
	DefaultRetryMax   = 30 * time.Second
)

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*Entry),
		gens:       make(map[string]uint64),
		inflight:   make(map[string]uint64),
		subs:       make(map[uint64]func(*Entry)),
		clock:      clock.Real(),
		staleTime:  DefaultStaleTime,
		retryCount: DefaultRetryCount,
		retryMin:   DefaultRetryMin,
		retryMax:   DefaultRetryMax,
		log:        obs.Pkg("query"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read returns the current entry for key, or nil. It never fetches.
func (c *Cache) Read(key Key) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key.Hash()]
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fresh reports whether e can be served without a refetch.
func (c *Cache) Fresh(e *Entry) bool {
	if e == nil || e.Status != StatusSuccess || e.Stale {
		return false
	}
	return c.clock.Now().Sub(e.UpdatedAt) < c.staleTime
}

// Write stores value as a fresh successful result for key.
func (c *Cache) Write(key Key, value any) *Entry {
	c.mu.Lock()
	hash := key.Hash()
	next := &Entry{
		Key:       NewKey(key...),
		Status:    StatusSuccess,
		Value:     value,
		UpdatedAt: c.clock.Now(),
	}
	if prev := c.entries[hash]; prev != nil {
		next.PreviousValue = prev.Value
		next.Fetching = prev.Fetching
	}
	c.entries[hash] = next
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, next)
	return next
}

// Invalidate marks every entry whose key satisfies match as stale and returns
// how many matched. A fetch in flight for a matched key still lands, but its
// result stays stale.
func (c *Cache) Invalidate(match func(Key) bool) int {
	c.mu.Lock()
	var changed []*Entry
	n := 0
	for hash, e := range c.entries {
		if !match(e.Key) {
			continue
		}
		n++
		c.gens[hash]++
		if !e.Stale {
			next := e.clone()
			next.Stale = true
			c.entries[hash] = next
			changed = append(changed, next)
		}
	}
	subs := c.subscribersLocked()
	c.mu.Unlock()

	for _, e := range changed {
		notify(subs, e)
	}
	if n > 0 {
		c.log.Debug("query_invalidate", "matched", n)
	}
	return n
}

// InvalidatePrefix invalidates every key starting with prefix.
func (c *Cache) InvalidatePrefix(prefix Key) int {
	return c.Invalidate(func(k Key) bool { return k.HasPrefix(prefix) })
}

// Query returns the entry for key and starts a background fetch when the
// entry is missing, stale, failed or older than the stale time. A key already
// being fetched is never fetched twice. The returned entry reflects the
// fetching state, so a missing key comes back pending.
func (c *Cache) Query(ctx context.Context, key Key, fetch Fetcher) *Entry {
	e := c.Read(key)
	if c.Fresh(e) || (e != nil && e.Fetching) {
		return e
	}
	cur, _ := c.start(ctx, key, fetch)
	return cur
}

// Fetch returns the value for key, fetching it when the cached entry is not
// fresh. Concurrent callers share one in-flight fetch. Cancelling ctx stops
// the wait, not the shared fetch.
func (c *Cache) Fetch(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	if e := c.Read(key); c.Fresh(e) {
		return e.Value, nil
	}
	_, ch := c.start(ctx, key, fetch)
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Refetch forces a fetch of key regardless of freshness, joining one already
// in flight.
func (c *Cache) Refetch(ctx context.Context, key Key, fetch Fetcher) *Entry {
	cur, _ := c.start(ctx, key, fetch)
	return cur
}

// start joins the in-flight fetch for key or begins a new one. Each flight is
// registered in singleflight under a ticket unique to that flight; a joiner
// that arrives after the flight settled runs a fallback that only reads the
// settled entry.
func (c *Cache) start(ctx context.Context, key Key, fetch Fetcher) (*Entry, <-chan singleflight.Result) {
	hash := key.Hash()

	c.mu.Lock()
	seq, joining := c.inflight[hash]
	var cur *Entry
	var subs []func(*Entry)
	var gen uint64
	if !joining {
		c.seq++
		seq = c.seq
		c.inflight[hash] = seq
		gen = c.gens[hash]
		prev := c.entries[hash]
		if prev == nil {
			cur = &Entry{Key: NewKey(key...), Status: StatusPending, Fetching: true}
		} else {
			cur = prev.clone()
			cur.Fetching = true
		}
		c.entries[hash] = cur
		subs = c.subscribersLocked()
	} else {
		cur = c.entries[hash]
	}
	c.mu.Unlock()

	ticket := hash + "#" + strconv.FormatUint(seq, 10)
	if joining {
		return cur, c.flights.DoChan(ticket, func() (any, error) {
			e := c.Read(key)
			if e == nil {
				return nil, errs.New(errs.Internal, "query entry vanished")
			}
			if e.Status == StatusError {
				return e.Value, e.Err
			}
			return e.Value, nil
		})
	}

	notify(subs, cur)
	c.log.Debug("query_fetch_start", "key", hash)
	runCtx := context.WithoutCancel(ctx)
	return cur, c.flights.DoChan(ticket, func() (any, error) {
		return c.run(runCtx, key, hash, seq, gen, fetch)
	})
}

func (c *Cache) run(ctx context.Context, key Key, hash string, seq, gen uint64, fetch Fetcher) (any, error) {
	b := &backoff.Backoff{Min: c.retryMin, Max: c.retryMax, Factor: 2}
	var lastErr error
	for attempt := 0; ; attempt++ {
		v, err := fetch(ctx)
		if err == nil {
			c.settle(key, hash, seq, gen, v, nil)
			return v, nil
		}
		lastErr = err
		if attempt >= c.retryCount || !errs.Retryable(err) {
			break
		}
		c.noteFailure(hash, seq, err)
		delay := b.Duration()
		c.log.Warn("query_fetch_retry", "key", hash, "attempt", attempt+1, "delay", delay, "error", err)
		if err := sleep(ctx, c.clock, delay); err != nil {
			break
		}
	}
	c.log.Warn("query_fetch_failed", "key", hash, "error", lastErr)
	e := c.settle(key, hash, seq, gen, nil, lastErr)
	return e.Value, lastErr
}

// noteFailure records an intermediate failed attempt while retries continue.
func (c *Cache) noteFailure(hash string, seq uint64, err error) {
	c.mu.Lock()
	prev := c.entries[hash]
	if prev == nil || c.inflight[hash] != seq {
		c.mu.Unlock()
		return
	}
	next := prev.clone()
	next.FailureCount++
	next.Err = err
	c.entries[hash] = next
	subs := c.subscribersLocked()
	c.mu.Unlock()
	notify(subs, next)
}

// settle installs the outcome of a flight. The result is stale when the key
// was invalidated after the flight started.
func (c *Cache) settle(key Key, hash string, seq, gen uint64, value any, err error) *Entry {
	c.mu.Lock()
	if c.inflight[hash] == seq {
		delete(c.inflight, hash)
	}
	prev := c.entries[hash]
	now := c.clock.Now()
	var next *Entry
	if err == nil {
		next = &Entry{
			Key:       NewKey(key...),
			Status:    StatusSuccess,
			Value:     value,
			UpdatedAt: now,
			Stale:     c.gens[hash] != gen,
		}
		if prev != nil {
			next.PreviousValue = prev.Value
		}
	} else {
		next = &Entry{Key: NewKey(key...), Status: StatusError, Err: err, ErrorAt: now, FailureCount: 1}
		if prev != nil {
			next.Value = prev.Value
			next.PreviousValue = prev.PreviousValue
			next.UpdatedAt = prev.UpdatedAt
			next.Stale = prev.Stale
			next.FailureCount = prev.FailureCount + 1
		}
	}
	c.entries[hash] = next
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, next)
	return next
}

// Subscribe registers fn to receive every newly installed entry. Callbacks
// run outside the cache lock, in the goroutine that changed the entry.
func (c *Cache) Subscribe(fn func(*Entry)) (unsubscribe func()) {
	c.mu.Lock()
	c.subSeq++
	id := c.subSeq
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Cache) subscribersLocked() []func(*Entry) {
	if len(c.subs) == 0 {
		return nil
	}
	out := make([]func(*Entry), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(*Entry), e *Entry) {
	for _, fn := range subs {
		fn(e)
	}
}

func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	done := make(chan struct{})
	t := clk.AfterFunc(d, func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}
