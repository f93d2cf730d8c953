package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Snapshot is the serialized form of a cache, embedded in a rendered page so
// the receiving cache starts with the data the server already fetched.
type Snapshot struct {
	Queries []DehydratedQuery `json:"queries"`
}

// DehydratedQuery is one successful entry in a Snapshot.
type DehydratedQuery struct {
	Key       Key             `json:"key"`
	Hash      string          `json:"hash"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Decoder turns the raw data of a dehydrated query back into the value the
// cache stores for that key.
type Decoder func(key Key, raw json.RawMessage) (any, error)

// Dehydrate serializes every successful entry, ordered by key hash.
func (c *Cache) Dehydrate() (Snapshot, error) {
	c.mu.Lock()
	entries := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Status == StatusSuccess && e.Value != nil {
			entries = append(entries, e)
		}
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.Hash() < entries[j].Key.Hash()
	})

	snap := Snapshot{Queries: make([]DehydratedQuery, 0, len(entries))}
	for _, e := range entries {
		data, err := json.Marshal(e.Value)
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to encode %s: %w", e.Key.Hash(), err)
		}
		snap.Queries = append(snap.Queries, DehydratedQuery{
			Key:       NewKey(e.Key...),
			Hash:      e.Key.Hash(),
			Data:      data,
			UpdatedAt: e.UpdatedAt,
		})
	}
	return snap, nil
}

// Hydrate seeds the cache from a snapshot and returns how many entries were
// installed. An entry already holding data at least as new as the snapshot's
// is kept. Queries whose hash does not match their key are skipped.
func (c *Cache) Hydrate(snap Snapshot, decode Decoder) (int, error) {
	type seeded struct {
		q     DehydratedQuery
		value any
	}
	decoded := make([]seeded, 0, len(snap.Queries))
	for _, q := range snap.Queries {
		if q.Hash != q.Key.Hash() {
			c.log.Warn("query_hydrate_hash_mismatch", "key", q.Key.Hash(), "hash", q.Hash)
			continue
		}
		v, err := decode(q.Key, q.Data)
		if err != nil {
			return 0, fmt.Errorf("failed to decode %s: %w", q.Hash, err)
		}
		decoded = append(decoded, seeded{q: q, value: v})
	}

	c.mu.Lock()
	var installed []*Entry
	for _, s := range decoded {
		prev := c.entries[s.q.Hash]
		if prev != nil && prev.HasValue() && !prev.UpdatedAt.Before(s.q.UpdatedAt) {
			continue
		}
		next := &Entry{
			Key:       NewKey(s.q.Key...),
			Status:    StatusSuccess,
			Value:     s.value,
			UpdatedAt: s.q.UpdatedAt,
		}
		if prev != nil {
			next.PreviousValue = prev.Value
			next.Fetching = prev.Fetching
		}
		c.entries[s.q.Hash] = next
		installed = append(installed, next)
	}
	subs := c.subscribersLocked()
	c.mu.Unlock()

	for _, e := range installed {
		notify(subs, e)
	}
	c.log.Debug("query_hydrate", "installed", len(installed), "offered", len(snap.Queries))
	return len(installed), nil
}
