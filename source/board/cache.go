package board

import (
	"context"
	"crm/source/schemas"
	"errors"
	"slices"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrReadSuperseded is returned by Load when the cache entry changed while the
// read was in flight; the read result was dropped.
var ErrReadSuperseded = errors.New("read superseded by a newer cache write")

// Key identifies the cached pages of one kanban column under one filter set.
type Key struct {
	FunnelID bson.ObjectID
	StageID  string
	Filters  string
}

func KeyFor(funnelID bson.ObjectID, stageID string, filters schemas.StageFilters) Key {
	return Key{FunnelID: funnelID, StageID: stageID, Filters: filters.CanonicalKey()}
}

// Entry is an immutable snapshot of a column: Pages[i] is page i+1. Updates
// build a new Entry, so holding a pointer is a consistent snapshot.
type Entry struct {
	Pages []schemas.StagePage
	Stale bool
}

// Page returns page n (1-based).
func (e *Entry) Page(n int) (schemas.StagePage, bool) {
	if e == nil || n < 1 || n > len(e.Pages) || e.Pages[n-1].Items == nil {
		return schemas.StagePage{}, false
	}
	return e.Pages[n-1], true
}

func (e *Entry) withPage(n int, page schemas.StagePage) *Entry {
	next := &Entry{}
	if e != nil {
		next.Pages = slices.Clone(e.Pages)
		next.Stale = e.Stale
	}
	for len(next.Pages) < n {
		next.Pages = append(next.Pages, schemas.StagePage{})
	}
	next.Pages[n-1] = page
	return next
}

// Snapshot holds the entries of some keys as they were at one instant; a
// nil entry records that the key was absent.
type Snapshot map[Key]*Entry

// QueryCache is the board's page cache. Every change replaces whole entries
// under one lock, and a multi-key change is observed by readers either fully
// or not at all.
type QueryCache struct {
	mu         sync.Mutex
	entries    map[Key]*Entry
	generation map[Key]uint64
	inflight   map[Key]map[uint64]context.CancelFunc
	nextRead   uint64
}

func NewQueryCache() *QueryCache {
	return &QueryCache{
		entries:    make(map[Key]*Entry),
		generation: make(map[Key]uint64),
		inflight:   make(map[Key]map[uint64]context.CancelFunc),
	}
}

func (c *QueryCache) Get(key Key) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key]
}

// Load returns page n of key from the cache when it is there and fresh, and
// reads it with fetch otherwise. A read whose key is written, cancelled or
// invalidated before it finishes is dropped with ErrReadSuperseded. The
// first read after an invalidation starts the entry over.
func (c *QueryCache) Load(ctx context.Context, key Key, n int, fetch func(ctx context.Context) (schemas.StagePage, error)) (schemas.StagePage, error) {
	c.mu.Lock()
	entry := c.entries[key]
	if page, ok := entry.Page(n); ok && !entry.Stale {
		c.mu.Unlock()
		return page, nil
	}

	readCtx, cancel := context.WithCancel(ctx)
	c.nextRead++
	readID := c.nextRead
	if c.inflight[key] == nil {
		c.inflight[key] = make(map[uint64]context.CancelFunc)
	}
	c.inflight[key][readID] = cancel
	generation := c.generation[key]
	c.mu.Unlock()

	page, err := fetch(readCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight[key], readID)
	cancel()

	if c.generation[key] != generation {
		return schemas.StagePage{}, ErrReadSuperseded
	}
	if err != nil {
		return schemas.StagePage{}, err
	}
	if page.Items == nil {
		page.Items = []schemas.KanbanItem{}
	}

	current := c.entries[key]
	if current != nil && current.Stale {
		current = nil
	}
	c.entries[key] = current.withPage(n, page)
	return page, nil
}

// Cancel aborts the reads in flight for keys; their results will not be
// stored.
func (c *QueryCache) Cancel(keys ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		for _, cancel := range c.inflight[key] {
			cancel()
		}
		delete(c.inflight, key)
		c.generation[key]++
	}
}

func (c *QueryCache) Snapshot(keys ...Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make(Snapshot, len(keys))
	for _, key := range keys {
		snapshot[key] = c.entries[key]
	}
	return snapshot
}

// Restore puts the snapshotted entries back verbatim.
func (c *QueryCache) Restore(snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range snapshot {
		if entry == nil {
			delete(c.entries, key)
		} else {
			c.entries[key] = entry
		}
		c.generation[key]++
	}
}

// Apply replaces the entries of keys with what update returns, in one step.
// update receives the current entries and must not modify them.
func (c *QueryCache) Apply(update func(current Snapshot) Snapshot, keys ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := make(Snapshot, len(keys))
	for _, key := range keys {
		current[key] = c.entries[key]
	}
	for key, entry := range update(current) {
		if entry == nil {
			delete(c.entries, key)
		} else {
			c.entries[key] = entry
		}
		c.generation[key]++
	}
}

// Invalidate marks keys stale so the next Load reads from the server. The
// stale pages stay readable through Get until then.
func (c *QueryCache) Invalidate(keys ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		c.invalidateLocked(key)
	}
}

// InvalidateStages marks stale every cached filter set of the given stages.
func (c *QueryCache) InvalidateStages(funnelID bson.ObjectID, stageIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.FunnelID == funnelID && slices.Contains(stageIDs, key.StageID) {
			c.invalidateLocked(key)
		}
	}
}

func (c *QueryCache) invalidateLocked(key Key) {
	c.generation[key]++
	entry := c.entries[key]
	if entry == nil || entry.Stale {
		return
	}
	c.entries[key] = &Entry{Pages: entry.Pages, Stale: true}
}
