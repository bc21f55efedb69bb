// Package querycache provides an in-memory cache for remote query results.
//
// Entries are keyed by a query fingerprint, carry a TTL and a set of tags, and are
// evicted least-recently-used first once the cache grows past its capacity. Tags
// allow bulk invalidation of every cached read that depends on one resource, e.g.
// "categories:<user>" after a category mutation.
//
// A miss is never an error: Get reports it through its boolean result. The cache
// performs no I/O; callers repopulate it after fetching.
package querycache

import (
	"container/list"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Defaults used when no option overrides them.
const (
	DefaultMaxEntries = 500
	DefaultTTL        = 5 * time.Minute
)

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries sets the capacity after which LRU eviction kicks in.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithDefaultTTL sets the TTL applied by Set when it is given a non-positive ttl.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.defaultTTL = d
		}
	}
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for eviction and sweep diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// Cache is a tagged TTL cache with LRU eviction. It is safe for concurrent use.
type Cache struct {
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu    sync.Mutex
	items map[string]*list.Element // key -> element holding *entry
	lru   *list.List               // front is most recently used
	tags  map[string]map[string]struct{}

	// Invalidation counters read by Generation. gens is bumped by
	// InvalidateByTag even when nothing is cached under the tag.
	gens   map[string]uint64
	clears uint64

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64
	bytes     int64
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		maxEntries: DefaultMaxEntries,
		defaultTTL: DefaultTTL,
		now:        time.Now,
		logger:     slog.Default(),
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		tags:       make(map[string]map[string]struct{}),
		gens:       make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key. An expired entry is removed and reported
// as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	now := c.now()
	if e.expiredAt(now) {
		c.removeElement(el)
		c.expired++
		c.misses++
		return nil, false
	}

	e.accessCount++
	e.lastAccess = now
	c.lru.MoveToFront(el)
	c.hits++
	return e.value, true
}

// GetAs is Get with a type assertion. A value of the wrong type counts as a hit
// in the stats but is returned as a miss.
func GetAs[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Set inserts or overwrites key. A non-positive ttl means the default TTL.
func (c *Cache) Set(key string, value any, ttl time.Duration, tags ...string) {
	size := estimateSize(key, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value, ttl, size, tags)
}

// Generation returns a counter that changes whenever any of tags is
// invalidated or the cache is cleared. Read it before a slow load and pass it
// to SetIfGeneration so the load cannot overwrite a newer invalidation.
func (c *Cache) Generation(tags ...string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(tags)
}

// SetIfGeneration is Set that only stores value when Generation(tags...) still
// equals gen. It reports whether the value was stored.
func (c *Cache) SetIfGeneration(gen uint64, key string, value any, ttl time.Duration, tags ...string) bool {
	size := estimateSize(key, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation(tags) != gen {
		c.logger.Debug("querycache: stale set dropped", slog.String("key", key))
		return false
	}
	c.set(key, value, ttl, size, tags)
	return true
}

func (c *Cache) generation(tags []string) uint64 {
	g := c.clears
	for _, t := range tags {
		g += c.gens[t]
	}
	return g
}

func (c *Cache) set(key string, value any, ttl time.Duration, size int, tags []string) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		c.untag(e)
		c.bytes -= int64(e.size)

		e.value = value
		e.createdAt = now
		e.expiresAt = now.Add(ttl)
		e.lastAccess = now
		e.tags = tagSet(tags)
		e.size = size

		c.bytes += int64(size)
		c.tag(e)
		c.lru.MoveToFront(el)
		return
	}

	e := &entry{
		key:        key,
		value:      value,
		createdAt:  now,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
		tags:       tagSet(tags),
		size:       size,
	}
	c.items[key] = c.lru.PushFront(e)
	c.bytes += int64(size)
	c.tag(e)

	for c.lru.Len() > c.maxEntries {
		oldest := c.lru.Back()
		victim := oldest.Value.(*entry)
		c.removeElement(oldest)
		c.evictions++
		c.logger.Debug("querycache: evicted", slog.String("key", victim.key))
	}
}

// Delete removes key. Deleting a missing key is a no-op.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// InvalidateByTag removes every entry tagged with tag and returns how many were removed.
func (c *Cache) InvalidateByTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[tag]++
	keys, ok := c.tags[tag]
	if !ok {
		return 0
	}
	victims := make([]string, 0, len(keys))
	for k := range keys {
		victims = append(victims, k)
	}
	for _, k := range victims {
		if el, ok := c.items[k]; ok {
			c.removeElement(el)
		}
	}
	return len(victims)
}

// Clear removes all entries. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.tags = make(map[string]map[string]struct{})
	c.bytes = 0
	c.clears++
}

// Prune removes expired entries and returns how many were removed.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry).expiredAt(now) {
			c.removeElement(el)
			c.expired++
			removed++
		}
		el = prev
	}
	return removed
}

// RunJanitor prunes expired entries every interval until ctx is cancelled.
func (c *Cache) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.Prune(); n > 0 {
				c.logger.Debug("querycache: pruned expired entries", slog.Int("count", n))
			}
		}
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:        c.lru.Len(),
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expired:     c.expired,
		MemoryBytes: c.bytes,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Entries returns a snapshot of every stored entry, most recently used first.
// Expired entries that have not been removed yet are included and flagged.
func (c *Cache) Entries() []EntryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]EntryInfo, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).info(now))
	}
	return out
}

// Tags returns every tag currently attached to at least one entry, sorted.
func (c *Cache) Tags() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.tags))
	for t := range c.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// removeElement drops el from every structure. Caller holds c.mu.
func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	c.lru.Remove(el)
	delete(c.items, e.key)
	c.untag(e)
	c.bytes -= int64(e.size)
}

func (c *Cache) tag(e *entry) {
	for t := range e.tags {
		keys, ok := c.tags[t]
		if !ok {
			keys = make(map[string]struct{})
			c.tags[t] = keys
		}
		keys[e.key] = struct{}{}
	}
}

func (c *Cache) untag(e *entry) {
	for t := range e.tags {
		keys := c.tags[t]
		delete(keys, e.key)
		if len(keys) == 0 {
			delete(c.tags, t)
		}
	}
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

// estimateSize approximates the memory held by an entry from its JSON encoding.
func estimateSize(key string, value any) int {
	b, err := json.Marshal(value)
	if err != nil {
		return len(key)
	}
	return len(key) + len(b)
}
