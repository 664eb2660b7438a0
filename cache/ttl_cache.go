// Package cache provides a generic TTL cache that memoizes in-flight loads.
//
// The cache stores the load itself, not just its result: the first caller
// for a key starts the load and every caller arriving while it is still
// running awaits the same handle. This guarantees at most one concurrent
// upstream call per key.
package cache

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of a single load. TTL overrides the cache's default
// TTL for this entry when set to a positive duration.
type Result[V any] struct {
	Value V
	TTL   time.Duration
}

// LoadFunc fetches the value for a key from the upstream source.
type LoadFunc[K comparable, V any] func(ctx context.Context, key K) (Result[V], error)

// entry is a memoized future. done is closed once value, err and expiresAt
// have been written; after that the fields are read-only.
type entry[V any] struct {
	done      chan struct{}
	value     V
	err       error
	expiresAt time.Time
}

// Cache is a single-flight TTL cache. Entries are evicted lazily on access
// once expired, or eagerly when an optional insertion-order bound is
// exceeded.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	entries    map[K]*entry[V]
	order      []K
	defaultTTL time.Duration
	maxEntries int
	load       LoadFunc[K, V]
	nowTime    func() time.Time
}

// Option defines a function type to modify the Cache instance.
type Option[K comparable, V any] func(*Cache[K, V])

// WithMaxEntries bounds the cache to n entries. When an insertion pushes the
// cache above the bound, the oldest-inserted entries are evicted down to the
// bound. This is an insertion-order cap, not LRU.
func WithMaxEntries[K comparable, V any](n int) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.maxEntries = n
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime[K comparable, V any](nowFunc func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.nowTime = nowFunc
	}
}

// New creates a Cache that resolves misses through load. Entries expire
// defaultTTL after the load completes unless the load returns its own TTL.
func New[K comparable, V any](defaultTTL time.Duration, load LoadFunc[K, V], options ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		entries:    make(map[K]*entry[V]),
		defaultTTL: defaultTTL,
		load:       load,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Get returns the cached value for key, loading it if no unexpired entry
// exists. With forceRefresh the current entry is evicted first and a new
// load always starts.
//
// A failed load is cached like a value: every caller sharing the entry sees
// the same error until the entry's TTL passes or a forced refresh replaces
// it. ctx only bounds the caller's wait; a started load always runs to
// completion so that other waiters still get a result.
func (c *Cache[K, V]) Get(ctx context.Context, key K, forceRefresh bool) (V, error) {
	var zero V

	c.mu.Lock()
	if forceRefresh {
		c.deleteLocked(key)
	}
	for {
		e, ok := c.entries[key]
		started := !ok
		if !ok {
			e = c.startLoadLocked(ctx, key)
		}
		c.mu.Unlock()

		select {
		case <-e.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}

		// A load this call started is answered directly, without an expiry
		// re-check: with a TTL at or near zero the entry may already be
		// expired by the time it resolves, and re-checking would turn a
		// pass-through configuration into an endless reload loop.
		if started {
			return e.value, e.err
		}

		c.mu.Lock()
		if c.nowTime().Before(e.expiresAt) {
			c.mu.Unlock()
			return e.value, e.err
		}
		// The entry resolved but has since expired. Evict it, unless a
		// forced refresh already replaced it, and go around again.
		if current, ok := c.entries[key]; ok && current == e {
			c.deleteLocked(key)
		}
	}
}

// Clear drops all entries unconditionally.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*entry[V])
	c.order = nil
}

// Len returns the number of entries, including in-flight and expired ones
// that have not been evicted yet.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// startLoadLocked inserts a pending entry for key and starts the load in its
// own goroutine. The result is written into the entry handle created here
// and never re-inserted into the map, so a load that was superseded by a
// forced refresh or eviction cannot silently repopulate the cache.
func (c *Cache[K, V]) startLoadLocked(ctx context.Context, key K) *entry[V] {
	e := &entry[V]{done: make(chan struct{})}
	c.entries[key] = e
	c.order = append(c.order, key)
	c.enforceBoundLocked()

	// Detach from the triggering caller's cancellation: other callers may
	// be waiting on the same entry.
	loadCtx := context.WithoutCancel(ctx)
	go func() {
		result, err := c.load(loadCtx, key)
		ttl := result.TTL
		if ttl <= 0 {
			ttl = c.defaultTTL
		}
		c.mu.Lock()
		e.value = result.Value
		e.err = err
		e.expiresAt = c.nowTime().Add(ttl)
		c.mu.Unlock()
		close(e.done)
	}()
	return e
}

func (c *Cache[K, V]) enforceBoundLocked() {
	if c.maxEntries <= 0 {
		return
	}
	for len(c.entries) > c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *Cache[K, V]) deleteLocked(key K) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
