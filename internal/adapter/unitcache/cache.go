// Package unitcache decorates a repository with an LRU cache of spatial units.
package unitcache

import (
	"context"
	"sync"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
	"github.com/couchcryptid/urban-comfort-index/internal/observability"
)

// Repository wraps a domain.Repository and caches FindSpatialUnit results.
// Every other method passes straight through. Writes to a unit refresh its
// cache entry so readers never observe a stale name or geometry.
type Repository struct {
	domain.Repository
	cache   *lruCache[string, domain.SpatialUnit]
	metrics *observability.Metrics
}

// New creates a cache decorator around repo holding up to maxEntries units.
func New(repo domain.Repository, maxEntries int, metrics *observability.Metrics) *Repository {
	return &Repository{
		Repository: repo,
		cache:      newLRUCache[string, domain.SpatialUnit](maxEntries),
		metrics:    metrics,
	}
}

func (r *Repository) FindSpatialUnit(ctx context.Context, unitID string) (domain.SpatialUnit, error) {
	if u, ok := r.cache.get(unitID); ok {
		r.metrics.UnitCache.WithLabelValues("hit").Inc()
		return u, nil
	}
	r.metrics.UnitCache.WithLabelValues("miss").Inc()
	u, err := r.Repository.FindSpatialUnit(ctx, unitID)
	if err != nil {
		// Misses are not cached so a unit registered later becomes visible.
		return u, err
	}
	r.cache.put(unitID, u)
	return u, nil
}

func (r *Repository) SaveSpatialUnit(ctx context.Context, u domain.SpatialUnit) error {
	if err := r.Repository.SaveSpatialUnit(ctx, u); err != nil {
		r.cache.delete(u.ID)
		return err
	}
	r.cache.put(u.ID, u)
	return nil
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[K comparable, V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[K]*entry[K, V]
	head       *entry[K, V] // most recently used
	tail       *entry[K, V] // least recently used
}

type entry[K comparable, V any] struct {
	key   K
	value V
	prev  *entry[K, V]
	next  *entry[K, V]
}

func newLRUCache[K comparable, V any](maxEntries int) *lruCache[K, V] {
	return &lruCache[K, V]{
		maxEntries: maxEntries,
		entries:    make(map[K]*entry[K, V]),
	}
}

func (c *lruCache[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[K, V]) put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[K, V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[K, V]) delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.remove(e)
	}
}

func (c *lruCache[K, V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[K, V]) moveToFront(e *entry[K, V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[K, V]) addToFront(e *entry[K, V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[K, V]) remove(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[K, V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}

var _ domain.Repository = (*Repository)(nil)
