// Package lru provides a bounded in-memory cache with per-entry TTL and
// single-flight loading.
package lru

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pario-ai/dexcache/pkg/models"
)

// DefaultCapacity is used when a cache is created with a non-positive capacity.
const DefaultCapacity = 1000

// Cache is a bounded key-value store safe for concurrent use. Entries expire
// once older than the TTL; the least recently used entry is evicted to admit
// a new key when the cache is full. Values are stored and returned as-is and
// must not be mutated by callers.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	items    map[string]*list.Element
	order    *list.List // front is most recently used

	group singleflight.Group

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a Cache holding at most capacity entries, each usable for ttl.
// A non-positive ttl disables age-based expiry.
func New[V any](capacity int, ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache[V]{
		capacity: capacity,
		ttl:      ttl,
		now:      o.now,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the live value for key and marks it recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lookup(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// lookup is Get without hit/miss accounting.
func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.expired(e) {
		c.removeElement(el)
		c.expirations.Add(1)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

// Insert stores value under key, replacing any existing entry and resetting
// its recency and timestamp.
func (c *Cache[V]) Insert(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		el.Value = &entry[V]{key: key, value: value, insertedAt: now}
		c.order.MoveToFront(el)
		return
	}

	if len(c.items) >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
			c.evictions.Add(1)
		}
	}
	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value, insertedAt: now})
}

// Delete removes key from the cache. It reports whether an entry was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// Purge removes every entry.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

// Len returns the number of stored entries, including expired ones not yet observed.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache performance counters.
func (c *Cache[V]) Stats() models.CacheStats {
	return models.CacheStats{
		Entries:     int64(c.Len()),
		Capacity:    int64(c.capacity),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
	}
}

// Load returns the live value for key, or runs fn to produce it. Concurrent
// loads of the same key share one execution of fn and receive its outcome.
// Successful results are inserted before waiters are released; errors are
// returned to every waiter and never stored.
//
// fn runs on a context that keeps ctx's values but not its cancellation, so a
// caller that gives up does not abort the computation for the others. Such a
// caller returns ctx.Err() immediately.
func (c *Cache[V]) Load(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	v, _, err := c.LoadComputed(ctx, key, fn)
	return v, err
}

// LoadComputed is Load that also reports whether this caller's fn produced
// the value. It is false when the value was already cached or another
// caller's flight produced it.
func (c *Cache[V]) LoadComputed(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, bool, error) {
	var zero V
	if v, ok := c.lookup(key); ok {
		return v, false, nil
	}

	// ran is written by the flight goroutine before it publishes on ch.
	var ran bool
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// A previous flight may have filled the entry since our miss.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		ran = true
		v, err := fn(detached)
		if err != nil {
			return nil, err
		}
		c.Insert(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, ran, res.Err
		}
		v, ok := res.Val.(V)
		if !ok {
			return zero, false, fmt.Errorf("lru: unexpected value type %T for key %q", res.Val, key)
		}
		return v, ran, nil
	}
}

func (c *Cache[V]) expired(e *entry[V]) bool {
	return c.ttl > 0 && c.now().Sub(e.insertedAt) > c.ttl
}

// removeElement must be called with c.mu held.
func (c *Cache[V]) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}
