// Package cache memoizes expensive lookups. A computed key is served from
// memory until its TTL lapses or it is invalidated, and concurrent misses on
// the same key share a single computation.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// Recorder receives hit and miss notifications. *metrics.Metrics satisfies it.
type Recorder interface {
	CacheHit(cache string)
	CacheMiss(cache string)
	CacheEntries(cache string, n int)
}

// Options configures a Cache.
type Options struct {
	// Name labels metrics and logs.
	Name string

	// TTL bounds how long a computed value is served. Zero means values never
	// expire on their own.
	TTL time.Duration

	// Capacity caps the number of entries; the least recently used entry is
	// evicted first. Zero means unbounded.
	Capacity uint64

	Recorder Recorder
}

// Cache is a concurrency-safe memo table keyed by string.
type Cache[V any] struct {
	name     string
	items    *ttlcache.Cache[string, V]
	group    singleflight.Group
	recorder Recorder

	// mu orders stores from finished computations against Invalidate.
	mu      sync.Mutex
	flights map[string]*flight

	closeOnce sync.Once
}

// flight tracks one running computation. stale is set when its key is
// invalidated before it finishes, and the result is then never stored.
type flight struct {
	stale bool
}

// New creates a cache. Call Close when done to stop the expiry loop.
func New[V any](opts Options) *Cache[V] {
	cacheOpts := []ttlcache.Option[string, V]{
		ttlcache.WithDisableTouchOnHit[string, V](),
	}
	if opts.TTL > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithTTL[string, V](opts.TTL))
	}
	if opts.Capacity > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, V](opts.Capacity))
	}

	c := &Cache[V]{
		name:     opts.Name,
		items:    ttlcache.New(cacheOpts...),
		recorder: opts.Recorder,
		flights:  make(map[string]*flight),
	}
	go c.items.Start()
	return c
}

// GetOrCompute returns the value stored under key, calling fn to produce it
// on a miss. Concurrent misses for the same key wait for one fn call and all
// receive its result. Errors are returned to every waiter and never stored.
//
// fn runs with a context detached from the caller's cancellation, since other
// callers may be waiting on the same result. The caller still stops waiting
// when its own ctx is done.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	if item := c.items.Get(key); item != nil {
		c.hit()
		return item.Value(), nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// A flight that finished just before we joined may already have
		// stored the value.
		if item := c.items.Get(key); item != nil {
			c.hit()
			return item.Value(), nil
		}

		c.miss()
		f := c.begin(key)
		v, err := fn(context.WithoutCancel(ctx))
		c.finish(key, f, v, err == nil)
		return v, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Peek returns the stored value without computing anything.
func (c *Cache[V]) Peek(key string) (V, bool) {
	if item := c.items.Get(key); item != nil {
		return item.Value(), true
	}
	var zero V
	return zero, false
}

// Invalidate drops key so the next GetOrCompute recomputes it. A computation
// already in flight is not interrupted, but its result is handed only to the
// callers already waiting on it and is not stored.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	if f, ok := c.flights[key]; ok {
		f.stale = true
		delete(c.flights, key)
	}
	c.items.Delete(key)
	c.group.Forget(key)
	c.mu.Unlock()
	c.entries()
}

func (c *Cache[V]) begin(key string) *flight {
	f := &flight{}
	c.mu.Lock()
	c.flights[key] = f
	c.mu.Unlock()
	return f
}

// finish retires f and stores v unless the key was invalidated meanwhile.
func (c *Cache[V]) finish(key string, f *flight, v V, store bool) {
	c.mu.Lock()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
	store = store && !f.stale
	if store {
		c.items.Set(key, v, ttlcache.DefaultTTL)
	}
	c.mu.Unlock()
	if store {
		c.entries()
	}
}

// DeleteExpired sweeps expired entries now instead of waiting for the
// background loop.
func (c *Cache[V]) DeleteExpired() {
	c.items.DeleteExpired()
	c.entries()
}

// Len is the number of stored entries.
func (c *Cache[V]) Len() int {
	return c.items.Len()
}

// Name is the label given at construction.
func (c *Cache[V]) Name() string {
	return c.name
}

// Close stops the background expiry loop. Later calls do nothing.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(c.items.Stop)
}

func (c *Cache[V]) hit() {
	if c.recorder != nil {
		c.recorder.CacheHit(c.name)
	}
}

func (c *Cache[V]) miss() {
	if c.recorder != nil {
		c.recorder.CacheMiss(c.name)
	}
}

func (c *Cache[V]) entries() {
	if c.recorder != nil {
		c.recorder.CacheEntries(c.name, c.items.Len())
	}
}
