// Package cache provides the per-category freshness caches that sit in front
// of the provider fallback chains.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"market-pulse/config"
	"market-pulse/observability"
)

// Cache is a bounded, time-boxed cache for one data category.
//
// Entries go stale once now > insertedAt+TTL and are dropped lazily on the
// next lookup; nothing sweeps in the background. When full, the least
// recently used entry is evicted. A Store, if configured, is written through
// and consulted on local misses.
type Cache struct {
	category string
	ttl      time.Duration

	mu      sync.Mutex
	entries *simplelru.LRU[string, entry]

	store   Store
	metrics *observability.Metrics
	now     func() time.Time
}

type entry struct {
	value      any
	insertedAt time.Time
}

// envelope is the Store representation of an entry
type envelope[T any] struct {
	Value      T         `json:"value"`
	InsertedAt time.Time `json:"inserted_at"`
}

// Option configures a Cache
type Option func(*Cache)

// WithStore layers a shared Store under the in-process cache
func WithStore(s Store) Option {
	return func(c *Cache) {
		c.store = s
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache for category with the given capacity and TTL
func New(category string, cfg config.CacheCategoryConfig, opts ...Option) (*Cache, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("cache %s: size must be positive, got %d", category, cfg.Size)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cache %s: ttl must be positive, got %v", category, cfg.TTL)
	}

	entries, err := simplelru.NewLRU[string, entry](cfg.Size, nil)
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", category, err)
	}

	c := &Cache{
		category: category,
		ttl:      cfg.TTL,
		entries:  entries,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observability.GetMetrics()
	}
	return c, nil
}

// Category returns the category name
func (c *Cache) Category() string {
	return c.category
}

// TTL returns the entry lifetime
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Len returns the number of entries held locally, stale ones included
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Purge drops every local entry
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

func (c *Cache) lookup(key string) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok {
		return entry{}, false
	}
	if c.expired(e.insertedAt) {
		c.entries.Remove(key)
		return entry{}, false
	}
	return e, true
}

func (c *Cache) add(key string, e entry) {
	c.mu.Lock()
	evicted := c.entries.Add(key, e)
	c.mu.Unlock()

	if evicted {
		c.metrics.RecordCacheEviction(c.category)
	}
}

func (c *Cache) expired(insertedAt time.Time) bool {
	return c.now().After(insertedAt.Add(c.ttl))
}

func (c *Cache) storeKey(key string) string {
	return c.category + ":" + key
}

// Get returns the fresh value stored under key
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T

	if e, ok := c.lookup(key); ok {
		if v, ok := e.value.(T); ok {
			c.metrics.RecordCacheHit(c.category)
			return v, true
		}
	}

	if c.store != nil {
		var env envelope[T]
		err := c.store.Get(ctx, c.storeKey(key), &env)
		switch {
		case err == nil && !c.expired(env.InsertedAt):
			c.add(key, entry{value: env.Value, insertedAt: env.InsertedAt})
			c.metrics.RecordCacheHit(c.category)
			return env.Value, true
		case err != nil && !errors.Is(err, ErrCacheMiss):
			observability.WithCategory(c.category).Warn("cache store read failed", "error", err)
		}
	}

	c.metrics.RecordCacheMiss(c.category)
	return zero, false
}

// Put stores value under key, replacing any previous entry
func Put[T any](ctx context.Context, c *Cache, key string, value T) {
	insertedAt := c.now()
	c.add(key, entry{value: value, insertedAt: insertedAt})

	if c.store != nil {
		env := envelope[T]{Value: value, InsertedAt: insertedAt}
		if err := c.store.Set(ctx, c.storeKey(key), env, c.ttl); err != nil {
			observability.WithCategory(c.category).Warn("cache store write failed", "error", err)
		}
	}
}

// GetOrLoad returns the fresh value under key, or calls load and stores its
// result. Empty results are stored like any other. Load errors are returned
// and nothing is stored. Concurrent misses on the same key may each load;
// the last store wins.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := Get[T](ctx, c, key); ok {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	Put(ctx, c, key, v)
	return v, nil
}
