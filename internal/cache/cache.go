package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Well-known scopes.
const (
	ScopeProducts = "products"
	ScopeCart     = "cart"
	ScopeWishlist = "wishlist"
)

// Loader produces a fresh value for a key.
type Loader func(ctx context.Context) (any, error)

type entry struct {
	value     any
	stale     bool
	fetchedAt time.Time
}

// Cache holds query results keyed by string. Invalidated entries keep their
// value until the next Get reloads them, so readers never see an empty gap.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	gens    map[string]uint64
	group   singleflight.Group
	now     func() time.Time

	subMu sync.Mutex
	subs  map[chan string]struct{}
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		gens:    make(map[string]uint64),
		now:     time.Now,
		subs:    make(map[chan string]struct{}),
	}
}

// Get returns the cached value for key, calling load when the key is missing
// or stale. Concurrent loads of the same key share one call.
func (c *Cache) Get(ctx context.Context, key string, load Loader) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !e.stale {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		gen := c.gens[key]
		c.mu.Unlock()

		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		// An invalidation that raced the load leaves the result stale.
		c.entries[key] = &entry{value: value, stale: c.gens[key] != gen, fetchedAt: c.now()}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return v, nil
}

// Load is a typed wrapper around Cache.Get.
func Load[T any](ctx context.Context, c *Cache, key string, load func(ctx context.Context) (T, error)) (T, error) {
	v, err := c.Get(ctx, key, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache key %s holds %T", key, v)
	}
	return typed, nil
}

// Peek returns the cached value without loading. ok is false when absent.
func (c *Cache) Peek(key string) (value any, stale bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[key]
	if !found {
		return nil, false, false
	}
	return e.value, e.stale, true
}

// Invalidate marks key stale and notifies subscribers. Unknown keys are still
// announced so views that have not loaded yet can react.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	c.gens[key]++
	if e, ok := c.entries[key]; ok {
		e.stale = true
	}
	c.mu.Unlock()
	c.publish(key)
}

// InvalidatePrefix marks every key starting with prefix stale.
func (c *Cache) InvalidatePrefix(prefix string) {
	var keys []string
	c.mu.Lock()
	for key, e := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.gens[key]++
			e.stale = true
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()
	for _, key := range keys {
		c.publish(key)
	}
}

// Stale reports whether key is cached and marked stale.
func (c *Cache) Stale(key string) bool {
	_, stale, _ := c.Peek(key)
	return stale
}

// Subscribe returns a channel receiving invalidated keys and a cancel func.
// Slow subscribers drop keys rather than block invalidation.
func (c *Cache) Subscribe(buffer int) (<-chan string, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan string, buffer)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, ch)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

func (c *Cache) publish(key string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- key:
		default:
		}
	}
}

// Scope returns the invalidation view of one resource family.
func (c *Cache) Scope(name string) Scope {
	return Scope{cache: c, name: name}
}

// Scope invalidates the list and detail entries of one resource family. It is
// the sink handed to the poller and the mutation coordinators.
type Scope struct {
	cache *Cache
	name  string
}

// Name returns the scope name.
func (s Scope) Name() string { return s.name }

// ListKey is the cache key of the collection-level query.
func (s Scope) ListKey() string { return s.name + ":list" }

// DetailKey is the cache key of the item-level query for id.
func (s Scope) DetailKey(id string) string { return s.name + ":item:" + id }

// InvalidateList marks the collection-level entry stale.
func (s Scope) InvalidateList() {
	s.cache.Invalidate(s.ListKey())
}

// InvalidateDetail marks the item-level entry for id stale.
func (s Scope) InvalidateDetail(id string) {
	s.cache.Invalidate(s.DetailKey(id))
}

// InvalidateAll marks every entry in the scope stale.
func (s Scope) InvalidateAll() {
	s.cache.InvalidatePrefix(s.name + ":")
}
