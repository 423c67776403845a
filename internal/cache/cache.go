// Package cache is a small generic in-memory cache with optional expiry.
package cache

import (
	"sync"
	"time"

	"github.com/drallgood/bookfeed/internal/logger"
)

// Cache stores values by key. A zero TTL never expires.
type Cache[K comparable, V any] interface {
	Set(key K, value V, ttl time.Duration)
	Get(key K) (V, bool)
	Delete(key K)
	Len() int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type memoryCache[K comparable, V any] struct {
	items map[K]entry[V]
	mu    sync.RWMutex
	now   func() time.Time
	log   *logger.Logger
}

// NewMemoryCache creates an empty cache
func NewMemoryCache[K comparable, V any](log *logger.Logger) Cache[K, V] {
	if log == nil {
		log = logger.Get()
	}
	return &memoryCache[K, V]{
		items: make(map[K]entry[V]),
		now:   time.Now,
		log:   log.Component("cache"),
	}
}

func (c *memoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}
	c.log.Debug("Item added to cache", map[string]interface{}{"cache_size": len(c.items)})
}

func (c *memoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	item, found := c.items[key]
	c.mu.RUnlock()

	if !found {
		var zero V
		return zero, false
	}
	if !item.expiresAt.IsZero() && c.now().After(item.expiresAt) {
		c.Delete(key)
		var zero V
		return zero, false
	}
	return item.value, true
}

func (c *memoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *memoryCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// GetOrLoad returns the cached value for key, calling load on a miss. The
// loaded value is stored only when load returns a nil error.
func GetOrLoad[K comparable, V any](c Cache[K, V], key K, ttl time.Duration, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v, ttl)
	return v, nil
}
