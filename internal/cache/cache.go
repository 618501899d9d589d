package cache

import (
	"math"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)

	// Size returns the current number of items in the cache
	Size() int
}

// TTLCache is a typed, expiring cache backed by go-cache. Expired entries
// are dropped by go-cache's own janitor. With a positive maxEntries, adding
// a new key to a full cache evicts the oldest entry first.
type TTLCache[T any] struct {
	mu         sync.Mutex
	backend    *gocache.Cache
	maxEntries int
}

// NewTTLCache creates a cache whose entries live for ttl and are purged
// every cleanup interval. maxEntries <= 0 leaves the size unbounded.
func NewTTLCache[T any](ttl, cleanup time.Duration, maxEntries int) *TTLCache[T] {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if cleanup <= 0 {
		cleanup = ttl
	}
	return &TTLCache[T]{backend: gocache.New(ttl, cleanup), maxEntries: maxEntries}
}

// Get retrieves a value from the cache
func (c *TTLCache[T]) Get(key string) (T, bool) {
	var zero T
	raw, ok := c.backend.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Set stores a value with the default expiration
func (c *TTLCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && c.backend.ItemCount() >= c.maxEntries {
		if _, found := c.backend.Get(key); !found {
			c.backend.DeleteExpired()
			for c.backend.ItemCount() >= c.maxEntries {
				if !c.evictOldest() {
					break
				}
			}
		}
	}
	c.backend.Set(key, data, gocache.DefaultExpiration)
}

// evictOldest drops the entry closest to expiry. Every entry shares one ttl,
// so that is the least recently stored.
func (c *TTLCache[T]) evictOldest() bool {
	oldest, at := "", int64(math.MaxInt64)
	for k, item := range c.backend.Items() {
		if item.Expiration < at {
			oldest, at = k, item.Expiration
		}
	}
	if oldest == "" {
		return false
	}
	c.backend.Delete(oldest)
	return true
}

// Delete removes a key from the cache
func (c *TTLCache[T]) Delete(key string) {
	c.backend.Delete(key)
}

// Size counts entries, including expired ones not yet purged
func (c *TTLCache[T]) Size() int {
	return c.backend.ItemCount()
}

// Flush drops every entry
func (c *TTLCache[T]) Flush() {
	c.backend.Flush()
}
