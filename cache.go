package campusadmin

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PublicCache holds rendered public read results with a TTL. Any admin write
// purges it.
type PublicCache struct {
	lru *expirable.LRU[string, any]
}

// NewPublicCache creates a cache of at most size entries that expire after ttl.
func NewPublicCache(size int, ttl time.Duration) *PublicCache {
	return &PublicCache{lru: expirable.NewLRU[string, any](size, nil, ttl)}
}

// Get returns the cached value for key.
func (c *PublicCache) Get(key string) (any, bool) {
	return c.lru.Get(key)
}

// Add stores value under key.
func (c *PublicCache) Add(key string, value any) {
	c.lru.Add(key, value)
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PublicCache) Invalidate() {
	c.lru.Purge()
}

// Len reports the number of live entries.
func (c *PublicCache) Len() int {
	return c.lru.Len()
}

// cached returns the value stored under key, loading and storing it on a miss.
// Load errors are not cached.
func cached[T any](c *PublicCache, key string, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Add(key, v)
	return v, nil
}
