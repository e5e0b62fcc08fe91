package utils

import (
	"sync"
	"time"
)

// Cache is a small in-process TTL memo. The dashboard wraps its aggregate
// queries in one so a refresh storm never fans out to the database.
type Cache[V any] struct {
	mu   sync.RWMutex
	data map[string]cacheEntry[V]
	ttl  time.Duration

	cleanupTicker *time.Ticker
	done          chan struct{}
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewCache creates a cache with the given TTL and starts its cleanup
// routine.
func NewCache[V any](ttl time.Duration) *Cache[V] {
	c := &Cache[V]{
		data:          make(map[string]cacheEntry[V]),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(5 * time.Minute),
		done:          make(chan struct{}),
	}
	go c.cleanupRoutine()
	return c
}

// Close stops the cleanup routine.
func (c *Cache[V]) Close() {
	c.cleanupTicker.Stop()
	close(c.done)
}

// Get returns the cached value if present and fresh.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Set stores a value under key for the cache TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.data[key] = cacheEntry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete removes a key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Size returns the number of entries, expired ones included until sweep.
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// GetOrFill returns the cached value or computes, stores and returns it.
// Concurrent misses may race the fill; last write wins, which is fine for
// memoized reads.
func (c *Cache[V]) GetOrFill(key string, fill func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fill()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

func (c *Cache[V]) cleanupRoutine() {
	for {
		select {
		case <-c.cleanupTicker.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Cache[V]) cleanup() {
	now := time.Now()
	c.mu.Lock()
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
		}
	}
	c.mu.Unlock()
}
