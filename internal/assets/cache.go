package assets

import "sync"

// Cache is a simple in-memory cache for raw file contents.
type Cache struct {
	data  map[string][]byte
	bytes int
	mu    sync.RWMutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytes += len(data) - len(c.data[key])
	c.data[key] = data
}

// Delete drops one item.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytes -= len(c.data[key])
	delete(c.data, key)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.bytes = 0
	c.hits = 0
	c.misses = 0
}

// Len returns the number of cached items and their total size.
func (c *Cache) Len() (items, bytes int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data), c.bytes
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
