package gateway

import "sync"

// cache holds the last known copy of each entity of one resource, keyed by id
type cache[T any] struct {
	mu    sync.RWMutex
	items map[int64]T
}

func newCache[T any]() *cache[T] {
	return &cache[T]{items: make(map[int64]T)}
}

func (c *cache[T]) get(id int64) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[id]
	return v, ok
}

func (c *cache[T]) put(id int64, v T) {
	c.mu.Lock()
	c.items[id] = v
	c.mu.Unlock()
}

func (c *cache[T]) drop(id int64) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

func (c *cache[T]) clear() {
	c.mu.Lock()
	c.items = make(map[int64]T)
	c.mu.Unlock()
}

func (c *cache[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
