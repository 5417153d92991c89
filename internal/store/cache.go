package store

import (
	"container/list"
	"sync"

	"github.com/aweris/imgsync"
)

// Cache provides in-memory caching for container records.
type Cache interface {
	Get(key string) (imgsync.Container, bool)
	Add(key string, value imgsync.Container)
	Remove(key string)
	Clear()
}

type entry struct {
	key   string
	value imgsync.Container
}

// LRUCache evicts the least recently used record once full.
type LRUCache struct {
	maxSize int
	ll      *list.List
	items   map[string]*list.Element
	mu      sync.Mutex
}

// NewLRUCache creates a new LRU cache. A size below one disables caching.
func NewLRUCache(maxSize int) *LRUCache {
	return &LRUCache{
		maxSize: maxSize,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
	}
}

// Get retrieves a value and marks it as recently used.
func (c *LRUCache) Get(key string) (imgsync.Container, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return imgsync.Container{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// Add adds or replaces a value.
func (c *LRUCache) Add(key string, value imgsync.Container) {
	if c.maxSize < 1 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = value
		c.ll.MoveToFront(el)
		return
	}

	c.items[key] = c.ll.PushFront(&entry{key: key, value: value})
	for c.ll.Len() > c.maxSize {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
}

// Remove drops a key.
func (c *LRUCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

// Len returns the number of cached records.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Clear empties the cache.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}
