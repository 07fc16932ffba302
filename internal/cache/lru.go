// Package cache provides the bounded LRU caches of the engine: compiled
// templates keyed by raw source, and optionally rendered output keyed by
// a (source, context) digest. The two layers are independent.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Entry is one cached value with its recency bookkeeping. LastAccess is
// refreshed on every hit; eviction picks the entry with the oldest
// access, ties broken by insertion order (earliest inserted goes first),
// which is exactly the order the recency list maintains.
type Entry struct {
	Key        string
	Value      any
	LastAccess time.Time
}

// LRU is a mutex-guarded least-recently-used cache. Eviction happens
// synchronously on insert; the cache never holds more than its capacity.
type LRU struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recent
}

// NewLRU creates a cache bounded to capacity entries. Capacity below one
// is clamped to one.
func NewLRU(capacity int) *LRU {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached value and refreshes its recency.
func (c *LRU) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.touch(el)
	return el.Value.(*Entry).Value, true
}

// Put inserts or replaces a value, evicting down to capacity.
func (c *LRU) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value)
}

// GetOrCreate returns the cached value for key, or builds one with
// create and caches it. The build runs outside the lock so concurrent
// misses for different keys do not serialize; when two goroutines miss
// on the same key, both may build but only the first insert wins and the
// losing artifact is discarded.
func (c *LRU) GetOrCreate(key string, create func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.touch(el)
		return el.Value.(*Entry).Value, nil
	}
	c.put(key, v)
	return v, nil
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the configured bound.
func (c *LRU) Capacity() int {
	return c.capacity
}

// Contains reports whether key is cached without refreshing recency.
func (c *LRU) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Purge drops every entry.
func (c *LRU) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *LRU) touch(el *list.Element) {
	el.Value.(*Entry).LastAccess = time.Now()
	c.order.MoveToFront(el)
}

func (c *LRU) put(key string, value any) {
	if el, ok := c.entries[key]; ok {
		el.Value.(*Entry).Value = value
		c.touch(el)
		return
	}
	el := c.order.PushFront(&Entry{
		Key:        key,
		Value:      value,
		LastAccess: time.Now(),
	})
	c.entries[key] = el
	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*Entry).Key)
	}
}
