// Package cache provides the expiring caches shared by the extractor and the
// optimizer: an in-process TTL cache and a Redis-backed metrics cache.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// TTL is a concurrency-safe cache whose entries expire after a fixed
// duration. When full, the oldest insertion is evicted. A background
// janitor sweeps expired entries until Close is called.
type TTL[K comparable, V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	items    map[K]*list.Element
	order    *list.List
	now      func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

// NewTTL creates a cache. capacity <= 0 means unbounded. sweep <= 0 disables
// the janitor; expired entries are still ignored on read.
func NewTTL[K comparable, V any](ttl time.Duration, capacity int, sweep time.Duration) *TTL[K, V] {
	c := &TTL[K, V]{
		ttl:      ttl,
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	if sweep > 0 {
		go c.janitor(sweep)
	}
	return c
}

// Get returns the live value for key.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if !c.now().Before(e.expiresAt) {
		c.remove(el)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, resetting its expiry.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expires := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = expires
		c.order.MoveToBack(el)
		return
	}
	if c.capacity > 0 && len(c.items) >= c.capacity {
		c.evictExpired()
		for len(c.items) >= c.capacity {
			c.remove(c.order.Front())
		}
	}
	c.items[key] = c.order.PushBack(&entry[K, V]{key: key, value: value, expiresAt: expires})
}

// Delete removes key.
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
}

// Len returns the number of stored entries, expired ones included until swept.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Purge drops every entry.
func (c *TTL[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element)
	c.order.Init()
}

// Close stops the janitor and drops every entry.
func (c *TTL[K, V]) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
	c.Purge()
}

func (c *TTL[K, V]) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.evictExpired()
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

func (c *TTL[K, V]) evictExpired() {
	now := c.now()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*entry[K, V]).expiresAt) {
			c.remove(el)
		}
		el = next
	}
}

func (c *TTL[K, V]) remove(el *list.Element) {
	e := c.order.Remove(el).(*entry[K, V])
	delete(c.items, e.key)
}
