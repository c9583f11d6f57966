// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package cache provides a thread-safe, bounded in-memory cache with
// LRU eviction under entry-count and byte-size pressure.
//
// The cache is built on an explicit ordered map with manual size
// accounting, so every removal path, caller-initiated or
// pressure-initiated, updates the key index atomically. Enumeration via
// Keys therefore never reports a key whose value is gone.
package cache

import (
	"container/list"
	"sync"
)

// Options configures a Cache.
type Options[K comparable, V any] struct {
	// MaxEntries bounds the number of cached entries. Zero means no
	// entry-count bound.
	MaxEntries int

	// MaxBytes bounds the total cost of cached values as reported by
	// Cost. Zero means no byte bound.
	MaxBytes int64

	// Cost reports the byte cost of a value. When nil every value
	// costs 1, which makes MaxBytes behave like a second entry bound.
	Cost func(V) int64

	// OnEvict is invoked once for every entry removed under pressure.
	// It is called after the cache lock is released, so the callback may
	// safely re-enter the cache. It is not called for Remove/RemoveAll.
	OnEvict func(K, V)
}

type entry[K comparable, V any] struct {
	key   K
	value V
	cost  int64
}

// Cache is a bounded in-memory key/value cache. The zero value is not
// usable; construct with New. All methods are safe for concurrent use and
// never block on I/O.
type Cache[K comparable, V any] struct {
	opts Options[K, V]

	mu    sync.Mutex
	order *list.List // MRU at front
	index map[K]*list.Element
	bytes int64
}

// New constructs an empty cache with the given bounds.
func New[K comparable, V any](opts Options[K, V]) *Cache[K, V] {
	return &Cache[K, V]{
		opts:  opts,
		order: list.New(),
		index: make(map[K]*list.Element),
	}
}

func (c *Cache[K, V]) cost(v V) int64 {
	if c.opts.Cost == nil {
		return 1
	}
	return c.opts.Cost(v)
}

// Insert stores value under key, replacing any previous value for the same
// key and marking the entry most recently used. Inserting may evict older
// entries to stay within the configured bounds.
func (c *Cache[K, V]) Insert(key K, value V) {
	cost := c.cost(value)

	c.mu.Lock()
	if el, ok := c.index[key]; ok {
		ent := el.Value.(*entry[K, V])
		c.bytes += cost - ent.cost
		ent.value = value
		ent.cost = cost
		c.order.MoveToFront(el)
	} else {
		el = c.order.PushFront(&entry[K, V]{key: key, value: value, cost: cost})
		c.index[key] = el
		c.bytes += cost
	}

	evicted := c.evictLocked(c.opts.MaxEntries, c.opts.MaxBytes)
	c.mu.Unlock()

	c.notify(evicted)
}

// Value returns the cached value for key. The second return value is false
// on a miss; a miss is an expected outcome, not an error, and the caller is
// expected to fall back to durable storage.
func (c *Cache[K, V]) Value(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

// Remove deletes the entry for key. It is a no-op if the key is absent.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.removeLocked(el)
	}
}

// RemoveAll clears the cache and its key index entirely.
func (c *Cache[K, V]) RemoveAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.index = make(map[K]*list.Element)
	c.bytes = 0
}

// Keys enumerates the currently populated keys, most recently used first.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.index))
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Bytes returns the accounted cost of all cached values.
func (c *Cache[K, V]) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Trim evicts least-recently-used entries until the accounted cost is at
// most targetBytes. It is the entry point for external memory-pressure
// signals; Trim(0) empties the cache through the eviction path, firing
// OnEvict for every entry.
func (c *Cache[K, V]) Trim(targetBytes int64) {
	c.mu.Lock()
	evicted := c.evictLocked(0, targetBytes)
	if targetBytes <= 0 {
		// evictLocked treats 0 as "unbounded"; an explicit zero target
		// means drop everything.
		for c.order.Len() > 0 {
			el := c.order.Back()
			evicted = append(evicted, *el.Value.(*entry[K, V]))
			c.removeLocked(el)
		}
	}
	c.mu.Unlock()

	c.notify(evicted)
}

// evictLocked drops LRU entries until both bounds hold. A zero bound is
// ignored. Caller must hold c.mu.
func (c *Cache[K, V]) evictLocked(maxEntries int, maxBytes int64) []entry[K, V] {
	var evicted []entry[K, V]
	for {
		overCount := maxEntries > 0 && c.order.Len() > maxEntries
		overBytes := maxBytes > 0 && c.bytes > maxBytes
		if !overCount && !overBytes {
			return evicted
		}
		el := c.order.Back()
		if el == nil {
			return evicted
		}
		evicted = append(evicted, *el.Value.(*entry[K, V]))
		c.removeLocked(el)
	}
}

// removeLocked unlinks an element from both the order list and the key
// index in one step, keeping the two structures in lockstep on every
// removal path. Caller must hold c.mu.
func (c *Cache[K, V]) removeLocked(el *list.Element) {
	ent := el.Value.(*entry[K, V])
	c.order.Remove(el)
	delete(c.index, ent.key)
	c.bytes -= ent.cost
}

func (c *Cache[K, V]) notify(evicted []entry[K, V]) {
	if c.opts.OnEvict == nil {
		return
	}
	for _, ent := range evicted {
		c.opts.OnEvict(ent.key, ent.value)
	}
}
