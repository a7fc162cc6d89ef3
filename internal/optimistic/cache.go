// Package optimistic is a keyed in-process cache whose mutations are
// applied before they are persisted and rolled back if persisting fails.
package optimistic

import (
	"context"
	"sync"
)

type entry[V any] struct {
	value   V
	version uint64
}

// Cache holds one value per key. clone must return a copy that shares no
// mutable state with its argument.
type Cache[K comparable, V any] struct {
	mu    sync.Mutex
	items map[K]*entry[V]
	clone func(V) V
}

func New[K comparable, V any](clone func(V) V) *Cache[K, V] {
	return &Cache[K, V]{items: make(map[K]*entry[V]), clone: clone}
}

// Get returns a copy of the cached value.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return c.clone(e.value), true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		c.items[key] = &entry[V]{value: c.clone(value)}
		return
	}
	e.value = c.clone(value)
	e.version++
}

func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Mutate applies tentative to the cached value, then runs commit. If commit
// fails the snapshot taken before the change is restored; if another
// mutation landed in between, the key is dropped instead so the next read
// reloads from the source of truth. Keys not in the cache are committed
// without a tentative step.
func (c *Cache[K, V]) Mutate(ctx context.Context, key K, tentative func(V) V, commit func(context.Context) error) error {
	c.mu.Lock()
	e, ok := c.items[key]
	var snapshot V
	var version uint64
	if ok {
		snapshot = c.clone(e.value)
		e.value = tentative(c.clone(e.value))
		e.version++
		version = e.version
	}
	c.mu.Unlock()

	err := commit(ctx)
	if err == nil || !ok {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cur, still := c.items[key]
	switch {
	case !still:
	case cur.version == version:
		cur.value = snapshot
		cur.version++
	default:
		delete(c.items, key)
	}
	return err
}
