// Package flight provides a result cache that coalesces concurrent work for
// the same key: while one computation is in flight, other callers for that
// key wait for it instead of starting their own.
package flight

import "sync"

type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	finished map[K]V
	pending  map[K]*job[V]
	work     func(K) (V, error)
}

type job[V any] struct {
	val  V
	err  error
	done chan struct{}
}

func NewCache[K comparable, V any](work func(K) (V, error)) *Cache[K, V] {
	return &Cache[K, V]{
		finished: make(map[K]V),
		pending:  make(map[K]*job[V]),
		work:     work,
	}
}

// Get returns the cached value for k, joining an in-flight computation if one
// exists, or computing and caching it otherwise. Errors are not cached.
func (c *Cache[K, V]) Get(k K) (V, error) {
	c.mu.Lock()
	if v, ok := c.finished[k]; ok {
		c.mu.Unlock()
		return v, nil
	}
	if p, ok := c.pending[k]; ok {
		c.mu.Unlock()
		<-p.done
		return p.val, p.err
	}
	j := &job[V]{done: make(chan struct{})}
	c.pending[k] = j
	c.mu.Unlock()

	j.val, j.err = c.work(k)

	c.mu.Lock()
	if j.err == nil {
		c.finished[k] = j.val
	}
	delete(c.pending, k)
	close(j.done)
	c.mu.Unlock()

	return j.val, j.err
}

// Invalidate drops any cached value for k. The next Get recomputes. Callers
// invalidate after replacing the backing data (rebuild, delete).
func (c *Cache[K, V]) Invalidate(k K) {
	c.mu.Lock()
	delete(c.finished, k)
	c.mu.Unlock()
}
