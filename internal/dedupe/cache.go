// ABOUTME: Thread-safe TTL cache for suppressing redelivered platform updates.
// ABOUTME: Bounded by size with oldest-first eviction and an injectable clock.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry is one remembered key with the time it was marked.
type entry[K comparable] struct {
	key    K
	marked time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now     func() time.Time
	sweep   time.Duration
	noSweep bool
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSweepInterval sets how often expired keys are purged in the background.
// A non-positive interval disables the background sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d <= 0 {
			o.noSweep = true
			return
		}
		o.sweep = d
	}
}

// Cache remembers keys for a fixed TTL. When full, the least recently
// marked key is dropped. Safe for concurrent use.
type Cache[K comparable] struct {
	mu      sync.Mutex
	items   map[K]*list.Element
	order   *list.List // oldest mark at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache holding at most maxSize keys for ttl each.
func New[K comparable](ttl time.Duration, maxSize int, opts ...Option) *Cache[K] {
	o := options{now: time.Now, sweep: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}
	if maxSize <= 0 {
		maxSize = 1
	}

	c := &Cache[K]{
		items:   make(map[K]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     o.now,
		done:    make(chan struct{}),
	}
	if !o.noSweep {
		go c.sweepLoop(o.sweep)
	}
	return c
}

// Seen reports whether key was marked within the TTL.
func (c *Cache[K]) Seen(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(key)
}

// Observe marks key and reports whether it had already been seen.
// The check and the mark happen under one lock, so concurrent deliveries
// of the same key see exactly one false.
func (c *Cache[K]) Observe(key K) (duplicate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLocked(key) {
		return true
	}
	c.markLocked(key)
	return false
}

// Mark records key as seen now, refreshing an existing mark.
func (c *Cache[K]) Mark(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// Forget drops key so a later delivery is processed again.
func (c *Cache[K]) Forget(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

// Len returns the number of keys currently held, expired or not.
func (c *Cache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[K]) liveLocked(key K) bool {
	el, ok := c.items[key]
	if !ok {
		return false
	}
	return c.now().Sub(el.Value.(*entry[K]).marked) < c.ttl
}

func (c *Cache[K]) markLocked(key K) {
	now := c.now()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry[K]).marked = now
		c.order.MoveToBack(el)
		return
	}

	for len(c.items) >= c.maxSize {
		front := c.order.Front()
		if front == nil {
			break
		}
		c.order.Remove(front)
		delete(c.items, front.Value.(*entry[K]).key)
	}

	c.items[key] = c.order.PushBack(&entry[K]{key: key, marked: now})
}

// Purge removes expired keys and returns how many were dropped.
func (c *Cache[K]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	// Marks are ordered, so stop at the first live one.
	for el := c.order.Front(); el != nil; {
		e := el.Value.(*entry[K])
		if now.Sub(e.marked) < c.ttl {
			break
		}
		next := el.Next()
		c.order.Remove(el)
		delete(c.items, e.key)
		removed++
		el = next
	}
	return removed
}

func (c *Cache[K]) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Purge()
		case <-c.done:
			return
		}
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (c *Cache[K]) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
