// ABOUTME: Tests for the dedupe cache used to drop redelivered updates.
// ABOUTME: Validates TTL expiry with a fake clock, eviction, purge, and concurrency safety.

package dedupe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(ttl time.Duration, size int) (*Cache[string], *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New[string](ttl, size, WithClock(clock.Now), WithSweepInterval(0)), clock
}

func TestCache_Observe(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 10)
	defer cache.Close()

	assert.False(t, cache.Observe("mid:1"), "first delivery is new")
	assert.True(t, cache.Observe("mid:1"), "second delivery is a duplicate")
	assert.False(t, cache.Observe("mid:2"))
}

func TestCache_Expiry(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 10)
	defer cache.Close()

	cache.Mark("cb:abc")
	assert.True(t, cache.Seen("cb:abc"))

	clock.Advance(59 * time.Second)
	assert.True(t, cache.Seen("cb:abc"))

	clock.Advance(time.Second)
	assert.False(t, cache.Seen("cb:abc"))
	assert.False(t, cache.Observe("cb:abc"), "expired key counts as new")
}

func TestCache_MarkRefreshes(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 10)
	defer cache.Close()

	cache.Mark("k")
	clock.Advance(40 * time.Second)
	cache.Mark("k")
	clock.Advance(40 * time.Second)

	assert.True(t, cache.Seen("k"))
}

func TestCache_EvictsOldest(t *testing.T) {
	cache, _ := newTestCache(time.Hour, 3)
	defer cache.Close()

	cache.Mark("a")
	cache.Mark("b")
	cache.Mark("c")
	cache.Mark("a") // refresh moves a to the back
	cache.Mark("d") // evicts b

	assert.True(t, cache.Seen("a"))
	assert.False(t, cache.Seen("b"))
	assert.True(t, cache.Seen("c"))
	assert.True(t, cache.Seen("d"))
	assert.Equal(t, 3, cache.Len())
}

func TestCache_Forget(t *testing.T) {
	cache, _ := newTestCache(time.Hour, 10)
	defer cache.Close()

	cache.Mark("mid:9")
	cache.Forget("mid:9")
	cache.Forget("missing")

	assert.False(t, cache.Observe("mid:9"))
	assert.Equal(t, 1, cache.Len())
}

func TestCache_Purge(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 10)
	defer cache.Close()

	cache.Mark("old-1")
	cache.Mark("old-2")
	clock.Advance(30 * time.Second)
	cache.Mark("fresh")
	clock.Advance(45 * time.Second)

	assert.Equal(t, 2, cache.Purge())
	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.Seen("fresh"))
}

func TestCache_IntKeys(t *testing.T) {
	cache := New[int64](time.Minute, 5, WithSweepInterval(0))
	defer cache.Close()

	assert.False(t, cache.Observe(42))
	assert.True(t, cache.Observe(42))
}

func TestCache_ConcurrentObserve(t *testing.T) {
	cache, _ := newTestCache(time.Hour, 100)
	defer cache.Close()

	var fresh atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.Observe("same-key") {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fresh.Load())
}

func TestCache_CloseTwice(t *testing.T) {
	cache := New[string](time.Minute, 10, WithSweepInterval(time.Millisecond))
	cache.Close()
	cache.Close()
}
