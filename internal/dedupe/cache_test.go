// ABOUTME: Tests for the idempotency key cache
// ABOUTME: Validates claiming, release, TTL expiry, eviction, sweeping and concurrency

package dedupe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time without sleeping.
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
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(ttl time.Duration, maxSize int) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(ttl, maxSize)
	c.mu.Lock()
	c.now = clock.Now
	c.mu.Unlock()
	return c, clock
}

func TestCache_ClaimNewKey(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.Held("key"))
	assert.True(t, cache.Claim("key"), "first claim should succeed")
	assert.True(t, cache.Held("key"))
}

func TestCache_ClaimHeldKey(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)
	defer cache.Close()

	cache.Claim("key")
	assert.False(t, cache.Claim("key"), "second claim should be refused")
}

func TestCache_ClaimAfterExpiry(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 100)
	defer cache.Close()

	cache.Claim("key")
	clock.Advance(59 * time.Second)
	assert.False(t, cache.Claim("key"))

	clock.Advance(2 * time.Second)
	assert.False(t, cache.Held("key"))
	assert.True(t, cache.Claim("key"), "expired key should be claimable")
	assert.True(t, cache.Held("key"))
}

func TestCache_Release(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)
	defer cache.Close()

	cache.Claim("key")
	cache.Release("key")

	assert.False(t, cache.Held("key"))
	assert.True(t, cache.Claim("key"), "released key should be claimable")
	assert.Equal(t, 1, cache.Len())

	// Releasing an unknown key is a no-op.
	cache.Release("never-claimed")
	assert.Equal(t, 1, cache.Len())
}

func TestCache_EvictionOrder(t *testing.T) {
	cache, clock := newTestCache(5*time.Minute, 3)
	defer cache.Close()

	for _, k := range []string{"first", "second", "third"} {
		cache.Claim(k)
		clock.Advance(time.Millisecond)
	}

	cache.Claim("fourth")
	assert.False(t, cache.Held("first"), "first should be evicted")
	assert.True(t, cache.Held("second"))
	assert.True(t, cache.Held("third"))
	assert.True(t, cache.Held("fourth"))

	cache.Claim("fifth")
	assert.False(t, cache.Held("second"), "second should be evicted")
	assert.Equal(t, 3, cache.Len())
}

func TestCache_Sweep(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 100)
	defer cache.Close()

	cache.Claim("old-1")
	cache.Claim("old-2")
	clock.Advance(45 * time.Second)
	cache.Claim("fresh")
	clock.Advance(30 * time.Second)

	cache.sweep()

	assert.Equal(t, 1, cache.Len(), "sweep should remove expired claims only")
	assert.True(t, cache.Held("fresh"))
}

func TestCache_ReclaimExpiredMovesToBack(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 100)
	defer cache.Close()

	cache.Claim("a")
	cache.Claim("b")
	clock.Advance(2 * time.Minute)

	// Reclaiming "a" makes it the newest; a sweep must not stop early on it.
	assert.True(t, cache.Claim("a"))
	cache.sweep()

	assert.True(t, cache.Held("a"))
	assert.Equal(t, 1, cache.Len())
}

func TestCache_ClaimIsAtomic(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	const numGoroutines = 100
	var winners atomic.Int32
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if cache.Claim("contested-key") {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load(), "exactly one goroutine should win the claim")
}

func TestCache_Close(t *testing.T) {
	cache := New(5*time.Minute, 100)
	cache.Claim("before-close")

	cache.Close()
	cache.Close()

	assert.True(t, cache.Held("before-close"), "claims stay readable after Close")
}

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, time.Minute, sweepInterval(0))
	assert.Equal(t, time.Minute, sweepInterval(time.Hour))
	assert.Equal(t, 10*time.Second, sweepInterval(10*time.Second))
}
