// ABOUTME: Thread-safe TTL cache of claimed idempotency keys
// ABOUTME: Guards user-initiated writes against accidental duplicate submission

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// claim stores when a key was claimed and its position in claim order.
type claim struct {
	at      time.Time
	element *list.Element
}

// Cache tracks idempotency keys for a TTL window. A key is claimed when a
// write starts; a failed write releases it so the user can try again, and a
// successful write keeps it until it expires. The cache is size-limited and
// evicts the oldest claim first.
type Cache struct {
	mu      sync.Mutex
	claims  map[string]*claim
	order   *list.List // keys in claim order, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache holding at most maxSize keys for ttl each.
// A background goroutine sweeps expired keys until Close.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		claims:  make(map[string]*claim),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval(ttl))
	return c
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > time.Minute {
		return time.Minute
	}
	return ttl
}

// Claim marks key as in use. It returns false if the key is already held
// and unexpired. Check and mark happen under one lock.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if cl, ok := c.claims[key]; ok {
		if now.Sub(cl.at) < c.ttl {
			return false
		}
		cl.at = now
		c.order.MoveToBack(cl.element)
		return true
	}

	if len(c.claims) >= c.maxSize {
		c.evictOldest()
	}
	c.claims[key] = &claim{at: now, element: c.order.PushBack(key)}
	return true
}

// Held reports whether key is claimed and unexpired.
func (c *Cache) Held(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.claims[key]
	return ok && c.now().Sub(cl.at) < c.ttl
}

// Release drops a claim so the key can be claimed again immediately.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.claims[key]; ok {
		c.order.Remove(cl.element)
		delete(c.claims, key)
	}
}

// Len returns the number of stored claims, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

// evictOldest removes the oldest claim. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.claims, key)
}

func (c *Cache) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes expired claims. Claim order is also expiry order, so it
// stops at the first live entry.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		if now.Sub(c.claims[key].at) < c.ttl {
			return
		}
		next := e.Next()
		c.order.Remove(e)
		delete(c.claims, key)
		e = next
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
