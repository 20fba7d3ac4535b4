package cache

import (
	"sync"
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
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(ttl time.Duration, capacity int) (*TTL[string, int], *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := NewTTL[string, int](ttl, capacity, 0)
	c.now = clock.Now
	return c, clock
}

func TestTTLExpiry(t *testing.T) {
	c, clock := newTestCache(time.Minute, 0)
	defer c.Close()

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(59 * time.Second)
	_, ok = c.Get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLSetRefreshesExpiry(t *testing.T) {
	c, clock := newTestCache(time.Minute, 0)
	defer c.Close()

	c.Set("a", 1)
	clock.Advance(50 * time.Second)
	c.Set("a", 2)
	clock.Advance(50 * time.Second)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTLCapacityEvictsOldest(t *testing.T) {
	c, clock := newTestCache(time.Hour, 2)
	defer c.Close()

	c.Set("a", 1)
	clock.Advance(time.Second)
	c.Set("b", 2)
	clock.Advance(time.Second)
	c.Set("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestTTLCapacityPrefersExpired(t *testing.T) {
	c := NewTTL[string, int](time.Hour, 2, 0)
	defer c.Close()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c.now = clock.Now

	c.Set("old", 1)
	clock.Advance(30 * time.Minute)
	c.Set("fresh", 2)
	clock.Advance(31 * time.Minute) // "old" has expired, "fresh" has not
	c.Set("new", 3)

	_, ok := c.Get("fresh")
	assert.True(t, ok)
	_, ok = c.Get("new")
	assert.True(t, ok)
}

func TestTTLDeletePurgeClose(t *testing.T) {
	c, _ := newTestCache(time.Hour, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	assert.Equal(t, 1, c.Len())
	c.Purge()
	assert.Equal(t, 0, c.Len())
	c.Set("c", 3)
	c.Close()
	c.Close()
	assert.Equal(t, 0, c.Len())
}

func TestTTLJanitorSweeps(t *testing.T) {
	c := NewTTL[string, int](10*time.Millisecond, 0, 5*time.Millisecond)
	defer c.Close()
	c.Set("a", 1)
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTTLConcurrentAccess(t *testing.T) {
	c := NewTTL[int, int](time.Minute, 100, 0)
	defer c.Close()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Set(w*1000+i, i)
				c.Get(w*1000 + i - 1)
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 100)
}
