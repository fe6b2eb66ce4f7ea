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

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTTLFreshness(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	c := New[int](time.Hour).WithClock(clock.Now)

	c.Put("price|TCS|5y|1d", 42)

	clock.Advance(59 * time.Minute)
	v, ok := c.Get("price|TCS|5y|1d")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	clock.Advance(time.Minute)
	_, ok = c.Get("price|TCS|5y|1d")
	assert.False(t, ok, "entry exactly ttl old must be stale")
}

func TestTTLPutReplacesEntry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	c := New[string](time.Hour).WithClock(clock.Now)

	c.Put("k", "old")
	clock.Advance(2 * time.Hour)
	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Put("k", "new")
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, c.Len())
}

func TestTTLStats(t *testing.T) {
	c := New[int](time.Hour)
	c.Put("fundamentals|TCS", 1)
	c.Put("fundamentals|INFY", 2)
	c.Put("price|TCS|5y|1d", 3)
	c.Get("fundamentals|TCS")
	c.Get("missing")

	st := c.Stats("|")
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 3, st.Fresh)
	assert.Equal(t, 2, st.ByPrefix["fundamentals"])
	assert.Equal(t, 1, st.ByPrefix["price"])
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestTTLConcurrentAccess(t *testing.T) {
	c := New[int](time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Put("k", i)
			c.Get("k")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}
