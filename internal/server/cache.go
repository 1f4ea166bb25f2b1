package server

import (
	"context"
	"sync"
	"time"

	"github.com/rileyhilliard/gpustat/internal/monitor"
	"golang.org/x/sync/singleflight"
)

// statusCache holds the last poll result for ttl. Concurrent misses share a
// single poll.
type statusCache struct {
	ttl  time.Duration
	load func(ctx context.Context) monitor.PollResult
	now  func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	value    monitor.PollResult
	storedAt time.Time
	loads    int
}

func newStatusCache(ttl time.Duration, load func(ctx context.Context) monitor.PollResult) *statusCache {
	return &statusCache{
		ttl:  ttl,
		load: load,
		now:  time.Now,
	}
}

// Get returns the cached result while it is fresh and polls otherwise.
// The poll outlives a canceled request so callers sharing it still get
// an answer; per-host deadlines bound it.
func (c *statusCache) Get(ctx context.Context) monitor.PollResult {
	if value, ok := c.fresh(); ok {
		return value
	}

	v, _, _ := c.group.Do("status", func() (interface{}, error) {
		if value, ok := c.fresh(); ok {
			return value, nil
		}
		value := c.load(context.WithoutCancel(ctx))

		c.mu.Lock()
		c.value = value
		c.storedAt = c.now()
		c.loads++
		c.mu.Unlock()
		return value, nil
	})
	return v.(monitor.PollResult)
}

func (c *statusCache) fresh() (monitor.PollResult, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == nil || c.now().Sub(c.storedAt) >= c.ttl {
		return nil, false
	}
	return c.value, true
}

// Loads returns how many polls the cache has run.
func (c *statusCache) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}
