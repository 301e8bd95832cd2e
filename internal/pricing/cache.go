package pricing

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fetches the current price table from storage.
type Loader func(ctx context.Context) (*Table, error)

// Cache holds the current price table for up to ttl. Concurrent misses share
// one load. A failed refresh keeps serving the previous table.
type Cache struct {
	load Loader
	ttl  time.Duration
	now  func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	table     *Table
	fetchedAt time.Time
}

func NewCache(load Loader, ttl time.Duration) *Cache {
	return &Cache{load: load, ttl: ttl, now: time.Now}
}

func (c *Cache) Get(ctx context.Context) (*Table, error) {
	c.mu.RLock()
	table, fetchedAt := c.table, c.fetchedAt
	c.mu.RUnlock()
	if table != nil && c.now().Sub(fetchedAt) < c.ttl {
		return table, nil
	}

	v, err, _ := c.group.Do("price-table", func() (any, error) {
		fresh, err := c.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.table = fresh
		c.fetchedAt = c.now()
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		if table != nil {
			return table, nil
		}
		return nil, err
	}
	return v.(*Table), nil
}

// Invalidate forces the next Get to reload.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.table = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
	c.group.Forget("price-table")
}
