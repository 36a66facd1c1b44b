package docstore

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// cache holds the last known document of each key.
//
// Values are deep copied on the way in and on the way out so callers can never
// mutate the cached state. Entries may expire or be evicted for capacity at
// any time; the disk always has the same content for those.
type cache struct {
	c *ttlcache.Cache[string, any]
}

// newCache returns a cache. A zero ttl disables expiry and a zero capacity
// disables the size bound.
func newCache(ttl time.Duration, capacity uint64) *cache {
	opts := []ttlcache.Option[string, any]{
		ttlcache.WithDisableTouchOnHit[string, any](),
	}
	if ttl > 0 {
		opts = append(opts, ttlcache.WithTTL[string, any](ttl))
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, any](capacity))
	}
	c := &cache{c: ttlcache.New(opts...)}
	go c.c.Start()
	return c
}

// get returns a copy of the cached document for key.
func (c *cache) get(key string) (any, bool) {
	item := c.c.Get(key)
	if item == nil {
		return nil, false
	}
	return clone(item.Value()), true
}

// put stores a copy of doc.
func (c *cache) put(key string, doc any) {
	c.c.Set(key, clone(doc), ttlcache.DefaultTTL)
}

func (c *cache) evict(key string) {
	c.c.Delete(key)
}

func (c *cache) len() int {
	return c.c.Len()
}

// stop terminates the expiry loop. It must be called exactly once.
func (c *cache) stop() {
	c.c.Stop()
}
