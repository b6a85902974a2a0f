package server

import (
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/janelia-flyem/voxcoarsen/format"
	"github.com/janelia-flyem/voxcoarsen/vox"
)

// gridKey identifies a decoded grid.  The same bytes may decode differently, or
// not at all, under another format.
type gridKey struct {
	Content uint64
	Format  format.Format
}

// gridCache holds recently decoded input grids keyed by content hash and format.
// A nil *gridCache caches nothing.
type gridCache struct {
	mu    sync.Mutex
	cache *lru.Cache

	hits, misses uint64
}

func newGridCache(entries int) *gridCache {
	if entries <= 0 {
		return nil
	}
	c := &gridCache{cache: lru.New(entries)}
	c.cache.OnEvicted = func(key lru.Key, value interface{}) {
		k := key.(gridKey)
		vox.Debugf("evicted %s grid %016x from cache\n", k.Format, k.Content)
	}
	return c
}

func (c *gridCache) get(key gridKey) (*vox.Grid, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, found := c.cache.Get(key)
	if !found {
		c.misses++
		return nil, false
	}
	c.hits++
	return v.(*vox.Grid), true
}

func (c *gridCache) add(key gridKey, g *vox.Grid) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cache.Add(key, g)
	c.mu.Unlock()
}

type gridCacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

func (c *gridCache) stats() gridCacheStats {
	if c == nil {
		return gridCacheStats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return gridCacheStats{Entries: c.cache.Len(), Hits: c.hits, Misses: c.misses}
}
