package cache

import (
	"fmt"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/jellydator/ttlcache/v3"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/rotblauer/catspeed/conceptual"
	"github.com/rotblauer/catspeed/params"
	"github.com/rotblauer/catspeed/types/position"
	"github.com/rotblauer/catspeed/types/status"
)

// LastKnown remembers each cat's latest status for a while,
// so a status can be answered for a cat whose tracker has been evicted.
type LastKnown struct {
	cache *ttlcache.Cache[conceptual.CatID, status.Status]
}

func NewLastKnown() *LastKnown {
	return &LastKnown{
		cache: ttlcache.New[conceptual.CatID, status.Status](
			ttlcache.WithTTL[conceptual.CatID, status.Status](params.CacheLastKnownTTL)),
	}
}

func (c *LastKnown) Set(catID conceptual.CatID, s status.Status) {
	c.cache.Set(catID, s, ttlcache.DefaultTTL)
}

func (c *LastKnown) Get(catID conceptual.CatID) (status.Status, bool) {
	item := c.cache.Get(catID)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// All returns every unexpired status.
func (c *LastKnown) All() map[conceptual.CatID]status.Status {
	out := map[conceptual.CatID]status.Status{}
	for k, item := range c.cache.Items() {
		if item.IsExpired() {
			continue
		}
		out[k] = item.Value()
	}
	return out
}

// Dedupe remembers positions already delivered, in a Least Recently Used (LRU)
// cache of position hashes.
// Cats' phones like to push the same batch again when a request times out.
type Dedupe struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func NewDedupe(size int) *Dedupe {
	if size <= 0 {
		size = params.DedupeCacheSize
	}
	return &Dedupe{cache: lru.New(size)}
}

func dedupeKey(p position.Position) (string, bool) {
	hash, err := hashstructure.Hash(p, hashstructure.FormatV2, nil)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%d", hash), true
}

// Unseen reports whether p has not been marked. It does not mark p.
func (d *Dedupe) Unseen(p position.Position) bool {
	key, ok := dedupeKey(p)
	if !ok {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, seen := d.cache.Get(key)
	return !seen
}

// Mark remembers positions as seen.
func (d *Dedupe) Mark(positions ...position.Position) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range positions {
		if key, ok := dedupeKey(p); ok {
			d.cache.Add(key, true)
		}
	}
}
