package preview

import (
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nametidy/nametidy/internal/core"
)

// cachedPreview is the rule-dependent part of a plan entry. Selection and
// conflict state are per-run and never cached.
type cachedPreview struct {
	TargetName string
	Steps      []core.NormalizationStep
	Warnings   []string
	Valid      bool
}

// Cache memoizes preview computation keyed by (path, modTime, rules hash):
// a file whose content timestamp and rule set both match needs no second
// normalization pass. Capacity-bounded with least-recently-used eviction.
type Cache struct {
	lru    *lru.Cache[string, cachedPreview]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache builds a cache holding at most capacity entries. Non-positive
// capacity disables caching; the methods stay safe to call.
func NewCache(capacity int) *Cache {
	c := &Cache{}
	if capacity > 0 {
		c.lru, _ = lru.New[string, cachedPreview](capacity)
	}
	return c
}

func cacheKey(path string, modTime time.Time, rulesHash string) string {
	return fmt.Sprintf("%s\x1f%d\x1f%s", path, modTime.UnixNano(), rulesHash)
}

func (c *Cache) get(key string) (cachedPreview, bool) {
	if c.lru == nil {
		return cachedPreview{}, false
	}
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *Cache) put(key string, v cachedPreview) {
	if c.lru != nil {
		c.lru.Add(key, v)
	}
}

// Purge drops every cached entry. The resource governor calls this when the
// memory ceiling is breached.
func (c *Cache) Purge() {
	if c.lru != nil {
		c.lru.Purge()
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
