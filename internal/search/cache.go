package search

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"comoview/internal/match"
)

// DefaultCacheSize is the number of lines whose spans are kept.
const DefaultCacheSize = 100

// spanCache keeps the match spans of recently viewed lines. It belongs to
// one Session and is not safe for concurrent use.
type spanCache struct {
	lru    *simplelru.LRU[int, []match.Span]
	hits   int
	misses int
}

// newSpanCache creates a cache of size entries; size <= 0 uses the default.
func newSpanCache(size int) *spanCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	lru, err := simplelru.NewLRU[int, []match.Span](size, nil)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &spanCache{lru: lru}
}

func (c *spanCache) get(line int) ([]match.Span, bool) {
	spans, ok := c.lru.Get(line)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return spans, ok
}

func (c *spanCache) set(line int, spans []match.Span) {
	c.lru.Add(line, spans)
}

func (c *spanCache) len() int {
	return c.lru.Len()
}

func (c *spanCache) purge() {
	c.lru.Purge()
	c.hits, c.misses = 0, 0
}
