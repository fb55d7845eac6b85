package summarize

import "sync"

type cacheKey struct {
	level Level
	owner string
}

// summaryCache keeps the latest summary per (level, owner). Regeneration
// is expensive LLM work, so callers invalidate explicitly when the
// underlying content changes.
type summaryCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*Summary
}

func newSummaryCache() *summaryCache {
	return &summaryCache{entries: make(map[cacheKey]*Summary)}
}

func (c *summaryCache) get(level Level, owner string) *Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[cacheKey{level: level, owner: owner}]
}

func (c *summaryCache) put(s *Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{level: s.Level, owner: s.OwnerID}] = s
}

func (c *summaryCache) invalidate(level Level, owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{level: level, owner: owner})
}
