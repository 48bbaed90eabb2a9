package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type cacheItem struct {
	result  Result
	expires time.Time
}

// cache stores classification results keyed by prompt hash.
type cache struct {
	mu     sync.Mutex
	ttl    time.Duration
	items  map[string]cacheItem
	hits   int64
	misses int64
}

func newCache(ttl time.Duration) *cache {
	return &cache{ttl: ttl, items: make(map[string]cacheItem)}
}

func cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

func (c *cache) get(prompt string) (Result, bool) {
	key := cacheKey(prompt)
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok || time.Now().After(item.expires) {
		if ok {
			delete(c.items, key)
		}
		c.misses++
		return Result{}, false
	}
	c.hits++
	return item.result, true
}

func (c *cache) put(prompt string, result Result) {
	key := cacheKey(prompt)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem{result: result, expires: time.Now().Add(c.ttl)}
}

func (c *cache) stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
