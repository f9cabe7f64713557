package research

import (
	"container/list"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CacheEntry is one cached result page.
type CacheEntry struct {
	Key       string
	Results   []SearchResult
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ResultCache is a TTL-bound LRU of search result pages. Repeating a query
// inside the TTL returns the same payload, which keeps a retried tool call
// from minting different evidence.
type ResultCache struct {
	mu      sync.Mutex
	order   *list.List // front is most recently used
	index   map[string]*list.Element
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits, misses int64
}

// NewResultCache returns a cache holding at most maxSize pages for ttl each.
func NewResultCache(maxSize int, ttl time.Duration) *ResultCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &ResultCache{
		order:   list.New(),
		index:   make(map[string]*list.Element, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the live entry for key and marks it recently used. Expired
// entries are dropped on the way out.
func (c *ResultCache) Get(key string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := el.Value.(*CacheEntry)
	if c.now().After(entry.ExpiresAt) {
		c.remove(el)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return entry, true
}

// Set stores a copy of results under key, evicting the least recently used
// page when full.
func (c *ResultCache) Set(key string, results []SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := &CacheEntry{
		Key:       key,
		Results:   append([]SearchResult(nil), results...),
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	if el, ok := c.index[key]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return
	}
	for c.order.Len() >= c.maxSize {
		c.remove(c.order.Back())
	}
	c.index[key] = c.order.PushFront(entry)
}

// Clear empties the cache. Hit counters survive.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[string]*list.Element, c.maxSize)
}

// Size is the number of pages held, expired ones included until touched.
func (c *ResultCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// HitRate reports hits and misses since the cache was created.
func (c *ResultCache) HitRate() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *ResultCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.index, el.Value.(*CacheEntry).Key)
}

// searchKey folds case and whitespace so "Jane  Doe" and "jane doe" share a page.
func searchKey(query string, maxResults int) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " ")) + "\x00" + strconv.Itoa(maxResults)
}
