package search

import (
	"container/list"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/annexlabs/annex/pkg/hnsw"
)

// Query-result cache for the k-NN endpoint. What a cached entry pins in
// memory is its result vectors (k descriptors of D floats each), not the
// entry itself, so the cache is budgeted and evicted by the total number
// of result vectors held rather than by a flat entry count. Any insert
// can change what a query should return, so writes flush the whole cache.

// CacheKey identifies one (query vector, k) pair.
type CacheKey string

// QueryKey creates a cache key for a k-NN query.
func QueryKey(query []float64, k int) CacheKey {
	h := sha256.New()

	for _, v := range query {
		binary.Write(h, binary.LittleEndian, math.Float64bits(v))
	}
	binary.Write(h, binary.LittleEndian, int32(k))

	return CacheKey(fmt.Sprintf("knn:%x", h.Sum(nil)[:16]))
}

// cachedQuery is one stored result set.
type cachedQuery struct {
	key      CacheKey
	results  []hnsw.SearchResult
	storedAt time.Time
}

func (e *cachedQuery) cost() int {
	if len(e.results) == 0 {
		return 1 // empty results still occupy a slot
	}
	return len(e.results)
}

// QueryCache holds recent search results up to a budget of result
// vectors, evicting least-recently-used queries once over it. Entries
// older than the TTL answer as misses.
type QueryCache struct {
	budget int
	ttl    time.Duration

	mu      sync.Mutex
	held    int
	entries map[CacheKey]*list.Element
	order   *list.List // front = most recently used

	hits   int64
	misses int64
}

// NewQueryCache creates a cache bounded to the given number of result
// vectors. ttl 0 means entries never expire.
func NewQueryCache(budget int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		budget:  budget,
		ttl:     ttl,
		entries: make(map[CacheKey]*list.Element),
		order:   list.New(),
	}
}

// Get returns the stored results for key, if present and fresh.
func (c *QueryCache) Get(key CacheKey) ([]hnsw.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	entry := elem.Value.(*cachedQuery)
	if c.ttl > 0 && time.Since(entry.storedAt) > c.ttl {
		c.drop(elem)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return entry.results, true
}

// Put stores the results for key, evicting old queries until the vector
// budget holds again. A result set larger than the whole budget is not
// cached.
func (c *QueryCache) Put(key CacheKey, results []hnsw.SearchResult) {
	entry := &cachedQuery{key: key, results: results, storedAt: time.Now()}
	if entry.cost() > c.budget {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.drop(elem)
	}

	c.entries[key] = c.order.PushFront(entry)
	c.held += entry.cost()

	for c.held > c.budget {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.drop(oldest)
	}
}

// Flush empties the cache. Hit/miss counters survive so the metrics keep
// their history across inserts.
func (c *QueryCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[CacheKey]*list.Element)
	c.order.Init()
	c.held = 0
}

// drop removes an entry; caller holds the lock.
func (c *QueryCache) drop(elem *list.Element) {
	entry := c.order.Remove(elem).(*cachedQuery)
	delete(c.entries, entry.key)
	c.held -= entry.cost()
}

// CacheStats holds cache performance statistics.
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Entries     int     `json:"entries"`
	VectorsHeld int     `json:"vectors_held"`
	HitRate     float64 `json:"hit_rate"`
}

// Stats returns cache performance statistics.
func (c *QueryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Hits:        c.hits,
		Misses:      c.misses,
		Entries:     c.order.Len(),
		VectorsHeld: c.held,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// CachedIndex fronts an HNSW index with a query result cache.
type CachedIndex struct {
	index *hnsw.Index
	cache *QueryCache
}

// NewCachedIndex wraps the index with a cache holding up to budget result
// vectors. Budget 0 disables caching.
func NewCachedIndex(index *hnsw.Index, budget int, ttl time.Duration) *CachedIndex {
	var cache *QueryCache
	if budget > 0 {
		cache = NewQueryCache(budget, ttl)
	}

	return &CachedIndex{
		index: index,
		cache: cache,
	}
}

// Index returns the wrapped HNSW index.
func (ci *CachedIndex) Index() *hnsw.Index {
	return ci.index
}

// Search answers a k-NN query, consulting the cache first. The second
// return value reports whether the result came from the cache.
func (ci *CachedIndex) Search(query []float64, k int) ([]hnsw.SearchResult, bool, error) {
	if ci.cache == nil {
		results, err := ci.index.Search(query, k)
		return results, false, err
	}

	key := QueryKey(query, k)

	if results, ok := ci.cache.Get(key); ok {
		return results, true, nil
	}

	results, err := ci.index.Search(query, k)
	if err != nil {
		return nil, false, err
	}

	ci.cache.Put(key, results)
	return results, false, nil
}

// Insert adds an item through to the index and flushes the cache.
func (ci *CachedIndex) Insert(name string, descriptor []float64) error {
	if err := ci.index.Insert(name, descriptor); err != nil {
		return err
	}
	ci.InvalidateAll()
	return nil
}

// BatchInsert bulk-loads items and flushes the cache once at the end.
func (ci *CachedIndex) BatchInsert(items []hnsw.Item, progress hnsw.ProgressCallback) *hnsw.BatchResult {
	result := ci.index.BatchInsert(items, progress)
	ci.InvalidateAll()
	return result
}

// InvalidateAll removes all cached results.
func (ci *CachedIndex) InvalidateAll() {
	if ci.cache != nil {
		ci.cache.Flush()
	}
}

// CacheStats returns cache performance statistics.
func (ci *CachedIndex) CacheStats() CacheStats {
	if ci.cache == nil {
		return CacheStats{}
	}
	return ci.cache.Stats()
}
