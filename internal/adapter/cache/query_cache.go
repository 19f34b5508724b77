// Package cache keeps recent similarity search results in memory.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"ragpipe/internal/domain"
)

const (
	DefaultSize = 100
	DefaultTTL  = 5 * time.Minute
)

// QueryCache is an LRU of search results with a TTL. Entries written
// before the last Invalidate are never served.
type QueryCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      []string // least recently used first
	maxSize    int
	ttl        time.Duration
	generation uint64
	now        func() time.Time
}

type cacheEntry struct {
	results    []domain.SimilarityResult
	storedAt   time.Time
	generation uint64
}

// NewQueryCache creates a cache. Non-positive values fall back to
// DefaultSize and DefaultTTL.
func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(query string, k int) string {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(k))
	h.Write(buf[:])
	h.Write([]byte(query))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Get returns a copy of the cached results for (query, k).
func (c *QueryCache) Get(query string, k int) ([]domain.SimilarityResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(query, k)
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if entry.generation != c.generation || c.now().Sub(entry.storedAt) > c.ttl {
		c.removeLocked(key)
		return nil, false
	}

	c.touchLocked(key)
	return cloneResults(entry.results), true
}

func (c *QueryCache) Put(query string, k int, results []domain.SimilarityResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(query, k, results)
}

// Generation returns a token that changes on every Invalidate.
func (c *QueryCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// PutIfCurrent stores results computed while the cache was at generation
// gen. It reports false and stores nothing if the cache was invalidated
// since then.
func (c *QueryCache) PutIfCurrent(gen uint64, query string, k int, results []domain.SimilarityResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.putLocked(query, k, results)
	return true
}

func (c *QueryCache) putLocked(query string, k int, results []domain.SimilarityResult) {
	key := cacheKey(query, k)
	if _, ok := c.entries[key]; ok {
		c.touchLocked(key)
	} else {
		if len(c.entries) >= c.maxSize && len(c.order) > 0 {
			c.removeLocked(c.order[0])
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = &cacheEntry{
		results:    cloneResults(results),
		storedAt:   c.now(),
		generation: c.generation,
	}
}

// Invalidate drops every entry. It is called whenever the index changes.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
	c.generation++
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *QueryCache) touchLocked(key string) {
	c.dropFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeLocked(key string) {
	delete(c.entries, key)
	c.dropFromOrder(key)
}

func (c *QueryCache) dropFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func cloneResults(results []domain.SimilarityResult) []domain.SimilarityResult {
	if results == nil {
		return nil
	}
	out := make([]domain.SimilarityResult, len(results))
	copy(out, results)
	return out
}

// Searcher is the read path wrapped by CachedSearcher.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]domain.SimilarityResult, error)
}

// CachedSearcher serves repeated queries from a QueryCache. Errors are
// not cached.
type CachedSearcher struct {
	searcher Searcher
	cache    *QueryCache
	logger   *zap.Logger
}

func NewCachedSearcher(searcher Searcher, cache *QueryCache, logger *zap.Logger) *CachedSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSearcher{searcher: searcher, cache: cache, logger: logger}
}

func (s *CachedSearcher) SimilaritySearch(ctx context.Context, query string, k int) ([]domain.SimilarityResult, error) {
	if results, ok := s.cache.Get(query, k); ok {
		s.logger.Debug("query cache hit", zap.Int("k", k), zap.Int("results", len(results)))
		return results, nil
	}

	gen := s.cache.Generation()
	results, err := s.searcher.SimilaritySearch(ctx, query, k)
	if err != nil {
		return nil, err
	}
	if !s.cache.PutIfCurrent(gen, query, k, results) {
		s.logger.Debug("index changed during search, result not cached", zap.Int("k", k))
	}
	return results, nil
}
