// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package discovery

import (
	"container/list"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/4d11/company-search/metrics"
)

// Explanation cache defaults, used when config leaves them unset.
const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = time.Hour
)

type explanationKey struct {
	companyID int64
	queryHash string
}

type explanationEntry struct {
	key         explanationKey
	explanation string
	storedAt    time.Time
}

// ExplanationCache holds model-written explanations keyed by company id and
// normalized query, so reworded repeats of a search reuse prior work. Least
// recently used entries fall out at capacity; entries expire after the TTL.
type ExplanationCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries map[explanationKey]*list.Element
	order   *list.List // front = most recently used
	now     func() time.Time
	metrics metrics.Metrics

	hits      int64
	misses    int64
	evictions int64
}

func NewExplanationCache(maxSize int, ttl time.Duration, m metrics.Metrics) *ExplanationCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ExplanationCache{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[explanationKey]*list.Element),
		order:   list.New(),
		now:     time.Now,
		metrics: m,
	}
}

// Get returns the cached explanation for the company under the given query,
// if present and unexpired. Expired entries are removed on lookup.
func (c *ExplanationCache) Get(companyID int64, query string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(explanationKey{companyID: companyID, queryHash: NormalizeQueryKey(query)})
}

// Set stores one explanation, refreshing position and timestamp when the
// entry already exists.
func (c *ExplanationCache) Set(companyID int64, query, explanation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(explanationKey{companyID: companyID, queryHash: NormalizeQueryKey(query)}, explanation)
}

// GetBatch returns the cached explanations for whichever of the given
// companies hit.
func (c *ExplanationCache) GetBatch(companyIDs []int64, query string) map[int64]string {
	queryHash := NormalizeQueryKey(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	found := make(map[int64]string)
	for _, id := range companyIDs {
		if explanation, ok := c.getLocked(explanationKey{companyID: id, queryHash: queryHash}); ok {
			found[id] = explanation
		}
	}
	return found
}

// SetBatch stores explanations for several companies under one query.
func (c *ExplanationCache) SetBatch(explanations map[int64]string, query string) {
	queryHash := NormalizeQueryKey(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, explanation := range explanations {
		c.setLocked(explanationKey{companyID: id, queryHash: queryHash}, explanation)
	}
}

func (c *ExplanationCache) getLocked(key explanationKey) (string, bool) {
	element, ok := c.entries[key]
	if !ok {
		c.misses++
		c.metrics.IncrementCacheMisses()
		return "", false
	}

	entry := element.Value.(*explanationEntry)
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.order.Remove(element)
		delete(c.entries, key)
		c.misses++
		c.metrics.IncrementCacheMisses()
		return "", false
	}

	c.order.MoveToFront(element)
	c.hits++
	c.metrics.IncrementCacheHits()
	return entry.explanation, true
}

func (c *ExplanationCache) setLocked(key explanationKey, explanation string) {
	if element, ok := c.entries[key]; ok {
		c.order.Remove(element)
		delete(c.entries, key)
	}

	entry := &explanationEntry{key: key, explanation: explanation, storedAt: c.now()}
	c.entries[key] = c.order.PushFront(entry)

	if c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*explanationEntry).key)
		c.evictions++
		c.metrics.IncrementCacheEvictions()
	}
}

// Len reports the number of live entries, expired or not.
func (c *ExplanationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate_percent"`
}

func (c *ExplanationCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:      c.order.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total) * 100
	}
	return stats
}

// NormalizeQueryKey reduces a query to a stable cache key: Unicode NFKC
// normalization, lowercase, punctuation collapsed to spaces, tokens sorted,
// then an MD5 digest so keys stay small. "AI companies in NYC" and
// "NYC ai companies!" share a key.
func NormalizeQueryKey(query string) string {
	if query == "" {
		return ""
	}

	normalized := strings.ToLower(norm.NFKC.String(query))

	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	sort.Strings(words)

	sum := md5.Sum([]byte(strings.Join(words, " ")))
	return hex.EncodeToString(sum[:])
}
