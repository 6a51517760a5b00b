package analyzer

import (
	"crypto/md5"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aeo-scorer/backend/models"
)

// Cache entry with expiration
type cacheEntry struct {
	data      *models.CrawlData
	timestamp time.Time
}

// CacheStats provides statistics about the crawl cache
type CacheStats struct {
	Entries int           `json:"entries"`
	Hits    int           `json:"hits"`
	Misses  int           `json:"misses"`
	TTL     time.Duration `json:"ttl"`
}

// crawlCache holds real-mode crawl results keyed by url and keywords.
type crawlCache struct {
	mutex   sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

func newCrawlCache(ttl time.Duration, maxSize int, now func() time.Time) *crawlCache {
	return &crawlCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
	}
}

// cacheKey hashes the url with its keywords in sorted, lower-case order
func cacheKey(url string, keywords []string) string {
	kws := make([]string, 0, len(keywords))
	for _, k := range keywords {
		kws = append(kws, strings.ToLower(k))
	}
	slices.Sort(kws)
	hash := md5.Sum([]byte(strings.ToLower(url) + "\x00" + strings.Join(kws, "\x00")))
	return hex.EncodeToString(hash[:])
}

func (c *crawlCache) get(key string) (*models.CrawlData, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.timestamp) >= c.ttl {
		return nil, false
	}
	return entry.data, true
}

func (c *crawlCache) put(key string, data *models.CrawlData) {
	c.mutex.Lock()
	c.entries[key] = cacheEntry{data: data, timestamp: c.now()}
	over := len(c.entries) > c.maxSize
	c.mutex.Unlock()

	if over {
		c.cleanup()
	}
}

func (c *crawlCache) size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// cleanup removes expired entries, then the oldest ones beyond maxSize
func (c *crawlCache) cleanup() {
	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key, entry := range c.entries {
		if now.Sub(entry.timestamp) >= c.ttl {
			delete(c.entries, key)
		}
	}
	if len(c.entries) <= c.maxSize {
		return
	}

	type aged struct {
		key       string
		timestamp time.Time
	}
	entries := make([]aged, 0, len(c.entries))
	for key, entry := range c.entries {
		entries = append(entries, aged{key, entry.timestamp})
	}
	slices.SortFunc(entries, func(a, b aged) int {
		return a.timestamp.Compare(b.timestamp)
	})
	for i := 0; i < len(entries)-c.maxSize; i++ {
		delete(c.entries, entries[i].key)
	}
}

func (c *crawlCache) clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]cacheEntry)
}
