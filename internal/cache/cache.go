// Package cache implements the content-addressed result cache.
//
// Keys hash the normalized input text together with the requested-field
// set, so the same text asked with different field subsets never collides.
// Entries expire after a TTL, lazily on access and during periodic sweeps,
// and the cache evicts oldest-first once it outgrows its ceiling.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eventparse/chrono/internal/models"
)

// allFieldsSentinel keys requests that did not restrict the field set.
const allFieldsSentinel = "all"

// Entry is one cached parse result. Warnings ride along so a cache hit
// surfaces the same issues the original parse did.
type Entry struct {
	Event     models.ParsedEvent
	Path      models.ParsePath
	Warnings  []models.Warning
	CreatedAt time.Time
	Hits      int64
}

// Stats is a point-in-time view of cache bookkeeping.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Cache is a TTL-bounded in-memory store of parse results. It is the only
// mutable structure shared across requests and is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	ttl        time.Duration
	maxEntries int
	hits       int64
	misses     int64

	// now is injectable for tests; it defaults to time.Now.
	now func() time.Time
}

// New builds a cache with the given entry lifetime and size ceiling.
func New(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		entries:    make(map[string]*Entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Key derives the cache key for a normalized-text/field-set pair. The text
// is lower-cased and whitespace-normalized so trivial formatting changes
// still hit.
func Key(text string, fields []models.FieldName) string {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")

	fieldPart := allFieldsSentinel
	if len(fields) > 0 {
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = string(f)
		}
		sort.Strings(names)
		fieldPart = strings.Join(names, ",")
	}

	sum := sha256.Sum256([]byte(norm + "|" + fieldPart))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached entry for a key, bumping its hit counter. An
// expired entry is deleted as a side effect and reported as a miss.
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	if c.now().Sub(e.CreatedAt) > c.ttl {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	e.Hits++
	c.hits++
	// Copy so callers cannot mutate the stored event.
	out := *e
	return &out, true
}

// Put stores a parse result, evicting oldest entries beyond the ceiling.
func (c *Cache) Put(key string, event models.ParsedEvent, path models.ParsePath, warnings []models.Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &Entry{
		Event:     event,
		Path:      path,
		Warnings:  warnings,
		CreatedAt: c.now(),
	}

	for len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
}

// CleanupExpired removes every expired entry and returns how many went.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	cutoff := c.now().Add(-c.ttl)
	for key, e := range c.entries {
		if e.CreatedAt.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats reports current bookkeeping counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.CreatedAt.Before(oldest) {
			oldestKey = key
			oldest = e.CreatedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
