package application

import (
	"strings"
	"sync"
	"time"
)

// occurrenceCache keeps recently expanded occurrence windows per rehearsal so
// repeated calendar and listing queries skip re-expansion until the rehearsal
// changes or the entry expires.
//
// Each rehearsal carries a generation that Invalidate advances. A reader
// captures it with Generation before loading the rehearsal, and Store drops
// the write when an invalidation happened in between.
type occurrenceCache struct {
	mu          sync.RWMutex
	now         func() time.Time
	ttl         time.Duration
	maxEntries  int
	entries     map[string]occurrenceCacheEntry
	generations map[string]uint64
}

type occurrenceCacheEntry struct {
	rehearsalID string
	occurrences []Occurrence
	expiresAt   time.Time
}

func newOccurrenceCache(ttl time.Duration, maxEntries int, now func() time.Time) *occurrenceCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if now == nil {
		now = time.Now
	}
	return &occurrenceCache{
		now:         now,
		ttl:         ttl,
		maxEntries:  maxEntries,
		entries:     make(map[string]occurrenceCacheEntry),
		generations: make(map[string]uint64),
	}
}

func occurrenceCacheKey(rehearsalID string, from, to time.Time) string {
	var b strings.Builder
	b.WriteString(rehearsalID)
	b.WriteByte('|')
	b.WriteString(from.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(to.UTC().Format(time.RFC3339Nano))
	return b.String()
}

func (c *occurrenceCache) Get(key string) ([]Occurrence, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return cloneOccurrences(entry.occurrences), true
}

// Generation reports the rehearsal's current invalidation count.
func (c *occurrenceCache) Generation(rehearsalID string) uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[rehearsalID]
}

// Store caches occurrences expanded from a rehearsal read at generation. The
// write is discarded if the rehearsal was invalidated since.
func (c *occurrenceCache) Store(key, rehearsalID string, generation uint64, occurrences []Occurrence) {
	if c == nil {
		return
	}
	entry := occurrenceCacheEntry{
		rehearsalID: rehearsalID,
		occurrences: cloneOccurrences(occurrences),
		expiresAt:   c.now().Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[rehearsalID] != generation {
		return
	}
	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = entry
}

// Invalidate drops every cached window of one rehearsal and advances its
// generation.
func (c *occurrenceCache) Invalidate(rehearsalID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[rehearsalID]++
	for key, entry := range c.entries {
		if entry.rehearsalID == rehearsalID {
			delete(c.entries, key)
		}
	}
}

func (c *occurrenceCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// evictOneLocked drops the entry closest to expiry.
func (c *occurrenceCache) evictOneLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, entry := range c.entries {
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.expiresAt
		}
	}
	delete(c.entries, oldestKey)
}

func cloneOccurrences(occurrences []Occurrence) []Occurrence {
	out := make([]Occurrence, len(occurrences))
	copy(out, occurrences)
	return out
}
