package application

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/intercity-bus/internal/calendar"
	"github.com/example/intercity-bus/internal/persistence"
)

// calendarCache stores recently resolved calendar years so repeated
// projections over the same window do not re-run the date-rule resolution for
// every request. Entries are keyed by the calendar's update timestamp, so an
// edited calendar naturally misses the stale entry.
type calendarCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]calendarCacheEntry
}

type calendarCacheEntry struct {
	set       calendar.DateSet
	expiresAt time.Time
}

func newCalendarCache(ttl time.Duration, maxEntries int, now func() time.Time) *calendarCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &calendarCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]calendarCacheEntry),
	}
}

func (c *calendarCache) Get(key string) (calendar.DateSet, bool) {
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
	return entry.set, true
}

func (c *calendarCache) Store(key string, set calendar.DateSet) {
	if c == nil {
		return
	}
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = calendarCacheEntry{set: set, expiresAt: expiry}
}

func (c *calendarCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *calendarCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func calendarCacheKey(cal persistence.Calendar, year int) string {
	return fmt.Sprintf("%s|%d|%s", cal.ID, year, cal.UpdatedAt.UTC().Format(time.RFC3339Nano))
}
