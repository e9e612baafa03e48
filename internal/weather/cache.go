package weather

import (
	"strings"
	"sync"
	"time"

	"github.com/yegors/ccrp/pkg/logger"
)

// Cache keeps the latest METAR per station until it expires
type Cache struct {
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
	logger  *logger.Logger
	mu      sync.RWMutex
}

// NewCache creates a new METAR cache. A non-positive ttl disables caching.
func NewCache(ttl time.Duration, log *logger.Logger) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
		logger:  log.Named("weather-cache"),
	}
}

// Get returns the cached report for a station, or nil when missing or expired
func (c *Cache) Get(station string) *METARResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[strings.ToUpper(station)]
	if !ok || c.now().After(entry.expiresAt) {
		return nil
	}
	return entry.report
}

// Set stores a report for a station
func (c *Cache) Set(station string, report *METARResponse) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	c.entries[strings.ToUpper(station)] = cacheEntry{report: report, expiresAt: expiresAt}

	c.logger.Debug("METAR cached",
		logger.String("station", station),
		logger.Time("expires_at", expiresAt))
}

// Invalidate clears the cache
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
	c.logger.Info("Weather cache invalidated")
}

// Len returns the number of cached stations, expired or not
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
