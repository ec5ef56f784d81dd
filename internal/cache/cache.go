// Package cache holds the most recent changed result per source under a
// per-source byte ceiling. Entries are immutable snapshots replaced
// wholesale; they never expire on their own — staleness is reported via the
// capture timestamp and callers decide what age is acceptable.
package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidewatch-io/tidewatch/internal/domain"
)

// DefaultMaxBytes is the per-source ceiling on serialized cached rows.
const DefaultMaxBytes = 10 << 20

// TruncateRows is how many rows survive when a result exceeds the ceiling.
const TruncateRows = 100

type Cache struct {
	maxBytes int

	mu      sync.RWMutex
	entries map[uuid.UUID]domain.CacheEntry
}

func New(maxBytes int) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Cache{
		maxBytes: maxBytes,
		entries:  make(map[uuid.UUID]domain.CacheEntry),
	}
}

// Store serializes rows to measure their size. At or below the ceiling the
// rows are stored verbatim; above it only the first TruncateRows rows are
// kept, the truncated flag is set, and SizeBytes measures the truncated
// payload. Returns the stored entry.
func (c *Cache) Store(id uuid.UUID, rows []domain.Row, at time.Time) (domain.CacheEntry, error) {
	if rows == nil {
		rows = []domain.Row{}
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return domain.CacheEntry{}, err
	}

	truncated := false
	if len(data) > c.maxBytes {
		if len(rows) > TruncateRows {
			rows = rows[:TruncateRows]
		}
		data, err = json.Marshal(rows)
		if err != nil {
			return domain.CacheEntry{}, err
		}
		truncated = true
	}

	entry := domain.CacheEntry{
		Rows:       rows,
		CapturedAt: at,
		SizeBytes:  len(data),
		Truncated:  truncated,
	}

	c.mu.Lock()
	c.entries[id] = entry
	c.mu.Unlock()

	return entry, nil
}

// Fetch returns the entry for a source, or false when nothing is cached
// yet. Never an error.
func (c *Cache) Fetch(id uuid.UUID) (domain.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[id]
	return entry, ok
}

// Delete removes a source's entry. No-op if absent.
func (c *Cache) Delete(id uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// TotalBytes is the serialized size of all entries, for metrics.
func (c *Cache) TotalBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, e := range c.entries {
		total += int64(e.SizeBytes)
	}
	return total
}
