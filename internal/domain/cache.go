package domain

import "time"

// CacheEntry is the most recent changed result for a source. Entries are
// immutable snapshots: a new successful, changed execution replaces the
// entry wholesale; readers must not mutate Rows.
type CacheEntry struct {
	Rows       []Row
	CapturedAt time.Time

	// SizeBytes is the serialized size of Rows as stored. When Truncated,
	// it measures the truncated payload, not the original.
	SizeBytes int
	Truncated bool
}

// Age returns how stale the entry is at the given time.
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CapturedAt)
}
