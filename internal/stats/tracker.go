package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidewatch-io/tidewatch/internal/domain"
)

// Tracker accumulates execution counters for one source. Counters are
// atomic so the monitoring surface can read concurrently with the single
// in-flight execution that writes.
type Tracker struct {
	total      atomic.Int64
	successes  atomic.Int64
	failures   atomic.Int64
	skipped    atomic.Int64
	broadcasts atomic.Int64

	mu           sync.Mutex
	lastDuration time.Duration
	lastStatus   string
	lastError    string
	lastRunAt    time.Time
}

func (t *Tracker) recordSuccess(d time.Duration, at time.Time) {
	t.total.Add(1)
	t.successes.Add(1)
	t.mu.Lock()
	t.lastDuration = d
	t.lastStatus = domain.StatusSuccess
	t.lastError = ""
	t.lastRunAt = at
	t.mu.Unlock()
}

func (t *Tracker) recordError(d time.Duration, msg string, at time.Time) {
	t.total.Add(1)
	t.failures.Add(1)
	t.mu.Lock()
	t.lastDuration = d
	t.lastStatus = domain.StatusError
	t.lastError = msg
	t.lastRunAt = at
	t.mu.Unlock()
}

func (t *Tracker) recordSkipped() {
	t.skipped.Add(1)
}

func (t *Tracker) recordBroadcast() {
	t.broadcasts.Add(1)
}

// Snapshot returns a consistent copy of the counters.
func (t *Tracker) Snapshot() domain.SourceStats {
	t.mu.Lock()
	s := domain.SourceStats{
		LastDuration: t.lastDuration,
		LastStatus:   t.lastStatus,
		LastError:    t.lastError,
		LastRunAt:    t.lastRunAt,
	}
	t.mu.Unlock()

	s.TotalExecutions = t.total.Load()
	s.Successes = t.successes.Load()
	s.Failures = t.failures.Load()
	s.Skipped = t.skipped.Load()
	s.Broadcasts = t.broadcasts.Load()
	return s
}
