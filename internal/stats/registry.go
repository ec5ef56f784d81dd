// Package stats tracks per-source execution statistics in memory and
// mirrors only error transitions to durable storage. Success stats are
// memory-only and lost on restart — a deliberate write-amplification
// reduction, not an oversight.
package stats

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidewatch-io/tidewatch/internal/domain"
)

// ErrorStore persists the last failed run for a source. Best-effort: the
// registry logs and swallows persistence failures so the execution path
// never fails or retries because of them.
type ErrorStore interface {
	RecordFailure(ctx context.Context, sourceID uuid.UUID, duration time.Duration, at time.Time) error
}

// Registry owns one Tracker per source.
type Registry struct {
	store ErrorStore // nil disables durable mirroring
	clock func() time.Time

	mu       sync.Mutex
	trackers map[uuid.UUID]*Tracker
}

func NewRegistry(store ErrorStore) *Registry {
	return &Registry{
		store:    store,
		clock:    time.Now,
		trackers: make(map[uuid.UUID]*Tracker),
	}
}

func (r *Registry) tracker(id uuid.UUID) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[id]
	if !ok {
		t = &Tracker{}
		r.trackers[id] = t
	}
	return t
}

// RecordSuccess updates in-memory counters only.
func (r *Registry) RecordSuccess(id uuid.UUID, d time.Duration) {
	r.tracker(id).recordSuccess(d, r.clock().UTC())
}

// RecordError updates in-memory counters and attempts a best-effort durable
// write of the failure.
func (r *Registry) RecordError(ctx context.Context, id uuid.UUID, d time.Duration, msg string) {
	at := r.clock().UTC()
	r.tracker(id).recordError(d, msg, at)

	if r.store == nil {
		return
	}
	if err := r.store.RecordFailure(ctx, id, d, at); err != nil {
		log.Printf("stats: failed to persist error stat for source=%s: %v", id, err)
	}
}

// RecordSkipped counts a tick dropped by the overlap guard.
func (r *Registry) RecordSkipped(id uuid.UUID) {
	r.tracker(id).recordSkipped()
}

// RecordBroadcast counts a published change notification.
func (r *Registry) RecordBroadcast(id uuid.UUID) {
	r.tracker(id).recordBroadcast()
}

// Snapshot returns the counters for a source, or false if none recorded.
func (r *Registry) Snapshot(id uuid.UUID) (domain.SourceStats, bool) {
	r.mu.Lock()
	t, ok := r.trackers[id]
	r.mu.Unlock()
	if !ok {
		return domain.SourceStats{}, false
	}
	return t.Snapshot(), true
}

// Remove drops the tracker for a deleted source.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.trackers, id)
	r.mu.Unlock()
}
