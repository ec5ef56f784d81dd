package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tidewatch-io/tidewatch/internal/domain"
)

// mockErrorStore records durable failure writes.
type mockErrorStore struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *mockErrorStore) RecordFailure(ctx context.Context, sourceID uuid.UUID, duration time.Duration, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *mockErrorStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestRegistry_Counters(t *testing.T) {
	store := &mockErrorStore{}
	r := NewRegistry(store)
	id := uuid.New()

	r.RecordSuccess(id, 20*time.Millisecond)
	r.RecordSuccess(id, 30*time.Millisecond)
	r.RecordError(context.Background(), id, 50*time.Millisecond, "pq: relation missing")
	r.RecordSkipped(id)
	r.RecordBroadcast(id)

	s, ok := r.Snapshot(id)
	if !ok {
		t.Fatal("Snapshot: expected tracker")
	}
	if s.TotalExecutions != 3 {
		t.Errorf("TotalExecutions = %d, want 3", s.TotalExecutions)
	}
	if s.Successes != 2 {
		t.Errorf("Successes = %d, want 2", s.Successes)
	}
	if s.Failures != 1 {
		t.Errorf("Failures = %d, want 1", s.Failures)
	}
	if s.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", s.Skipped)
	}
	if s.Broadcasts != 1 {
		t.Errorf("Broadcasts = %d, want 1", s.Broadcasts)
	}
	if s.LastStatus != domain.StatusError {
		t.Errorf("LastStatus = %s, want %s", s.LastStatus, domain.StatusError)
	}
	if s.LastError != "pq: relation missing" {
		t.Errorf("LastError = %q", s.LastError)
	}
	if store.callCount() != 1 {
		t.Errorf("durable writes = %d, want 1", store.callCount())
	}
}

// A success after an error clears the last-error text.
func TestRegistry_SuccessClearsLastError(t *testing.T) {
	r := NewRegistry(nil)
	id := uuid.New()

	r.RecordError(context.Background(), id, time.Millisecond, "boom")
	r.RecordSuccess(id, time.Millisecond)

	s, _ := r.Snapshot(id)
	if s.LastStatus != domain.StatusSuccess {
		t.Errorf("LastStatus = %s, want %s", s.LastStatus, domain.StatusSuccess)
	}
	if s.LastError != "" {
		t.Errorf("LastError = %q, want empty", s.LastError)
	}
}

// Durable-write failures are logged and swallowed; the in-memory counters
// still advance and the caller never sees an error.
func TestRegistry_DurableWriteFailureSwallowed(t *testing.T) {
	store := &mockErrorStore{err: errors.New("db down")}
	r := NewRegistry(store)
	id := uuid.New()

	r.RecordError(context.Background(), id, time.Millisecond, "boom")

	s, ok := r.Snapshot(id)
	if !ok || s.Failures != 1 {
		t.Errorf("expected in-memory failure recorded despite store error, got %+v ok=%t", s, ok)
	}
}

func TestRegistry_SnapshotMissAndRemove(t *testing.T) {
	r := NewRegistry(nil)
	id := uuid.New()

	if _, ok := r.Snapshot(id); ok {
		t.Error("expected no snapshot for unknown source")
	}

	r.RecordSuccess(id, time.Millisecond)
	r.Remove(id)
	if _, ok := r.Snapshot(id); ok {
		t.Error("expected tracker gone after Remove")
	}
}
