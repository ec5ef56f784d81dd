package watchdog

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tidewatch-io/tidewatch/internal/scheduler"
)

type mockInspector struct {
	mu        sync.Mutex
	stalled   []scheduler.StalledExecution
	olderThan time.Time
}

func (m *mockInspector) InFlight(olderThan time.Time) []scheduler.StalledExecution {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.olderThan = olderThan
	return m.stalled
}

type mockMetrics struct {
	mu   sync.Mutex
	last int
	sets int
}

func (m *mockMetrics) StalledExecutionsSet(count int) {
	m.mu.Lock()
	m.last = count
	m.sets++
	m.mu.Unlock()
}

func TestRunCycle_ReportsStalled(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inspector := &mockInspector{
		stalled: []scheduler.StalledExecution{
			{SourceID: uuid.New(), Name: "Vessel Alongside", Since: now.Add(-10 * time.Minute)},
		},
	}
	sink := &mockMetrics{}

	w := New(Config{Interval: time.Minute, Threshold: 5 * time.Minute}, inspector).WithMetrics(sink)
	w.clock = func() time.Time { return now }

	w.runCycle()

	if want := now.Add(-5 * time.Minute); inspector.olderThan != want {
		t.Errorf("olderThan = %v, want %v", inspector.olderThan, want)
	}
	if sink.last != 1 {
		t.Errorf("gauge = %d, want 1", sink.last)
	}
}

func TestRunCycle_ZeroResetsGauge(t *testing.T) {
	inspector := &mockInspector{}
	sink := &mockMetrics{}

	w := New(DefaultConfig(), inspector).WithMetrics(sink)
	w.runCycle()

	if sink.sets != 1 || sink.last != 0 {
		t.Errorf("expected gauge explicitly set to 0, got sets=%d last=%d", sink.sets, sink.last)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Interval != time.Minute {
		t.Errorf("Interval = %s, want 1m", cfg.Interval)
	}
	if cfg.Threshold != 5*time.Minute {
		t.Errorf("Threshold = %s, want 5m", cfg.Threshold)
	}
}
