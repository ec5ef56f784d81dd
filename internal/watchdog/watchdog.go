// Package watchdog periodically scans for executions stuck in flight
// longer than a threshold. It cannot abort them — a hung poll resolves at
// the driver level or not at all — but it makes them visible to operators
// instead of silently eating every subsequent tick.
package watchdog

import (
	"context"
	"log"
	"time"

	"github.com/tidewatch-io/tidewatch/internal/scheduler"
)

// Inspector exposes the scheduler's in-flight executions.
type Inspector interface {
	InFlight(olderThan time.Time) []scheduler.StalledExecution
}

// MetricsSink records the stalled-execution gauge.
type MetricsSink interface {
	StalledExecutionsSet(count int)
}

// Config holds watchdog configuration.
type Config struct {
	// Interval is how often the watchdog scans. Default: 1 minute.
	Interval time.Duration

	// Threshold is the in-flight age after which an execution counts as
	// stalled. Must comfortably exceed the executor's query timeout.
	// Default: 5 minutes.
	Threshold time.Duration
}

// DefaultConfig returns the default watchdog configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  time.Minute,
		Threshold: 5 * time.Minute,
	}
}

// Watchdog scans an Inspector on a fixed interval.
type Watchdog struct {
	config    Config
	inspector Inspector
	metrics   MetricsSink // optional, nil = disabled
	clock     func() time.Time
}

// New creates a new Watchdog.
func New(config Config, inspector Inspector) *Watchdog {
	return &Watchdog{
		config:    config,
		inspector: inspector,
		clock:     time.Now,
	}
}

// WithMetrics attaches a metrics sink.
func (w *Watchdog) WithMetrics(sink MetricsSink) *Watchdog {
	w.metrics = sink
	return w
}

// Run starts the scan loop. It blocks until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	log.Printf("watchdog: started (interval=%s, threshold=%s)", w.config.Interval, w.config.Threshold)

	for {
		select {
		case <-ctx.Done():
			log.Println("watchdog: stopped")
			return
		case <-ticker.C:
			w.runCycle()
		}
	}
}

// runCycle executes one scan.
func (w *Watchdog) runCycle() {
	olderThan := w.clock().Add(-w.config.Threshold)
	stalled := w.inspector.InFlight(olderThan)

	if w.metrics != nil {
		w.metrics.StalledExecutionsSet(len(stalled))
	}
	if len(stalled) == 0 {
		return
	}

	for _, se := range stalled {
		log.Printf("watchdog: source=%s execution in flight since %s (%s)",
			se.Name, se.Since.UTC().Format(time.RFC3339), w.clock().Sub(se.Since).Round(time.Second))
	}
}
