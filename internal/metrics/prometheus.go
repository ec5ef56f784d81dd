package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated; a collector that
// fails to register keeps working locally and simply isn't scraped.
type PrometheusSink struct {
	executionsTotal   *prometheus.CounterVec
	executionDuration prometheus.Histogram
	skippedTotal      prometheus.Counter

	broadcastsTotal *prometheus.CounterVec
	hydrationsTotal *prometheus.CounterVec

	sourcesActive prometheus.Gauge
	sleeping      prometheus.Gauge

	cacheBytes       prometheus.Gauge
	truncationsTotal prometheus.Counter

	stalledExecutions prometheus.Gauge
}

// NewPrometheusSink creates and registers the tidewatch collectors.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		executionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tidewatch_executions_total",
			Help: "Total number of completed source executions.",
		}, []string{"status"}),
		executionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tidewatch_execution_duration_seconds",
			Help:    "Wall-clock duration of source query executions in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		skippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tidewatch_executions_skipped_total",
			Help: "Total number of ticks skipped by the overlap guard or circuit breaker.",
		}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tidewatch_broadcasts_total",
			Help: "Total number of payloads published to broadcast channels.",
		}, []string{"kind"}),
		hydrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tidewatch_hydrations_total",
			Help: "Total number of hydration snapshots served.",
		}, []string{"from_cache"}),
		sourcesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tidewatch_sources_active",
			Help: "Number of sources currently scheduled.",
		}),
		sleeping: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tidewatch_sleeping",
			Help: "1 while the scheduler is in the sleeping state, 0 otherwise.",
		}),
		cacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tidewatch_cache_bytes",
			Help: "Total serialized size of all cached result sets in bytes.",
		}),
		truncationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tidewatch_cache_truncations_total",
			Help: "Total number of cache stores that exceeded the byte ceiling and were truncated.",
		}),
		stalledExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tidewatch_stalled_executions",
			Help: "Number of executions in flight longer than the watchdog threshold.",
		}),
	}

	s.register(reg, s.executionsTotal, "tidewatch_executions_total")
	s.register(reg, s.executionDuration, "tidewatch_execution_duration_seconds")
	s.register(reg, s.skippedTotal, "tidewatch_executions_skipped_total")
	s.register(reg, s.broadcastsTotal, "tidewatch_broadcasts_total")
	s.register(reg, s.hydrationsTotal, "tidewatch_hydrations_total")
	s.register(reg, s.sourcesActive, "tidewatch_sources_active")
	s.register(reg, s.sleeping, "tidewatch_sleeping")
	s.register(reg, s.cacheBytes, "tidewatch_cache_bytes")
	s.register(reg, s.truncationsTotal, "tidewatch_cache_truncations_total")
	s.register(reg, s.stalledExecutions, "tidewatch_stalled_executions")

	return s
}

// register attempts to register a collector, logging any error without
// propagating it.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

func (s *PrometheusSink) ExecutionCompleted(status string, duration time.Duration) {
	s.executionsTotal.WithLabelValues(status).Inc()
	s.executionDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) ExecutionSkipped() {
	s.skippedTotal.Inc()
}

func (s *PrometheusSink) BroadcastPublished(kind string) {
	s.broadcastsTotal.WithLabelValues(kind).Inc()
}

func (s *PrometheusSink) HydrationServed(fromCache bool) {
	label := "false"
	if fromCache {
		label = "true"
	}
	s.hydrationsTotal.WithLabelValues(label).Inc()
}

func (s *PrometheusSink) SourcesActiveSet(count int) {
	s.sourcesActive.Set(float64(count))
}

func (s *PrometheusSink) SleepStateSet(sleeping bool) {
	if sleeping {
		s.sleeping.Set(1)
	} else {
		s.sleeping.Set(0)
	}
}

func (s *PrometheusSink) CacheBytesSet(total int64) {
	s.cacheBytes.Set(float64(total))
}

func (s *PrometheusSink) CacheTruncated() {
	s.truncationsTotal.Inc()
}

func (s *PrometheusSink) StalledExecutionsSet(count int) {
	s.stalledExecutions.Set(float64(count))
}
