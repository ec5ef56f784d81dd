package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusSink(reg), reg
}

func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterVecValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	mf := gatherMetric(t, reg, name)
	if mf == nil {
		return 0
	}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mf := gatherMetric(t, reg, name)
	if mf == nil {
		return 0
	}
	for _, m := range mf.GetMetric() {
		if m.GetGauge() != nil {
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestExecutionCompleted(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.ExecutionCompleted("success", 50*time.Millisecond)
	sink.ExecutionCompleted("success", 80*time.Millisecond)
	sink.ExecutionCompleted("error", 10*time.Millisecond)

	if got := counterVecValue(t, reg, "tidewatch_executions_total", "status", "success"); got != 2 {
		t.Errorf("success executions = %v, want 2", got)
	}
	if got := counterVecValue(t, reg, "tidewatch_executions_total", "status", "error"); got != 1 {
		t.Errorf("error executions = %v, want 1", got)
	}

	mf := gatherMetric(t, reg, "tidewatch_execution_duration_seconds")
	if mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleCount() != 3 {
		t.Error("expected 3 duration observations")
	}
}

func TestBroadcastAndSleepMetrics(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.BroadcastPublished(KindData)
	sink.BroadcastPublished(KindData)
	sink.BroadcastPublished(KindError)
	sink.SleepStateSet(true)
	sink.SourcesActiveSet(7)
	sink.CacheBytesSet(4096)
	sink.StalledExecutionsSet(2)

	if got := counterVecValue(t, reg, "tidewatch_broadcasts_total", "kind", "data"); got != 2 {
		t.Errorf("data broadcasts = %v, want 2", got)
	}
	if got := counterVecValue(t, reg, "tidewatch_broadcasts_total", "kind", "error"); got != 1 {
		t.Errorf("error broadcasts = %v, want 1", got)
	}
	if got := gaugeValue(t, reg, "tidewatch_sleeping"); got != 1 {
		t.Errorf("sleeping gauge = %v, want 1", got)
	}
	if got := gaugeValue(t, reg, "tidewatch_sources_active"); got != 7 {
		t.Errorf("sources gauge = %v, want 7", got)
	}
	if got := gaugeValue(t, reg, "tidewatch_cache_bytes"); got != 4096 {
		t.Errorf("cache bytes gauge = %v, want 4096", got)
	}
	if got := gaugeValue(t, reg, "tidewatch_stalled_executions"); got != 2 {
		t.Errorf("stalled gauge = %v, want 2", got)
	}

	sink.SleepStateSet(false)
	if got := gaugeValue(t, reg, "tidewatch_sleeping"); got != 0 {
		t.Errorf("sleeping gauge after wake = %v, want 0", got)
	}
}

// Double registration must not panic or propagate; the second sink simply
// isn't scraped.
func TestDuplicateRegistrationIsTolerated(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusSink(reg)
	sink := NewPrometheusSink(reg)
	sink.ExecutionCompleted("success", time.Millisecond)
}
