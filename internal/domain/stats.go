package domain

import "time"

// Execution status values as recorded in stats and metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SourceStats are in-memory execution counters for one source. They
// accumulate until process restart; only error transitions are mirrored to
// durable storage.
type SourceStats struct {
	TotalExecutions int64
	Successes       int64
	Failures        int64
	Skipped         int64
	Broadcasts      int64

	LastDuration time.Duration
	LastStatus   string
	LastError    string
	LastRunAt    time.Time
}
