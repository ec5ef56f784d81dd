package metrics

import "time"

// Sink records operational metrics. All methods are fire-and-forget:
// implementations MUST NOT block or propagate errors. If the metrics
// backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Execution metrics
	ExecutionCompleted(status string, duration time.Duration)
	ExecutionSkipped()

	// Broadcast metrics
	BroadcastPublished(kind string)
	HydrationServed(fromCache bool)

	// Scheduler state metrics
	SourcesActiveSet(count int)
	SleepStateSet(sleeping bool)

	// Cache metrics
	CacheBytesSet(total int64)
	CacheTruncated()

	// Watchdog metrics
	StalledExecutionsSet(count int)
}

// Broadcast kind labels for BroadcastPublished.
const (
	KindData  = "data"
	KindError = "error"
)
