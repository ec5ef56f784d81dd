package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) ExecutionCompleted(status string, duration time.Duration) {}
func (n *NoopSink) ExecutionSkipped()                                        {}
func (n *NoopSink) BroadcastPublished(kind string)                           {}
func (n *NoopSink) HydrationServed(fromCache bool)                           {}
func (n *NoopSink) SourcesActiveSet(count int)                               {}
func (n *NoopSink) SleepStateSet(sleeping bool)                              {}
func (n *NoopSink) CacheBytesSet(total int64)                                {}
func (n *NoopSink) CacheTruncated()                                          {}
func (n *NoopSink) StalledExecutionsSet(count int)                           {}
