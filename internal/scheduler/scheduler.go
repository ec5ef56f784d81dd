// Package scheduler owns one recurring timer per configured source and
// drives the poll → detect-change → broadcast pipeline. Timer callbacks are
// fire-and-forget with respect to the timer loops: a slow execution never
// blocks other sources, only causes its own next ticks to be skipped by the
// per-source overlap guard.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/tidewatch-io/tidewatch/internal/broadcast"
	"github.com/tidewatch-io/tidewatch/internal/cache"
	"github.com/tidewatch-io/tidewatch/internal/circuitbreaker"
	"github.com/tidewatch-io/tidewatch/internal/domain"
	"github.com/tidewatch-io/tidewatch/internal/fingerprint"
	"github.com/tidewatch-io/tidewatch/internal/query"
	"github.com/tidewatch-io/tidewatch/internal/stats"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrNotStarted    = errors.New("scheduler not started")
)

// SourceStore provides the source-of-truth list of sources, ordered by
// identifier.
type SourceStore interface {
	GetEnabledSources(ctx context.Context) ([]domain.Source, error)
}

// Executor runs one bounded query.
type Executor interface {
	Execute(ctx context.Context, queryText string, maxRows int) (domain.ResultSet, error)
}

// Publisher fans a payload out on a broadcast channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// SubscriberCounter reports the current number of connected real-time
// clients, for the sleep/wake controller.
type SubscriberCounter interface {
	SubscriberCount() int
}

// MetricsSink records scheduler metrics. All methods must be non-blocking
// and fire-and-forget.
type MetricsSink interface {
	ExecutionCompleted(status string, duration time.Duration)
	ExecutionSkipped()
	BroadcastPublished(kind string)
	SourcesActiveSet(count int)
	SleepStateSet(sleeping bool)
	CacheBytesSet(total int64)
	CacheTruncated()
}

// Config holds scheduler tunables. Zero values fall back to the defaults
// documented on each field.
type Config struct {
	// PollRowLimit caps rows per scheduled execution. Default 50.
	PollRowLimit int

	// MaxStaggerBudget bounds the total startup stagger span. Default 10s.
	MaxStaggerBudget time.Duration

	// StaggerFloor is the minimum delay between source starts. Default
	// 500ms. For very large source counts the floor pushes the total span
	// past the budget; pool stability wins over the budget there.
	StaggerFloor time.Duration

	// WakeJitterMax bounds the random once-off execution delay applied to
	// each source on wake-from-sleep. Default 2s.
	WakeJitterMax time.Duration

	// SleepEnabled turns the sleep/wake controller on. When false the
	// scheduler is always awake.
	SleepEnabled bool

	// SleepDelay is the debounce window between the last subscriber
	// disconnecting and timers being suspended. Default 30s.
	SleepDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollRowLimit <= 0 {
		c.PollRowLimit = query.DefaultPollRowLimit
	}
	if c.MaxStaggerBudget <= 0 {
		c.MaxStaggerBudget = 10 * time.Second
	}
	if c.StaggerFloor <= 0 {
		c.StaggerFloor = 500 * time.Millisecond
	}
	if c.WakeJitterMax <= 0 {
		c.WakeJitterMax = 2 * time.Second
	}
	if c.SleepDelay <= 0 {
		c.SleepDelay = 30 * time.Second
	}
	return c
}

type Scheduler struct {
	config    Config
	store     SourceStore
	executor  Executor
	cache     *cache.Cache
	stats     *stats.Registry
	publisher Publisher
	subs      SubscriberCounter
	metrics   MetricsSink            // optional, nil = disabled
	breaker   *circuitbreaker.Breaker // optional, nil = disabled

	clock  func() time.Time
	jitter func(max time.Duration) time.Duration

	baseCtx context.Context

	mu         sync.Mutex
	started    bool
	sleeping   bool
	sleepTimer *time.Timer
	runtimes   map[uuid.UUID]*sourceRuntime
	byName     map[string]uuid.UUID
	order      []uuid.UUID
}

func New(config Config, store SourceStore, executor Executor, c *cache.Cache, registry *stats.Registry, publisher Publisher, subs SubscriberCounter) *Scheduler {
	return &Scheduler{
		config:    config.withDefaults(),
		store:     store,
		executor:  executor,
		cache:     c,
		stats:     registry,
		publisher: publisher,
		subs:      subs,
		clock:     time.Now,
		jitter:    defaultJitter,
		runtimes:  make(map[uuid.UUID]*sourceRuntime),
		byName:    make(map[string]uuid.UUID),
	}
}

// WithMetrics attaches a metrics sink.
func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

// WithBreaker attaches a per-source circuit breaker.
func (s *Scheduler) WithBreaker(b *circuitbreaker.Breaker) *Scheduler {
	s.breaker = b
	return s
}

// Start loads the enabled sources and arms their timers with staggered
// first executions. If the initial load fails, one immediate retry without
// stagger is the degraded fallback; if that also fails, Start returns the
// error and startup should be treated as fatal.
//
// ctx is the process-lifetime context: cancelling it stops every timer and
// cancels in-flight executions at the driver level.
func (s *Scheduler) Start(ctx context.Context) error {
	s.baseCtx = ctx

	staggered := true
	sources, err := s.store.GetEnabledSources(ctx)
	if err != nil {
		log.Printf("scheduler: staggered load failed, retrying unstaggered: %v", err)
		staggered = false
		sources, err = s.store.GetEnabledSources(ctx)
		if err != nil {
			return fmt.Errorf("load sources: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuildRuntimesLocked(sources)
	s.started = true
	s.startTimersLocked(false, staggered)
	log.Printf("scheduler: started with %d source(s) (staggered=%t)", len(sources), staggered)
	return nil
}

// Reload tears down all timers and rebuilds from the latest source list.
// This is how external CRUD takes effect without a restart. Cache entries
// and statistics survive for sources that persist; fingerprints do not, so
// the first post-reload execution rebroadcasts.
func (s *Scheduler) Reload(ctx context.Context) error {
	sources, err := s.store.GetEnabledSources(ctx)
	if err != nil {
		return fmt.Errorf("reload sources: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}

	s.stopTimersLocked()
	removed := s.rebuildRuntimesLocked(sources)
	for _, id := range removed {
		s.cache.Delete(id)
		s.stats.Remove(id)
		if s.breaker != nil {
			s.breaker.Forget(id)
		}
	}
	if !s.sleeping {
		s.startTimersLocked(false, true)
	}
	log.Printf("scheduler: reloaded, %d source(s) active, %d removed", len(sources), len(removed))
	return nil
}

// Stop cancels all timers and discards runtime state. In-flight executions
// are not aborted; they complete against the base context and their
// overlap flags die with the discarded runtimes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sleepTimer != nil {
		s.sleepTimer.Stop()
		s.sleepTimer = nil
	}
	s.stopTimersLocked()
	s.runtimes = make(map[uuid.UUID]*sourceRuntime)
	s.byName = make(map[string]uuid.UUID)
	s.order = nil
	s.started = false
	if s.metrics != nil {
		s.metrics.SourcesActiveSet(0)
	}
	log.Println("scheduler: stopped")
}

// TriggerByName forces one immediate out-of-band execution for a source,
// subject to the overlap guard. Used to warm a cold cache for hydration.
func (s *Scheduler) TriggerByName(name string) error {
	s.mu.Lock()
	id, ok := s.byName[name]
	rt := s.runtimes[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	go s.execute(s.baseCtx, rt)
	return nil
}

// CachedData returns the current cache entry for a source, or false when
// nothing has been cached yet.
func (s *Scheduler) CachedData(id uuid.UUID) (domain.CacheEntry, bool) {
	return s.cache.Fetch(id)
}

// CachedDataByName resolves a source by display name and returns its cache
// entry.
func (s *Scheduler) CachedDataByName(name string) (domain.CacheEntry, bool) {
	s.mu.Lock()
	id, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return domain.CacheEntry{}, false
	}
	return s.cache.Fetch(id)
}

// CachedDataByChannel resolves a broadcast channel back to its source and
// returns the cache entry, for hydrating a newly connected subscriber.
func (s *Scheduler) CachedDataByChannel(channel string) (string, domain.CacheEntry, bool) {
	s.mu.Lock()
	var name string
	var id uuid.UUID
	for n, i := range s.byName {
		if broadcast.ChannelName(n) == channel {
			name, id = n, i
			break
		}
	}
	s.mu.Unlock()
	if name == "" {
		return "", domain.CacheEntry{}, false
	}
	entry, ok := s.cache.Fetch(id)
	return name, entry, ok
}

// SourceMemoryStats is the monitoring view of one scheduled source.
type SourceMemoryStats struct {
	ID             uuid.UUID
	Name           string
	Interval       time.Duration
	CronExpression string

	Running  bool
	Sleeping bool

	Stats domain.SourceStats

	HasCache       bool
	CacheSizeBytes int
	CacheAge       time.Duration
	CacheTruncated bool
}

// MemoryStats returns the monitoring view for every scheduled source, in
// load order.
func (s *Scheduler) MemoryStats() []SourceMemoryStats {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SourceMemoryStats, 0, len(s.order))
	for _, id := range s.order {
		rt := s.runtimes[id]
		ms := SourceMemoryStats{
			ID:             id,
			Name:           rt.source.Name,
			Interval:       rt.source.Interval,
			CronExpression: rt.source.CronExpression,
			Running:        rt.running.Load(),
			Sleeping:       s.sleeping,
		}
		if st, ok := s.stats.Snapshot(id); ok {
			ms.Stats = st
		}
		if entry, ok := s.cache.Fetch(id); ok {
			ms.HasCache = true
			ms.CacheSizeBytes = entry.SizeBytes
			ms.CacheAge = entry.Age(now)
			ms.CacheTruncated = entry.Truncated
		}
		out = append(out, ms)
	}
	return out
}

// StalledExecution identifies an execution in flight longer than a
// watchdog threshold.
type StalledExecution struct {
	SourceID uuid.UUID
	Name     string
	Since    time.Time
}

// InFlight returns executions that started before olderThan and have not
// finished.
func (s *Scheduler) InFlight(olderThan time.Time) []StalledExecution {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stalled []StalledExecution
	for _, id := range s.order {
		rt := s.runtimes[id]
		since := rt.inFlightSince.Load()
		if since == 0 {
			continue
		}
		started := time.Unix(0, since)
		if started.Before(olderThan) {
			stalled = append(stalled, StalledExecution{SourceID: id, Name: rt.source.Name, Since: started})
		}
	}
	return stalled
}

// rebuildRuntimesLocked replaces the runtime registry from a fresh source
// list and returns the IDs that no longer exist.
func (s *Scheduler) rebuildRuntimesLocked(sources []domain.Source) []uuid.UUID {
	old := s.runtimes
	s.runtimes = make(map[uuid.UUID]*sourceRuntime, len(sources))
	s.byName = make(map[string]uuid.UUID, len(sources))
	s.order = s.order[:0]

	for _, src := range sources {
		if src.Interval < domain.MinInterval {
			log.Printf("scheduler: source=%s interval %s below minimum, clamping to %s", src.Name, src.Interval, domain.MinInterval)
			src.Interval = domain.MinInterval
		}

		rt := &sourceRuntime{source: src}
		if src.CronExpression != "" {
			sched, err := cronv3.ParseStandard(src.CronExpression)
			if err != nil {
				log.Printf("scheduler: source=%s invalid cron %q, using interval %s: %v", src.Name, src.CronExpression, src.Interval, err)
			} else {
				rt.schedule = sched
			}
		}

		s.runtimes[src.ID] = rt
		s.byName[src.Name] = src.ID
		s.order = append(s.order, src.ID)
	}

	var removed []uuid.UUID
	for id := range old {
		if _, ok := s.runtimes[id]; !ok {
			removed = append(removed, id)
		}
	}
	return removed
}

// execute runs one poll for a source: overlap guard, query, fingerprint,
// cache, broadcast. Every failure is contained to this source.
func (s *Scheduler) execute(ctx context.Context, rt *sourceRuntime) {
	if !rt.running.CompareAndSwap(false, true) {
		// Already in flight: count the tick as skipped, no queuing.
		s.stats.RecordSkipped(rt.source.ID)
		if s.metrics != nil {
			s.metrics.ExecutionSkipped()
		}
		return
	}
	defer rt.running.Store(false)

	rt.inFlightSince.Store(s.clock().UnixNano())
	defer rt.inFlightSince.Store(0)

	if s.breaker != nil {
		if err := s.breaker.Allow(rt.source.ID); err != nil {
			s.stats.RecordSkipped(rt.source.ID)
			if s.metrics != nil {
				s.metrics.ExecutionSkipped()
			}
			return
		}
	}

	res, err := s.executor.Execute(ctx, rt.source.Query, s.config.PollRowLimit)
	if err != nil {
		s.handleFailure(ctx, rt, res.Duration, err)
		return
	}

	fp, err := fingerprint.Sum(res.Rows)
	if err != nil {
		// Subscribers cannot distinguish a serialization failure from a
		// driver one; same handling path.
		s.handleFailure(ctx, rt, res.Duration, &query.ExecutionError{Kind: query.KindSerialization, Err: err})
		return
	}

	changed := rt.fingerprint == "" || fp != rt.fingerprint
	rt.fingerprint = fp

	s.stats.RecordSuccess(rt.source.ID, res.Duration)
	if s.breaker != nil {
		s.breaker.RecordSuccess(rt.source.ID)
	}
	if s.metrics != nil {
		s.metrics.ExecutionCompleted(domain.StatusSuccess, res.Duration)
	}

	if !changed {
		return
	}

	entry, err := s.cache.Store(rt.source.ID, res.Rows, s.clock().UTC())
	if err != nil {
		log.Printf("scheduler: source=%s cache store failed: %v", rt.source.Name, err)
		return
	}
	if s.metrics != nil {
		if entry.Truncated {
			s.metrics.CacheTruncated()
		}
		s.metrics.CacheBytesSet(s.cache.TotalBytes())
	}

	msg := broadcast.Data(rt.source.Name, res.Rows, res.Duration, s.clock())
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("scheduler: source=%s payload marshal failed: %v", rt.source.Name, err)
		return
	}
	if err := s.publisher.Publish(ctx, broadcast.ChannelName(rt.source.Name), payload); err != nil {
		log.Printf("scheduler: source=%s publish failed: %v", rt.source.Name, err)
		return
	}

	s.stats.RecordBroadcast(rt.source.ID)
	if s.metrics != nil {
		s.metrics.BroadcastPublished("data")
	}
	log.Printf("scheduler: source=%s broadcast rows=%d duration=%s", rt.source.Name, len(res.Rows), res.Duration.Round(time.Millisecond))
}

// handleFailure records an execution failure and broadcasts the sanitized
// error payload. The driver message goes to logs and durable stats only.
func (s *Scheduler) handleFailure(ctx context.Context, rt *sourceRuntime, d time.Duration, err error) {
	log.Printf("scheduler: source=%s execution failed: %v", rt.source.Name, err)

	s.stats.RecordError(ctx, rt.source.ID, d, err.Error())
	if s.breaker != nil {
		s.breaker.RecordFailure(rt.source.ID)
	}
	if s.metrics != nil {
		s.metrics.ExecutionCompleted(domain.StatusError, d)
	}

	msg := broadcast.Error(rt.source.Name, s.clock())
	payload, merr := json.Marshal(msg)
	if merr != nil {
		log.Printf("scheduler: source=%s error payload marshal failed: %v", rt.source.Name, merr)
		return
	}
	if perr := s.publisher.Publish(ctx, broadcast.ChannelName(rt.source.Name), payload); perr != nil {
		log.Printf("scheduler: source=%s error publish failed: %v", rt.source.Name, perr)
		return
	}
	if s.metrics != nil {
		s.metrics.BroadcastPublished("error")
	}
}
