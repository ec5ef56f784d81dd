package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/tidewatch-io/tidewatch/internal/domain"
)

// sourceRuntime is the per-source state owned exclusively by the scheduler.
// Never shared across sources; no cross-source locking.
type sourceRuntime struct {
	source   domain.Source
	schedule cronv3.Schedule // nil for interval sources

	// running is the overlap guard: at most one execution in flight.
	running atomic.Bool

	// inFlightSince is the start time (unix nanos) of the current
	// execution, 0 when idle. Read by the watchdog.
	inFlightSince atomic.Int64

	// fingerprint of the last result set. Single writer: only the
	// execution holding the running flag touches it. Empty means no prior
	// execution, which always counts as changed.
	fingerprint string

	// cancelTimer stops this source's timer goroutine. Exclusive
	// ownership: cancelled before replacement or drop; nil while sleeping.
	cancelTimer context.CancelFunc
}

// startTimersLocked arms one timer goroutine per runtime. wake additionally
// schedules a jittered one-off execution per interval source to refill
// caches without a synchronized first-fetch spike. staggered=false is the
// degraded fallback path: everything starts immediately.
func (s *Scheduler) startTimersLocked(wake, staggered bool) {
	n := len(s.order)
	if s.metrics != nil {
		s.metrics.SourcesActiveSet(n)
	}
	if n == 0 {
		return
	}

	var step time.Duration
	if staggered {
		step = staggerDelay(n, s.minIntervalLocked(), s.config.MaxStaggerBudget, s.config.StaggerFloor)
	}

	slot := 0
	for _, id := range s.order {
		rt := s.runtimes[id]
		ctx, cancel := context.WithCancel(s.baseCtx)
		rt.cancelTimer = cancel

		if rt.schedule != nil {
			// Cron times are absolute; no stagger or jitter applies.
			go s.runCronTimer(ctx, rt)
			continue
		}

		jitter := time.Duration(-1)
		if wake {
			jitter = s.jitter(s.config.WakeJitterMax)
		}
		go s.runIntervalTimer(ctx, rt, time.Duration(slot)*step, jitter)
		slot++
	}
}

// stopTimersLocked cancels every timer goroutine but leaves runtimes, cache
// and statistics in place. Cancelling twice is a no-op.
func (s *Scheduler) stopTimersLocked() {
	for _, rt := range s.runtimes {
		if rt.cancelTimer != nil {
			rt.cancelTimer()
			rt.cancelTimer = nil
		}
	}
}

// minIntervalLocked is the smallest interval among interval-scheduled
// sources, used as the stagger numerator. Zero when every source is
// cron-scheduled (stagger is then irrelevant).
func (s *Scheduler) minIntervalLocked() time.Duration {
	var min time.Duration
	for _, rt := range s.runtimes {
		if rt.schedule != nil {
			continue
		}
		if min == 0 || rt.source.Interval < min {
			min = rt.source.Interval
		}
	}
	return min
}

// runIntervalTimer is the timer loop for one interval source: wait out the
// stagger offset, execute, then tick at the source's own interval.
// Executions run on the scheduler's base context so that stopping the
// timer never aborts a poll already in flight.
func (s *Scheduler) runIntervalTimer(ctx context.Context, rt *sourceRuntime, initialDelay, wakeJitter time.Duration) {
	if wakeJitter >= 0 {
		go func() {
			t := time.NewTimer(wakeJitter)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
				s.execute(s.baseCtx, rt)
			}
		}()
	}

	if initialDelay > 0 {
		t := time.NewTimer(initialDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	go s.execute(s.baseCtx, rt)

	ticker := time.NewTicker(rt.source.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go s.execute(s.baseCtx, rt)
		}
	}
}

// runCronTimer is the timer loop for a cron-scheduled source.
func (s *Scheduler) runCronTimer(ctx context.Context, rt *sourceRuntime) {
	for {
		now := s.clock()
		next := rt.schedule.Next(now)
		if next.IsZero() {
			return
		}

		t := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			go s.execute(s.baseCtx, rt)
		}
	}
}
