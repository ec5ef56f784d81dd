package scheduler

import (
	"log"
	"time"
)

// CheckSleepMode drives the sleep/wake state machine. The connection layer
// calls it on every subscriber connect and disconnect.
//
// Rules: any subscriber while sleeping wakes the scheduler immediately
// (staggered, jittered restart); zero subscribers while awake arms a single
// debounce timer; a subscriber arriving while the timer is pending cancels
// it. Sleeping cancels per-source timers but retains cached data and
// statistics — a pause, not a teardown.
func (s *Scheduler) CheckSleepMode() {
	if !s.config.SleepEnabled || s.subs == nil {
		return
	}
	count := s.subs.SubscriberCount()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}

	if count > 0 {
		if s.sleepTimer != nil {
			s.sleepTimer.Stop()
			s.sleepTimer = nil
			log.Println("scheduler: subscriber connected, pending sleep cancelled")
		}
		if s.sleeping {
			s.wakeLocked()
		}
		return
	}

	if s.sleeping || s.sleepTimer != nil {
		return
	}
	s.sleepTimer = time.AfterFunc(s.config.SleepDelay, s.enterSleep)
	log.Printf("scheduler: no subscribers, sleeping in %s unless one connects", s.config.SleepDelay)
}

// Sleeping reports whether the scheduler is currently suspended.
func (s *Scheduler) Sleeping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sleeping
}

// enterSleep fires when the debounce window elapses. The subscriber count
// is re-checked at fire time: a connect racing the timer wins.
func (s *Scheduler) enterSleep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sleepTimer = nil
	if s.sleeping || !s.started {
		return
	}
	if s.subs.SubscriberCount() > 0 {
		return
	}

	s.stopTimersLocked()
	s.sleeping = true
	if s.metrics != nil {
		s.metrics.SleepStateSet(true)
	}
	log.Printf("scheduler: sleeping, %d timer(s) suspended", len(s.runtimes))
}

func (s *Scheduler) wakeLocked() {
	s.sleeping = false
	s.startTimersLocked(true, true)
	if s.metrics != nil {
		s.metrics.SleepStateSet(false)
	}
	log.Printf("scheduler: awake, %d source(s) resumed", len(s.runtimes))
}
