// Package circuitbreaker optionally suppresses scheduled executions for a
// source that keeps failing. While the breaker is open, ticks are counted
// as skipped until the cooldown elapses; the default configuration disables
// the breaker entirely, in which case the next scheduled tick is always the
// retry.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type sourceState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

// Breaker tracks consecutive execution failures per source.
type Breaker struct {
	mu        sync.Mutex
	states    map[uuid.UUID]*sourceState
	threshold int
	cooldown  time.Duration
	clock     func() time.Time
}

func New(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		states:    make(map[uuid.UUID]*sourceState),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// Allow reports whether an execution for the source may proceed. After the
// cooldown one probe execution is let through (half-open); its outcome
// closes or re-opens the circuit.
func (b *Breaker) Allow(id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[id]
	if !ok {
		return nil
	}

	switch s.state {
	case stateOpen:
		if b.clock().Sub(s.openedAt) >= b.cooldown {
			s.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess closes the circuit for the source.
func (b *Breaker) RecordSuccess(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[id]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

// RecordFailure counts a failure and opens the circuit at the threshold.
func (b *Breaker) RecordFailure(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[id]
	if !ok {
		s = &sourceState{}
		b.states[id] = s
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= b.threshold {
		s.state = stateOpen
		s.openedAt = b.clock()
	}
}

// Forget drops state for a removed source.
func (b *Breaker) Forget(id uuid.UUID) {
	b.mu.Lock()
	delete(b.states, id)
	b.mu.Unlock()
}
