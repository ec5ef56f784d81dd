// Package hub is the in-process broadcast transport: per-channel subscriber
// sets with non-blocking delivery. It also feeds the sleep/wake controller
// with the current subscriber count and a change notification on every
// connect/disconnect.
package hub

import (
	"context"
	"log"
	"sync"
)

// DefaultBuffer is the per-subscriber channel buffer. A subscriber that
// falls this far behind starts losing messages rather than blocking the
// publish path.
const DefaultBuffer = 16

// Subscription is one subscriber's attachment to a channel. Receive on C;
// call Close exactly once when done. Close is idempotent.
type Subscription struct {
	C <-chan []byte

	hub     *Hub
	channel string
	ch      chan []byte
	once    sync.Once
}

// Close detaches the subscription. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.channel, s.ch)
	})
}

// Hub fans payloads out to subscribers.
type Hub struct {
	buffer int

	mu       sync.RWMutex
	channels map[string]map[chan []byte]struct{}
	count    int

	onChange func()
}

type Option func(*Hub)

// WithBuffer sets the per-subscriber buffer size.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func New(opts ...Option) *Hub {
	h := &Hub{
		buffer:   DefaultBuffer,
		channels: make(map[string]map[chan []byte]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnCountChange registers a callback invoked after every subscribe and
// unsubscribe, outside the hub lock. Used to drive the sleep/wake check.
func (h *Hub) OnCountChange(fn func()) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// Subscribe attaches a new subscriber to a channel.
func (h *Hub) Subscribe(channel string) *Subscription {
	ch := make(chan []byte, h.buffer)

	h.mu.Lock()
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[chan []byte]struct{})
		h.channels[channel] = subs
	}
	subs[ch] = struct{}{}
	h.count++
	notify := h.onChange
	h.mu.Unlock()

	if notify != nil {
		notify()
	}

	return &Subscription{C: ch, hub: h, channel: channel, ch: ch}
}

func (h *Hub) unsubscribe(channel string, ch chan []byte) {
	h.mu.Lock()
	if subs, ok := h.channels[channel]; ok {
		if _, present := subs[ch]; present {
			delete(subs, ch)
			h.count--
			if len(subs) == 0 {
				delete(h.channels, channel)
			}
		}
	}
	notify := h.onChange
	h.mu.Unlock()

	close(ch)
	if notify != nil {
		notify()
	}
}

// Publish delivers the payload to every subscriber of the channel.
// Non-blocking: a full subscriber buffer drops the message for that
// subscriber only.
func (h *Hub) Publish(ctx context.Context, channel string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for ch := range h.channels[channel] {
		select {
		case ch <- payload:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		log.Printf("hub: channel=%s dropped message for %d slow subscriber(s)", channel, dropped)
	}
	return nil
}

// SubscriberCount is the number of currently attached subscriptions across
// all channels.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
