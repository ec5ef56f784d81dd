package broadcast

import (
	"context"
	"errors"
)

// Publisher fans a payload out to every subscriber of a channel. At-most-
// once, best-effort: no delivery guarantees are made to individual
// subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// MultiPublisher publishes to several transports (in-process hub, Redis).
// Every target is attempted; errors are joined.
type MultiPublisher struct {
	targets []Publisher
}

func NewMultiPublisher(targets ...Publisher) *MultiPublisher {
	return &MultiPublisher{targets: targets}
}

func (m *MultiPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.Publish(ctx, channel, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
