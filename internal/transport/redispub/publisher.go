// Package redispub publishes broadcast payloads over Redis PUB/SUB so
// subscribers in other processes (websocket gateways, tooling) receive the
// same messages as in-process hub clients.
package redispub

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces channels in a shared Redis instance.
const DefaultPrefix = "tidewatch:"

type Publisher struct {
	client *redis.Client
	prefix string
}

type Option func(*Publisher)

// WithPrefix overrides the channel prefix.
func WithPrefix(prefix string) Option {
	return func(p *Publisher) {
		p.prefix = prefix
	}
}

func New(client *redis.Client, opts ...Option) *Publisher {
	p := &Publisher{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.client.Publish(ctx, p.prefix+channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}
