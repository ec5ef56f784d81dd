package broadcast

import (
	"context"
	"errors"
	"testing"
)

type recordingPublisher struct {
	calls int
	err   error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	p.calls++
	return p.err
}

func TestMultiPublisher_AttemptsEveryTarget(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("redis down")}
	healthy := &recordingPublisher{}

	m := NewMultiPublisher(failing, healthy)
	err := m.Publish(context.Background(), "TIDES", []byte("x"))

	if err == nil {
		t.Fatal("expected joined error")
	}
	// One transport failing must not prevent delivery to the others.
	if healthy.calls != 1 {
		t.Errorf("healthy target calls = %d, want 1", healthy.calls)
	}
	if failing.calls != 1 {
		t.Errorf("failing target calls = %d, want 1", failing.calls)
	}
}

func TestMultiPublisher_AllHealthy(t *testing.T) {
	a, b := &recordingPublisher{}, &recordingPublisher{}
	m := NewMultiPublisher(a, b)
	if err := m.Publish(context.Background(), "TIDES", []byte("x")); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
