package hub

import (
	"context"
	"sync"
	"testing"
	"time"
)

func receive(t *testing.T, c <-chan []byte) []byte {
	t.Helper()
	select {
	case payload := <-c:
		return payload
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func TestPublish_DeliversToChannelSubscribers(t *testing.T) {
	h := New()
	subA := h.Subscribe("VESSEL_ALONGSIDE")
	defer subA.Close()
	subB := h.Subscribe("VESSEL_ALONGSIDE")
	defer subB.Close()
	other := h.Subscribe("TIDES")
	defer other.Close()

	if err := h.Publish(context.Background(), "VESSEL_ALONGSIDE", []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if got := string(receive(t, subA.C)); got != "hello" {
		t.Errorf("subscriber A got %q", got)
	}
	if got := string(receive(t, subB.C)); got != "hello" {
		t.Errorf("subscriber B got %q", got)
	}

	select {
	case payload := <-other.C:
		t.Errorf("other channel received %q", payload)
	default:
	}
}

func TestPublish_NoSubscribersIsNoop(t *testing.T) {
	h := New()
	if err := h.Publish(context.Background(), "EMPTY", []byte("x")); err != nil {
		t.Fatalf("Publish to empty channel: %v", err)
	}
}

// A slow subscriber loses messages instead of blocking the publish path.
func TestPublish_DropsWhenSubscriberFull(t *testing.T) {
	h := New(WithBuffer(1))
	sub := h.Subscribe("TIDES")
	defer sub.Close()

	h.Publish(context.Background(), "TIDES", []byte("first"))
	h.Publish(context.Background(), "TIDES", []byte("second")) // dropped

	if got := string(receive(t, sub.C)); got != "first" {
		t.Errorf("got %q, want first", got)
	}
	select {
	case payload := <-sub.C:
		t.Errorf("unexpected second payload %q", payload)
	default:
	}
}

func TestSubscriberCount_AndCallback(t *testing.T) {
	h := New()

	var mu sync.Mutex
	var notifications int
	h.OnCountChange(func() {
		mu.Lock()
		notifications++
		mu.Unlock()
	})

	subA := h.Subscribe("A")
	subB := h.Subscribe("B")
	if got := h.SubscriberCount(); got != 2 {
		t.Errorf("SubscriberCount = %d, want 2", got)
	}

	subA.Close()
	subB.Close()
	if got := h.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount after close = %d, want 0", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if notifications != 4 {
		t.Errorf("count-change notifications = %d, want 4", notifications)
	}
}

func TestClose_Idempotent(t *testing.T) {
	h := New()
	sub := h.Subscribe("A")
	sub.Close()
	sub.Close()

	if got := h.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}

	// The subscription channel is closed exactly once.
	if _, ok := <-sub.C; ok {
		t.Error("expected closed subscription channel")
	}
}
