package eventbus

import (
	"errors"
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	n, err := b.Publish(Event{Type: "message_sent", Data: 1})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != "message_sent" || e.Time.IsZero() {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("event not received")
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	if n, _ := b.Publish(Event{Type: "x"}); n != 1 {
		t.Fatalf("first publish delivered %d, want 1", n)
	}
	if n, _ := b.Publish(Event{Type: "x"}); n != 0 {
		t.Fatalf("second publish delivered %d, want 0 (buffer full)", n)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if _, err := b.Publish(Event{Type: "x"}); err != nil {
		t.Fatalf("Publish after unsubscribe: %v", err)
	}
}

func TestClose(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Close()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after Close")
	}
	if _, err := b.Publish(Event{Type: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish after Close err = %v, want ErrClosed", err)
	}
}

func TestSubscribeFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	sent, unsubSent := b.Subscribe(4, "message_sent")
	all, unsubAll := b.Subscribe(4)
	defer unsubSent()
	defer unsubAll()

	if n, _ := b.Publish(Event{Type: "config_reloaded"}); n != 1 {
		t.Fatalf("config_reloaded delivered to %d, want 1", n)
	}
	if n, _ := b.Publish(Event{Type: "message_sent"}); n != 2 {
		t.Fatalf("message_sent delivered to %d, want 2", n)
	}
	if e := <-sent; e.Type != "message_sent" {
		t.Fatalf("filtered subscriber got %q", e.Type)
	}
	if len(sent) != 0 || len(all) != 2 {
		t.Fatalf("buffers: filtered=%d all=%d", len(sent), len(all))
	}
}
