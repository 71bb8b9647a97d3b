// Package eventbus is an in-process, non-blocking fanout of small events.
package eventbus

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("eventbus: closed")

const defaultBuffer = 8

type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	// Publish never blocks. It reports how many subscribers took e; a
	// subscriber whose buffer is full misses it.
	Publish(e Event) (int, error)
	// Subscribe receives events of the given types, or all events when no
	// type is named.
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
	// Close unsubscribes everyone.
	Close()
}

func New() Bus {
	return &memBus{subs: map[*subscriber]struct{}{}}
}

type subscriber struct {
	ch    chan Event
	types map[string]bool
}

func (s *subscriber) wants(t string) bool { return len(s.types) == 0 || s.types[t] }

type memBus struct {
	// Publish sends under the read lock and unsubscribe closes under the
	// write lock, so a send never meets a closed channel.
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

func (b *memBus) Publish(e Event) (int, error) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}
	delivered := 0
	for s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
			delivered++
		default:
		}
	}
	return delivered, nil
}

func (b *memBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[string]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s.ch, func() {}
	}
	b.subs[s] = struct{}{}
	return s.ch, func() { b.drop(s) }
}

func (b *memBus) drop(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

func (b *memBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		close(s.ch)
	}
}
