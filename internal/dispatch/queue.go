package dispatch

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queue is the shared queue state: pending messages plus the running flag.
// All access goes through the guard; nothing here blocks beyond the lock.
type Queue struct {
	mu      sync.Mutex
	items   []Message
	running bool
}

func NewQueue() *Queue { return &Queue{} }

// Enqueue appends text at the tail and returns the stored message.
func (q *Queue) Enqueue(text string) Message { return q.enqueueAt(text, time.Now()) }

func (q *Queue) enqueueAt(text string, at time.Time) Message {
	m := Message{ID: uuid.NewString(), Text: text, EnqueuedAt: at}
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	return m
}

// DequeueIfAny removes and returns the head, if there is one.
func (q *Queue) DequeueIfAny() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Message{}, false
	}
	m := q.items[0]
	q.items[0] = Message{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return m, true
}

func (q *Queue) SetRunning(v bool) {
	q.mu.Lock()
	q.running = v
	q.mu.Unlock()
}

func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Len reports the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot copies the pending texts in delivery order.
func (q *Queue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.items))
	for i, m := range q.items {
		out[i] = m.Text
	}
	return out
}

// tryStart sets the running flag unless it is already set.
func (q *Queue) tryStart() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return false
	}
	q.running = true
	return true
}
