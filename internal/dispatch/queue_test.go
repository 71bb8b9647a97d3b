package dispatch

import (
	"strconv"
	"sync"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	if _, ok := q.DequeueIfAny(); ok {
		t.Fatal("empty queue returned a message")
	}
	for _, s := range []string{"a", "b", "c"} {
		m := q.Enqueue(s)
		if m.ID == "" || m.EnqueuedAt.IsZero() {
			t.Fatalf("enqueue did not stamp message: %+v", m)
		}
	}
	if got := q.Snapshot(); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("snapshot = %v", got)
	}
	for _, want := range []string{"a", "b", "c"} {
		m, ok := q.DequeueIfAny()
		if !ok || m.Text != want {
			t.Fatalf("dequeue = %q/%v, want %q", m.Text, ok, want)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("len = %d, want 0", q.Len())
	}
}

func TestQueueRunningFlag(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	if q.IsRunning() {
		t.Fatal("new queue should not be running")
	}
	if !q.tryStart() {
		t.Fatal("tryStart on idle queue failed")
	}
	if q.tryStart() {
		t.Fatal("tryStart succeeded twice")
	}
	q.SetRunning(false)
	if q.IsRunning() {
		t.Fatal("SetRunning(false) ignored")
	}
}

func TestQueueConcurrentProducersConsumers(t *testing.T) {
	t.Parallel()
	const producers, perProducer = 8, 200
	q := NewQueue()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(strconv.Itoa(p) + ":" + strconv.Itoa(i))
			}
		}(p)
	}

	seen := make(map[string]bool)
	var mu sync.Mutex
	var cwg sync.WaitGroup
	done := make(chan struct{})
	for c := 0; c < 4; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				m, ok := q.DequeueIfAny()
				if ok {
					mu.Lock()
					if seen[m.Text] {
						t.Errorf("duplicate dequeue %q", m.Text)
					}
					seen[m.Text] = true
					mu.Unlock()
					continue
				}
				select {
				case <-done:
					if q.Len() == 0 {
						return
					}
				default:
				}
			}
		}()
	}
	wg.Wait()
	close(done)
	cwg.Wait()

	if len(seen) != producers*perProducer {
		t.Fatalf("dequeued %d messages, want %d", len(seen), producers*perProducer)
	}
}
