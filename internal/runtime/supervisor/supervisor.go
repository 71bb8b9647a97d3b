// Package supervisor runs the process's long-lived goroutines under one
// context, with panic recovery and optional restart loops.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	logx "roomcast/pkg/logx"
)

// Supervisor manages goroutines tied to a shared context.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	clock       clock.Clock
	cancelOnErr bool

	active   atomic.Int64
	errOnce  sync.Once
	firstErr atomic.Value // error
	doneOnce sync.Once
	doneCh   chan struct{}
	wg       sync.WaitGroup

	mu    sync.Mutex
	stats map[string]*Stats
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithClock sets the clock used for restart backoff.
func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithCancelOnError cancels the shared context on the first goroutine error.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

// Stats is a best-effort per-name view for status output.
type Stats struct {
	Name      string    `json:"name"`
	Active    int64     `json:"active"`
	Started   uint64    `json:"started"`
	Restarts  uint64    `json:"restarts"`
	Panics    uint64    `json:"panics"`
	LastErr   string    `json:"last_err,omitempty"`
	LastErrAt time.Time `json:"last_err_at,omitempty"`
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		clock:  clock.WallClock,
		doneCh: make(chan struct{}),
		stats:  map[string]*Stats{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the shared context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Active reports how many goroutines are running.
func (s *Supervisor) Active() int64 { return s.active.Load() }

func (s *Supervisor) Err() error {
	if err, ok := s.firstErr.Load().(error); ok {
		return err
	}
	return nil
}

// Snapshot returns per-name stats, active first.
func (s *Supervisor) Snapshot() []Stats {
	s.mu.Lock()
	out := make([]Stats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Active != out[j].Active {
			return out[i].Active > out[j].Active
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Supervisor) note(name string, fn func(st *Stats)) {
	s.mu.Lock()
	st := s.stats[name]
	if st == nil {
		st = &Stats{Name: name}
		s.stats[name] = st
	}
	fn(st)
	s.mu.Unlock()
}

func (s *Supervisor) noteErr(name string, err error) {
	s.note(name, func(st *Stats) {
		st.LastErr = err.Error()
		st.LastErrAt = time.Now()
	})
}

// Go runs fn once. A panic or a non-cancel error is recorded as the
// supervisor error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	s.active.Add(1)
	s.note(name, func(st *Stats) { st.Started++; st.Active++ })
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)
		defer s.note(name, func(st *Stats) { st.Active-- })

		err, pan := s.call(name, fn)
		if pan {
			s.fail(err)
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%s: %w", name, err)
			s.noteErr(name, err)
			s.fail(err)
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

// Go0 is Go for functions without an error result.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// call runs fn with panic capture. pan reports whether fn panicked.
func (s *Supervisor) call(name string, fn func(ctx context.Context) error) (err error, pan bool) {
	defer func() {
		if r := recover(); r != nil {
			pan = true
			err = fmt.Errorf("panic in %s: %v", name, r)
			s.note(name, func(st *Stats) { st.Panics++ })
			s.noteErr(name, err)
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return fn(s.ctx), false
}

func (s *Supervisor) fail(err error) {
	s.errOnce.Do(func() { s.firstErr.Store(err) })
	if s.cancelOnErr {
		s.cancel()
	}
}

type RestartOption func(*restartCfg)

type restartCfg struct {
	minBackoff  time.Duration
	maxBackoff  time.Duration
	maxRestarts int // <=0 means unlimited
}

// WithRestartBackoff sets the exponential backoff window between restarts.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(c *restartCfg) {
		if min > 0 {
			c.minBackoff = min
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithMaxRestarts gives up after n restarts. The first run is not counted.
func WithMaxRestarts(n int) RestartOption { return func(c *restartCfg) { c.maxRestarts = n } }

// GoRestart runs fn and restarts it after an error or panic until the
// context ends. A nil return stops the loop.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	cfg := restartCfg{minBackoff: 250 * time.Millisecond, maxBackoff: 30 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxBackoff < cfg.minBackoff {
		cfg.maxBackoff = cfg.minBackoff
	}

	s.wg.Add(1)
	s.active.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)

		backoff := cfg.minBackoff
		for restarts := 0; ; restarts++ {
			if s.ctx.Err() != nil {
				return
			}
			s.note(name, func(st *Stats) {
				st.Started++
				st.Active++
				if restarts > 0 {
					st.Restarts++
				}
			})
			startedAt := s.clock.Now()
			err, _ := s.call(name, fn)
			s.note(name, func(st *Stats) { st.Active-- })

			if s.ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				return
			}
			err = fmt.Errorf("%s: %w", name, err)
			s.noteErr(name, err)

			if cfg.maxRestarts > 0 && restarts >= cfg.maxRestarts {
				s.log.Error("goroutine gave up after restarts", logx.String("name", name), logx.Int("restarts", restarts), logx.Err(err))
				s.fail(err)
				return
			}
			// A long healthy run resets the backoff.
			if s.clock.Now().Sub(startedAt) >= 30*time.Second {
				backoff = cfg.minBackoff
			}
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", backoff), logx.Err(err))

			select {
			case <-s.ctx.Done():
				return
			case <-s.clock.After(backoff):
			}
			backoff = min(backoff*2, cfg.maxBackoff)
		}
	}()
}

// Stop cancels the context and waits for all goroutines or ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}
