package config

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/juju/clock"

	logx "roomcast/pkg/logx"
)

const (
	watchRetryBase = 250 * time.Millisecond
	watchRetryMax  = 5 * time.Second
	// A watcher that survived this long resets the retry backoff.
	watchHealthy = time.Minute
)

var errWatcherClosed = errors.New("fsnotify watcher closed")

// Watch reloads the file whenever it changes until ctx ends. The parent
// directory is watched so editors that replace the file are seen. A broken
// watcher is recreated with jittered backoff.
func (m *Manager) Watch(ctx context.Context) error {
	deb := &debouncer{clock: m.clock, delay: m.debounce, fn: func() { m.reloadLogged(ctx) }}
	defer deb.stop()

	attempt := 0
	for {
		began := m.clock.Now()
		err := m.watchOnce(ctx, deb.trigger)
		if ctx.Err() != nil {
			return nil
		}
		if m.clock.Now().Sub(began) > watchHealthy {
			attempt = 0
		}
		wait := retryDelay(attempt)
		attempt++
		m.log.Warn("config watcher failed; retrying", logx.Err(err), logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-m.clock.After(wait):
		}
	}
}

func (m *Manager) watchOnce(ctx context.Context, changed func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir, name := filepath.Dir(m.path), filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return err
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", name))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if strings.EqualFold(filepath.Base(ev.Name), name) {
				changed()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				changed()
				continue
			}
			return err
		}
	}
}

func (m *Manager) reloadLogged(ctx context.Context) {
	published, err := m.Reload(ctx)
	switch {
	case err != nil:
		m.log.Warn("config reload failed", logx.Err(err))
	case !published:
		m.log.Debug("config unchanged", logx.String("path", m.path))
	}
}

func retryDelay(attempt int) time.Duration {
	d := watchRetryBase << min(attempt, 8)
	if d > watchRetryMax {
		d = watchRetryMax
	}
	return d + rand.N(d/2+1)
}

// debouncer collapses bursts of triggers into one call of fn, delay after
// the last trigger.
type debouncer struct {
	clock clock.Clock
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   clock.Timer
	stopped bool
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.delay, d.fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
