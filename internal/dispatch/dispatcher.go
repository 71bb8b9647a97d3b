package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"

	logx "roomcast/pkg/logx"
)

// DefaultPollInterval is the pause between queue checks.
const DefaultPollInterval = time.Second

// Config wires a Dispatcher to its collaborators.
type Config struct {
	// Deliverer sends messages to the room. Required.
	Deliverer Deliverer

	// Sink receives one Outcome per dequeued message. Required.
	Sink Sink

	// Clock drives the delay and poll waits. Defaults to the wall clock.
	Clock clock.Clock

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// MaxMessageLen is the rune limit applied by Notify. Zero means
	// DefaultMaxMessageLen; negative disables splitting.
	MaxMessageLen int

	Logger logx.Logger

	// Go launches the worker loop. Defaults to a plain goroutine; hosts
	// pass their supervisor here.
	Go func(name string, fn func())
}

func (c *Config) validate() error {
	var err error
	if c.Deliverer == nil {
		err = multierror.Append(err, fmt.Errorf("deliverer not provided"))
	}
	if c.Sink == nil {
		err = multierror.Append(err, fmt.Errorf("sink not provided"))
	}
	if c.PollInterval < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid poll interval %s, must be >= 0", c.PollInterval))
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxMessageLen == 0 {
		c.MaxMessageLen = DefaultMaxMessageLen
	}
	if c.Logger.IsZero() {
		c.Logger = logx.Nop()
	}
	if c.Go == nil {
		c.Go = func(_ string, fn func()) { go fn() }
	}
	return err
}

// run is one worker loop's private control state.
type run struct {
	room Room
	// stop is closed by Stop to wake waits early.
	stop chan struct{}
	// done is closed when the loop has returned.
	done chan struct{}
	// prev is the previous loop's done channel; nil if there was none.
	prev <-chan struct{}
}

// Dispatcher is the queue-and-worker handle. Build one at startup and pass
// it to whatever issues start/stop/notify.
type Dispatcher struct {
	cfg   Config
	queue *Queue
	log   logx.Logger

	mu  sync.Mutex
	cur *run
}

// New returns a Dispatcher draining q. A nil q gets a fresh Queue.
func New(q *Queue, cfg Config) (*Dispatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("dispatch: config validation failed: %w", err)
	}
	if q == nil {
		q = NewQueue()
	}
	return &Dispatcher{cfg: cfg, queue: q, log: cfg.Logger}, nil
}

func (d *Dispatcher) Queue() *Queue { return d.queue }

// Running reports the running flag.
func (d *Dispatcher) Running() bool { return d.queue.IsRunning() }

// Pending reports the queue depth.
func (d *Dispatcher) Pending() int { return d.queue.Len() }

// Room returns the room of the current (or last) run.
func (d *Dispatcher) Room() (Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cur == nil {
		return Room{}, false
	}
	return d.cur.room, true
}

// Notify splits text to the room's length limit and enqueues the chunks.
// It returns how many messages were queued. Whether a worker runs is not
// affected: with no worker the messages wait for the next Start.
func (d *Dispatcher) Notify(text string) int {
	chunks := SplitMessage(text, d.cfg.MaxMessageLen)
	for _, c := range chunks {
		m := d.queue.enqueueAt(c, d.cfg.Clock.Now())
		d.log.Debug("message queued", logx.String("id", m.ID), logx.Int("len", len([]rune(c))))
	}
	if len(chunks) > 1 {
		d.log.Debug("message split", logx.Int("chunks", len(chunks)), logx.Int("limit", d.cfg.MaxMessageLen))
	}
	return len(chunks)
}

// Start sets the running flag and launches the worker loop. It never blocks.
// ctx bounds the loop's lifetime (process shutdown); use Stop for the normal
// stop path.
func (d *Dispatcher) Start(ctx context.Context, room Room) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := room.validate(); err != nil {
		return err
	}

	// The flag and d.cur change together so a finishing loop's exit cannot
	// clear the flag of the run replacing it.
	d.mu.Lock()
	if !d.queue.tryStart() {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	r := &run{room: room, stop: make(chan struct{}), done: make(chan struct{})}
	if d.cur != nil {
		r.prev = d.cur.done
	}
	d.cur = r
	d.mu.Unlock()

	d.log.Info("dispatch started",
		logx.String("room", room.ID),
		logx.Int("delay_s", room.DelaySeconds),
		logx.Int("pending", d.queue.Len()),
	)
	d.cfg.Go("dispatch.worker", func() { d.loop(ctx, r) })
	return nil
}

// Stop clears the running flag and wakes the worker. It does not wait; an
// in-flight delivery still completes. Stopping an idle dispatcher is a no-op.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	r := d.cur
	d.queue.SetRunning(false)
	if r != nil {
		select {
		case <-r.stop:
		default:
			close(r.stop)
			d.log.Info("dispatch stop requested", logx.String("room", r.room.ID), logx.Int("pending", d.queue.Len()))
		}
	}
	d.mu.Unlock()
}

// Wait blocks until the current worker loop has exited or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	r := d.cur
	d.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) loop(ctx context.Context, r *run) {
	defer close(r.done)
	defer d.exit(r)
	defer func() {
		if p := recover(); p != nil {
			d.log.Error("panic in dispatch worker", logx.String("room", r.room.ID), logx.Any("panic", p), logx.Stack(string(debug.Stack())))
		}
	}()

	// Keep a single consumer: a Stop+Start pair must not overlap loops.
	// done stays open until prev has closed, even if this run is stopped
	// first, so the chain of runs never has two loops past this point.
	if r.prev != nil {
		<-r.prev
	}

	for d.active(ctx, r) {
		if m, ok := d.queue.DequeueIfAny(); ok {
			d.process(ctx, r, m)
		}
		if !d.wait(ctx, r, d.cfg.PollInterval) {
			return
		}
	}
}

func (d *Dispatcher) active(ctx context.Context, r *run) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-r.stop:
		return false
	default:
	}
	return d.queue.IsRunning()
}

// exit clears the flag when the loop ends on its own (shutdown or panic).
func (d *Dispatcher) exit(r *run) {
	d.mu.Lock()
	if d.cur == r {
		d.queue.SetRunning(false)
	}
	d.mu.Unlock()
	d.log.Info("dispatch stopped", logx.String("room", r.room.ID), logx.Int("pending", d.queue.Len()))
}

func (d *Dispatcher) process(ctx context.Context, r *run, m Message) {
	log := d.log.With(logx.String("id", m.ID), logx.String("room", r.room.ID))

	if delay := r.room.Delay(); delay > 0 {
		if !d.wait(ctx, r, delay) {
			log.Warn("message dropped: stopped during delay", logx.Duration("delay", delay))
			d.emit(log, d.outcome(r, m, ErrStopped))
			return
		}
	}

	start := d.cfg.Clock.Now()
	err := d.cfg.Deliverer.Deliver(ctx, r.room.ID, m.Text, r.room.Cookie, r.room.CSRF)
	took := d.cfg.Clock.Now().Sub(start)
	if err != nil {
		log.Warn("delivery failed", logx.Err(err), logx.Duration("took", took))
	} else {
		log.Info("message delivered", logx.Duration("took", took), logx.Duration("queued_for", d.cfg.Clock.Now().Sub(m.EnqueuedAt)))
	}
	d.emit(log, d.outcome(r, m, err))
}

func (d *Dispatcher) outcome(r *run, m Message, err error) Outcome {
	o := Outcome{Success: err == nil, Message: m.Text, ID: m.ID, Room: r.room.ID, At: d.cfg.Clock.Now()}
	if err != nil {
		o.Error = err.Error()
		if o.Error == "" {
			o.Error = "delivery failed"
		}
	}
	return o
}

func (d *Dispatcher) emit(log logx.Logger, o Outcome) {
	if err := d.cfg.Sink.Emit(o); err != nil {
		log.Error("outcome emit failed", logx.Err(err), logx.Bool("success", o.Success))
	}
}

// wait sleeps for dur on the dispatcher clock. It returns false if the run was
// stopped or ctx ended first.
func (d *Dispatcher) wait(ctx context.Context, r *run, dur time.Duration) bool {
	if dur <= 0 {
		return d.active(ctx, r)
	}
	t := d.cfg.Clock.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.Chan():
		return true
	case <-r.stop:
		return false
	case <-ctx.Done():
		return false
	}
}
