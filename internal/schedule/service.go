package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "roomcast/pkg/logx"
)

// Notifier receives announcement text. *dispatch.Dispatcher satisfies it.
type Notifier interface {
	Notify(text string) int
}

type Config struct {
	Enabled       bool
	Timezone      string
	Announcements []Announcement
}

type Announcement struct {
	Name string
	Spec string
	Text string
}

// Entry describes a registered announcement.
type Entry struct {
	Name   string    `json:"name"`
	Spec   string    `json:"spec"`
	Next   time.Time `json:"next,omitempty"`
	Fired  int       `json:"fired"`
	Spread string    `json:"spread,omitempty"`
}

type def struct {
	ann     Announcement
	entryID cron.EntryID
	spread  time.Duration
	fired   int
}

type Service struct {
	notifier Notifier
	log      logx.Logger
	parser   cron.Parser

	mu      sync.Mutex
	cfg     Config
	started bool
	// halt is closed by Stop; it releases the ctx watcher of the last Start.
	halt chan struct{}
	loc  *time.Location
	c    *cron.Cron
	defs map[string]*def
}

func New(cfg Config, n Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		notifier: n,
		log:      log,
		cfg:      cfg,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:   map[string]*def{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start begins triggering until Stop or until ctx ends. Disabled configs
// register nothing until a later Apply enables them. Starting a started
// service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	halt := make(chan struct{})
	s.halt = halt
	var err error
	if s.c == nil && s.cfg.Enabled {
		err = s.startLocked()
	}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop(context.Background())
		case <-halt:
		}
	}()
	return err
}

// Stop halts triggering and waits for running jobs or ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.started = false
	if s.halt != nil {
		close(s.halt)
		s.halt = nil
	}
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Apply replaces the config. A started scheduler is rebuilt.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	old := s.c
	s.c = nil
	s.cfg = cfg
	s.mu.Unlock()

	// Jobs take s.mu, so wait for them without holding it.
	if old != nil {
		<-old.Stop().Done()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !cfg.Enabled {
		s.defs = map[string]*def{}
		return nil
	}
	if !s.started || s.c != nil {
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		} else {
			loc = l
		}
	}
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	prev := s.defs
	s.defs = make(map[string]*def, len(s.cfg.Announcements))
	var firstErr error
	for _, a := range s.cfg.Announcements {
		d := &def{ann: a}
		if p, ok := prev[a.Name]; ok && p.ann == a {
			d.fired = p.fired
		}
		if err := s.addLocked(d); err != nil {
			s.log.Warn("announcement not scheduled", logx.String("name", a.Name), logx.String("spec", a.Spec), logx.Err(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("announcement %q: %w", a.Name, err)
			}
			continue
		}
		s.defs[a.Name] = d
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", loc.String()), logx.Int("announcements", len(s.defs)))
	return firstErr
}

func (s *Service) addLocked(d *def) error {
	ps, err := ParseSchedule(d.ann.Spec)
	if err != nil {
		return err
	}
	name := d.ann.Name
	job := cron.FuncJob(func() { s.fire(name) })
	if ps.Kind == SpecInterval {
		sched, jitter := intervalWithSpread(ps.Every, time.Now().In(s.loc), name)
		d.spread = jitter
		d.entryID = s.c.Schedule(sched, job)
		return nil
	}
	id, err := s.c.AddJob(ps.Cron, job)
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) fire(name string) {
	s.mu.Lock()
	d, ok := s.defs[name]
	var text string
	if ok {
		d.fired++
		text = d.ann.Text
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	n := s.notifier.Notify(text)
	s.log.Info("announcement queued", logx.String("name", name), logx.Int("messages", n))
}

// Trigger fires the named announcement now. It reports whether it exists.
func (s *Service) Trigger(name string) bool {
	s.mu.Lock()
	_, ok := s.defs[name]
	s.mu.Unlock()
	if ok {
		s.fire(name)
	}
	return ok
}

// Entries lists registered announcements sorted by name.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.defs))
	for name, d := range s.defs {
		e := Entry{Name: name, Spec: d.ann.Spec, Fired: d.fired}
		if s.c != nil {
			e.Next = s.c.Entry(d.entryID).Next
		}
		if d.spread > 0 {
			e.Spread = d.spread.Truncate(time.Millisecond).String()
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
