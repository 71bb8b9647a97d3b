package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	logx "roomcast/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		kind    SpecKind
		every   time.Duration
		cron    string
		src     string
		wantErr bool
	}{
		{in: "*/5 * * * *", kind: SpecCron, cron: "*/5 * * * *", src: "cron"},
		{in: "@hourly", kind: SpecCron, cron: "@hourly", src: "cron"},
		{in: "CRON: 0 9 * * *", kind: SpecCron, cron: "0 9 * * *", src: "cron"},
		{in: "55m", kind: SpecInterval, every: 55 * time.Minute, src: "duration"},
		{in: "02:30", kind: SpecInterval, every: 150 * time.Minute, src: "hhmm"},
		{in: "every:10m", kind: SpecInterval, every: 10 * time.Minute, src: "duration"},
		{in: "interval: 00:45", kind: SpecInterval, every: 45 * time.Minute, src: "hhmm"},
		{in: "", wantErr: true},
		{in: "cron:", wantErr: true},
		{in: "00:00", wantErr: true},
		{in: "01:75", wantErr: true},
		{in: "-5m", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSchedule(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseSchedule(%q) = %+v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tt.in, err)
		}
		if got.Kind != tt.kind || got.Every != tt.every || got.Cron != tt.cron || got.Source != tt.src {
			t.Fatalf("ParseSchedule(%q) = %+v", tt.in, got)
		}
	}
}

func TestSpreadDelaysOnlyFirstRun(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sched, jitter := intervalWithSpread(time.Minute, now, "a")
	if jitter < 0 || jitter >= time.Minute {
		t.Fatalf("jitter = %v", jitter)
	}
	first := sched.Next(now)
	if want := now.Add(time.Minute + jitter); !first.Equal(want) {
		t.Fatalf("first = %v, want %v", first, want)
	}
	if second := sched.Next(first); second.Sub(first) != time.Minute {
		t.Fatalf("second run %v after first", second.Sub(first))
	}
}

type notifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *notifier) Notify(text string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return 1
}

func (n *notifier) got() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

func TestServiceRegistersAndTriggers(t *testing.T) {
	t.Parallel()
	n := &notifier{}
	svc := New(Config{
		Enabled:  true,
		Timezone: "UTC",
		Announcements: []Announcement{
			{Name: "follow", Spec: "@every 1h", Text: "please follow"},
			{Name: "gift", Spec: "30m", Text: "thanks for gifts"},
		},
	}, n, logx.Nop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(context.Background())

	entries := svc.Entries()
	if len(entries) != 2 || entries[0].Name != "follow" || entries[1].Name != "gift" {
		t.Fatalf("entries = %+v", entries)
	}
	if !svc.Trigger("gift") {
		t.Fatal("Trigger(gift) = false")
	}
	if svc.Trigger("missing") {
		t.Fatal("Trigger(missing) = true")
	}
	if got := n.got(); len(got) != 1 || got[0] != "thanks for gifts" {
		t.Fatalf("notified = %v", got)
	}
	if svc.Entries()[1].Fired != 1 {
		t.Fatalf("fired = %d", svc.Entries()[1].Fired)
	}
}

func TestServiceApply(t *testing.T) {
	t.Parallel()
	n := &notifier{}
	svc := New(Config{Enabled: false}, n, logx.Nop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(context.Background())
	if len(svc.Entries()) != 0 {
		t.Fatal("disabled scheduler registered entries")
	}

	err := svc.Apply(Config{Enabled: true, Announcements: []Announcement{
		{Name: "ok", Spec: "1h", Text: "x"},
		{Name: "bad", Spec: "not a schedule at all", Text: "y"},
	}})
	if err == nil {
		t.Fatal("expected error for bad spec")
	}
	if e := svc.Entries(); len(e) != 1 || e[0].Name != "ok" {
		t.Fatalf("entries = %+v", e)
	}

	if err := svc.Apply(Config{Enabled: false}); err != nil {
		t.Fatalf("Apply(disabled): %v", err)
	}
	if len(svc.Entries()) != 0 || svc.Enabled() {
		t.Fatal("entries remain after disabling")
	}
}

func TestServiceFiresOnSchedule(t *testing.T) {
	t.Parallel()
	n := &notifier{}
	svc := New(Config{Enabled: true, Announcements: []Announcement{
		{Name: "tick", Spec: "@every 1s", Text: "tick"},
	}}, n, logx.Nop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(n.got()) > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("announcement never fired")
}

func TestServiceStopsWithStartContext(t *testing.T) {
	t.Parallel()
	svc := New(Config{Enabled: true, Announcements: []Announcement{
		{Name: "hourly", Spec: "1h", Text: "x"},
	}}, &notifier{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !svc.running() {
		t.Fatal("scheduler not running after Start")
	}
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for svc.running() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler still running after ctx cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// A later Start with a fresh context is not stopped by the old one.
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer svc.Stop(context.Background())
	time.Sleep(20 * time.Millisecond)
	if !svc.running() {
		t.Fatal("restarted scheduler stopped")
	}
}
