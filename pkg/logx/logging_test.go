package logx

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu    sync.Mutex
	lines []string
	got   chan struct{}
}

func (f *fakeSender) SendLog(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	f.lines = append(f.lines, text)
	f.mu.Unlock()
	select {
	case f.got <- struct{}{}:
	default:
	}
	return nil
}

func TestFileSinkWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	svc, log := New(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}}, nil)
	t.Cleanup(func() { _ = svc.Close() })

	log.With(String("comp", "dispatch")).Info("message delivered", Int("chunks", 2), Duration("took", time.Second))
	_ = svc.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(b))), &m); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, b)
	}
	if m["message"] != "message delivered" || m["comp"] != "dispatch" || m["level"] != "info" {
		t.Fatalf("unexpected log line: %v", m)
	}
	if _, ok := m["caller"]; !ok {
		t.Fatalf("caller missing: %v", m)
	}
}

func TestChatSinkForwardsWarnings(t *testing.T) {
	sender := &fakeSender{got: make(chan struct{}, 4)}
	svc, log := New(Config{Level: "debug"}, sender)
	t.Cleanup(func() { _ = svc.Close() })
	svc.SetChatTarget(42)
	svc.Apply(Config{Level: "debug", Chat: ChatConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10}})

	log.Info("ignored")
	log.Warn("delivery failed", String("room", "123"))

	select {
	case <-sender.got:
	case <-time.After(2 * time.Second):
		t.Fatal("warning not forwarded")
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.lines) != 1 {
		t.Fatalf("forwarded %d lines, want 1: %q", len(sender.lines), sender.lines)
	}
	if !strings.HasPrefix(sender.lines[0], "[WARN] delivery failed") || !strings.Contains(sender.lines[0], "room=123") {
		t.Fatalf("unexpected forwarded line %q", sender.lines[0])
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop logger should not be zero")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	if got := parseLevel(" warning ", LevelInfo); got != LevelWarn {
		t.Fatalf("parseLevel(warning) = %v", got)
	}
	if got := parseLevel("bogus", LevelInfo); got != LevelInfo {
		t.Fatalf("parseLevel(bogus) = %v", got)
	}
}

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"error","time":"x","message":"outcome emit failed","room":"42","caller":"d.go:1","stack":"goroutine 1"}` + "\n")
	got := formatChatLine(line)
	want := "[ERROR] outcome emit failed\n- caller=d.go:1\n- room=42\n- stack=\ngoroutine 1"
	if got != want {
		t.Fatalf("formatChatLine =\n%q\nwant\n%q", got, want)
	}
	if got := formatChatLine([]byte("  not json \n")); got != "not json" {
		t.Fatalf("raw line = %q", got)
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghij", 8, "abcde..."},
		{"ééééé", 7, "éé..."},
		{"anything", 0, "anything"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.n); got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
