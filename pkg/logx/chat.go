package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	chatQueueSize   = 256
	chatMaxLine     = 3500
	chatMaxValue    = 600
	chatMaxStack    = 900
	chatSendTimeout = 10 * time.Second
)

// Sender delivers one log line to the operator chat.
type Sender interface {
	SendLog(ctx context.Context, chatID int64, text string) error
}

// chatSink is a zerolog LevelWriter that hands formatted lines to a
// background sender. Writes never block the caller; overflow is dropped.
type chatSink struct {
	queue chan chatLine

	mu       sync.Mutex
	sender   Sender
	chatID   int64
	minLevel zerolog.Level
	limiter  *rate.Limiter
	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type chatLine struct {
	chatID int64
	text   string
}

func newChatSink(sender Sender) *chatSink {
	return &chatSink{
		queue:    make(chan chatLine, chatQueueSize),
		sender:   sender,
		minLevel: defaultMinLevel,
		limiter:  rate.NewLimiter(1, 1),
	}
}

func (c *chatSink) setTarget(chatID int64) {
	c.mu.Lock()
	c.chatID = chatID
	c.mu.Unlock()
}

func (c *chatSink) setSender(s Sender) {
	c.mu.Lock()
	c.sender = s
	c.mu.Unlock()
}

func (c *chatSink) configure(cfg ChatConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minLevel = parseLevel(cfg.MinLevel, defaultMinLevel)
	rps := cfg.RatePerSec
	if rps < 1 {
		rps = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if !cfg.Enabled || c.started {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.started, c.cancel = true, cancel
	c.wg.Add(1)
	go c.run(ctx)
}

func (c *chatSink) close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
}

func (c *chatSink) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ln := <-c.queue:
			c.mu.Lock()
			sender := c.sender
			c.mu.Unlock()
			if sender == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, chatSendTimeout)
			_ = sender.SendLog(sctx, ln.chatID, ln.text)
			cancel()
		}
	}
}

func (c *chatSink) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.InfoLevel, p)
}

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	chatID, sender, minLevel, lim := c.chatID, c.sender, c.minLevel, c.limiter
	c.mu.Unlock()

	if chatID == 0 || sender == nil || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	text := formatChatLine(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case c.queue <- chatLine{chatID: chatID, text: text}:
	default:
	}
	return len(p), nil
}

// formatChatLine renders one zerolog JSON line as
// "[LEVEL] message" followed by "- key=value" lines in key order.
func formatChatLine(p []byte) string {
	p = bytes.TrimSpace(p)
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(string(p), chatMaxLine)
	}

	var b strings.Builder
	if lvl, _ := m[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(m[k])
		if k == "stack" {
			fmt.Fprintf(&b, "\n- stack=\n%s", truncate(v, chatMaxStack))
			continue
		}
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(v, chatMaxValue))
	}
	return truncate(b.String(), chatMaxLine)
}

// truncate cuts s to at most n bytes on a rune boundary, marking the cut.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n - len("...")
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
