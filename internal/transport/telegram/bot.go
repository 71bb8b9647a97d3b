// Package telegram is the operator control surface over a Telegram bot. It
// also relays delivery outcomes and forwarded logs to a notify chat.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "roomcast/internal/runtime/supervisor"
	"roomcast/internal/transport"
	logx "roomcast/pkg/logx"
)

type Config struct {
	Token         string
	OwnerUserIDs  []int64
	NotifyChatID  int64
	PollTimeout   time.Duration
	NotifySuccess bool
}

type sendFunc func(ctx context.Context, chatID int64, text string) error

// Bot handles owner commands and pushes notifications.
type Bot struct {
	cfg    Config
	log    logx.Logger
	ctl    transport.Controller
	owners map[int64]struct{}

	bot  *tele.Bot
	send sendFunc

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(cfg Config, ctl transport.Controller, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	b := newBot(cfg, ctl, log)
	b.bot = tb
	b.send = b.sendText
	b.registerHandlers()
	return b, nil
}

func newBot(cfg Config, ctl transport.Controller, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	owners := make(map[int64]struct{}, len(cfg.OwnerUserIDs))
	for _, id := range cfg.OwnerUserIDs {
		owners[id] = struct{}{}
	}
	return &Bot{cfg: cfg, log: log, ctl: ctl, owners: owners}
}

func (b *Bot) isOwner(id int64) bool {
	_, ok := b.owners[id]
	return ok
}

func (b *Bot) registerHandlers() {
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		if !b.isOwner(m.Sender.ID) {
			b.log.Debug("ignored message from non-owner", logx.Int64("from_id", m.Sender.ID))
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		reply := b.exec(ctx, m.Text)
		if reply == "" {
			return nil
		}
		return b.send(ctx, m.Chat.ID, reply)
	})
}

// Start begins polling. It is a no-op if already running.
func (b *Bot) Start(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.running {
		return nil
	}
	b.running = true
	b.sup = rtsup.New(ctx, rtsup.WithLogger(b.log.With(logx.String("comp", "telegram.bot"))))
	sup := b.sup

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		b.bot.Stop()
	})

	// telebot's Start blocks until Stop; restart it if it returns early.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		b.log.Info("polling started")
		b.bot.Start()
		b.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	return nil
}

// Stop ends polling and waits briefly for the poller to exit.
func (b *Bot) Stop(ctx context.Context) error {
	b.runMu.Lock()
	sup := b.sup
	b.sup = nil
	wasRunning := b.running
	b.running = false
	b.runMu.Unlock()
	if !wasRunning || sup == nil {
		return nil
	}

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Stop(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		b.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

const textLimit = 4000

func (b *Bot) sendText(ctx context.Context, chatID int64, text string) error {
	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := b.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return err
		}
	}
	return nil
}

// SendLog forwards a log line; it lets the logger use the bot as its chat sink.
func (b *Bot) SendLog(ctx context.Context, chatID int64, text string) error {
	if chatID == 0 {
		return nil
	}
	return b.send(ctx, chatID, text)
}

// splitText cuts s into chunks of at most limit runes, preferring line
// breaks in the last two thirds of a chunk.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i-start >= limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
