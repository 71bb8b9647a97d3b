// Package app wires the dispatcher to its collaborators and control
// surfaces, and owns process lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"roomcast/internal/config"
	"roomcast/internal/dispatch"
	"roomcast/internal/eventbus"
	"roomcast/internal/livechat"
	rtsup "roomcast/internal/runtime/supervisor"
	"roomcast/internal/schedule"
	"roomcast/internal/storage"
	"roomcast/internal/transport"
	"roomcast/internal/transport/httpapi"
	"roomcast/internal/transport/telegram"
	logx "roomcast/pkg/logx"
	"roomcast/pkg/systemd"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	// chat is swapped on delivery config reloads.
	chat      atomic.Pointer[livechat.Client]
	deliverer dispatch.Deliverer

	disp  *dispatch.Dispatcher
	sched *schedule.Service
	http  *httpapi.Server
	bot   *telegram.Bot

	startedAt time.Time
}

type Option func(*App)

// WithDeliverer replaces the live chat client, e.g. for dry runs and tests.
func WithDeliverer(d dispatch.Deliverer) Option {
	return func(a *App) { a.deliverer = d }
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Bootstrap without the chat sink; it is enabled below once the bot exists.
	bootCfg := mapLogConfig(cfg)
	bootCfg.Chat.Enabled = false
	logSvc, root := logx.New(bootCfg, nil)

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     root.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     eventbus.New(),
	}
	for _, o := range opts {
		o(a)
	}

	if sc, enabled := mapStorageConfig(cfg); enabled {
		st, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	a.chat.Store(newLiveChat(cfg, root.With(logx.String("comp", "livechat"))))
	if a.deliverer == nil {
		a.deliverer = dispatch.DelivererFunc(func(ctx context.Context, roomID, text, cookie, csrf string) error {
			return a.chat.Load().Deliver(ctx, roomID, text, cookie, csrf)
		})
	}

	a.disp, err = dispatch.New(nil, dispatch.Config{
		Deliverer:     a.deliverer,
		Sink:          dispatch.BusSink(a.bus),
		MaxMessageLen: cfg.Delivery.MaxMessageLen,
		Logger:        root.With(logx.String("comp", "dispatch")),
		Go:            a.goWorker,
	})
	if err != nil {
		a.closeStore()
		return nil, err
	}

	a.sched = schedule.New(mapScheduleConfig(cfg), a.disp, root.With(logx.String("comp", "schedule")))
	a.http = httpapi.New(a, root.With(logx.String("comp", "httpapi")))

	if tc, enabled := mapTelegramConfig(cfg); enabled {
		bot, err := telegram.New(tc, a, root.With(logx.String("comp", "telegram")))
		if err != nil {
			a.closeStore()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		a.bot = bot
		logSvc.SetSender(bot)
		logSvc.SetChatTarget(tc.NotifyChatID)
	}
	logSvc.Apply(mapLogConfig(cfg))
	return a, nil
}

// goWorker runs fn under the app supervisor once Start has built it.
func (a *App) goWorker(name string, fn func()) {
	if a.sup == nil {
		go fn()
		return
	}
	a.sup.Go0(name, func(context.Context) { fn() })
}

func (a *App) closeStore() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// Dispatcher exposes the single dispatcher handle.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.disp }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.startedAt = time.Now()
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, next *config.Config) error {
		if next.Logging.Chat.Enabled && a.bot == nil {
			return fmt.Errorf("logging.chat needs telegram enabled at startup")
		}
		return nil
	})

	if a.store != nil {
		events, unsub := a.bus.Subscribe(256, dispatch.EventMessageSent)
		a.sup.Go0("history", func(c context.Context) {
			defer unsub()
			a.recordOutcomes(c, events)
		})
	}

	if a.bot != nil {
		if err := a.bot.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("telegram start: %w", err)
		}
		events, unsub := a.bus.Subscribe(64, dispatch.EventMessageSent)
		a.sup.Go0("telegram.relay", func(c context.Context) {
			defer unsub()
			a.bot.RelayOutcomes(c, events)
		})
	}

	if err := a.sched.Start(a.sup.Context()); err != nil {
		a.log.Warn("some announcements were not scheduled", logx.Err(err))
	}
	if err := a.http.Apply(a.sup.Context(), mapHTTPConfig(cfg)); err != nil {
		return fmt.Errorf("http api: %w", err)
	}

	if cfg.Room.Autostart {
		if room, err := a.StartDispatch(transport.RoomOverrides{}); err != nil {
			a.log.Warn("autostart failed", logx.Err(err))
		} else {
			a.log.Info("dispatch autostarted", logx.String("room", room.ID))
		}
	}

	reloads, unsubReloads := a.cfgm.Subscribe(1)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer unsubReloads()
		a.reloadLoop(c, reloads)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if iv := systemd.WatchdogInterval(); iv > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			systemd.Watchdog(c, iv, func() bool { return a.sup.Err() == nil })
		})
	}
	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	a.notifyStatus()

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) recordOutcomes(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			o, isOutcome := ev.Data.(dispatch.Outcome)
			if ev.Type != dispatch.EventMessageSent || !isOutcome {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := a.store.AppendOutcome(wctx, storage.OutcomeRecord{
				At:      o.At,
				ID:      o.ID,
				Room:    o.Room,
				Success: o.Success,
				Message: o.Message,
				Error:   o.Error,
			})
			cancel()
			if err != nil {
				a.log.Warn("outcome not recorded", logx.String("id", o.ID), logx.Err(err))
			}
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			sections, attrs := config.SummarizeConfigChange(last, next)
			last = next
			if len(sections) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}
			a.applyConfig(ctx, next, sections)
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, cfg *config.Config, sections []string) {
	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.SetChatTarget(notifyChatID(cfg))
			a.logs.Apply(mapLogConfig(cfg))
		case "room":
			a.log.Info("room settings apply on next dispatch start")
		case "delivery":
			a.chat.Store(newLiveChat(cfg, a.log.With(logx.String("comp", "livechat"))))
		case "schedule":
			if err := a.sched.Apply(mapScheduleConfig(cfg)); err != nil {
				a.log.Warn("some announcements were not scheduled", logx.Err(err))
			}
		case "http":
			if err := a.http.Apply(ctx, mapHTTPConfig(cfg)); err != nil {
				a.log.Warn("http api reconfigure failed", logx.Err(err))
			}
		case "storage", "telegram":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}
}

func (a *App) notifyStatus() {
	state := "idle"
	if a.disp.Running() {
		state = "dispatching"
	}
	_, _ = systemd.Status(fmt.Sprintf("%s, %d pending", state, a.disp.Pending()))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	// step runs one shutdown step bounded by max and the caller's deadline.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Surfaces first so no new work arrives, then let the worker finish its
	// in-flight delivery before the shared context is canceled.
	step("http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("telegram", 2*time.Second, func(c context.Context) error {
		if a.bot != nil {
			return a.bot.Stop(c)
		}
		return nil
	})
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("dispatch", 3*time.Second, func(c context.Context) error {
		a.disp.Stop()
		return a.disp.Wait(c)
	})

	a.sup.Cancel()
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.bus.Close()
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Int("pending_dropped", a.disp.Pending()))
	_ = a.logs.Close()
	return nil
}
