package app

import (
	"context"
	"time"

	"roomcast/internal/dispatch"
	"roomcast/internal/storage"
	"roomcast/internal/transport"
	logx "roomcast/pkg/logx"
)

var _ transport.Controller = (*App)(nil)

// runContext bounds worker loops; it ends with the app.
func (a *App) runContext() context.Context {
	if a.sup == nil {
		return context.Background()
	}
	return a.sup.Context()
}

func (a *App) StartDispatch(o transport.RoomOverrides) (dispatch.Room, error) {
	room := o.Apply(roomFromConfig(a.cfgm.Get()))
	if err := a.disp.Start(a.runContext(), room); err != nil {
		return room, err
	}
	a.notifyStatus()
	return room, nil
}

func (a *App) StopDispatch() {
	a.disp.Stop()
	a.notifyStatus()
}

func (a *App) Notify(text string) int {
	n := a.disp.Notify(text)
	if n == 0 {
		a.log.Debug("empty message ignored")
	}
	return n
}

func (a *App) Status() transport.Status {
	st := transport.Status{
		Running:       a.disp.Running(),
		Pending:       a.disp.Pending(),
		Announcements: a.sched.Entries(),
	}
	if room, ok := a.disp.Room(); ok {
		st.Room = room.ID
		st.DelaySeconds = room.DelaySeconds
	}
	if a.sup != nil {
		st.Workers = a.sup.Snapshot()
	}
	if !a.startedAt.IsZero() {
		st.Uptime = transport.FormatUptime(time.Since(a.startedAt))
	}
	return st
}

func (a *App) RecentOutcomes(ctx context.Context, limit int) ([]storage.OutcomeRecord, error) {
	if a.store == nil {
		return nil, transport.ErrNoHistory
	}
	return a.store.RecentOutcomes(ctx, limit)
}

func (a *App) TriggerAnnouncement(name string) bool {
	ok := a.sched.Trigger(name)
	if ok {
		a.log.Info("announcement triggered manually", logx.String("name", name))
	}
	return ok
}
