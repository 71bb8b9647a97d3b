package telegram

import (
	"context"

	"roomcast/internal/dispatch"
	"roomcast/internal/eventbus"
	logx "roomcast/pkg/logx"
)

// RelayOutcomes forwards message_sent events from events to the notify
// chat until ctx ends or events is closed. Successes are only relayed when
// NotifySuccess is set.
func (b *Bot) RelayOutcomes(ctx context.Context, events <-chan eventbus.Event) {
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
			if o.Success && !b.cfg.NotifySuccess {
				continue
			}
			if b.cfg.NotifyChatID == 0 {
				continue
			}
			text := formatResult(o.Success, o.Message, o.Error)
			if o.Room != "" {
				text = "[" + o.Room + "] " + text
			}
			if err := b.send(ctx, b.cfg.NotifyChatID, text); err != nil {
				b.log.Warn("outcome relay failed", logx.Err(err), logx.String("id", o.ID))
			}
		}
	}
}
