package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"roomcast/internal/dispatch"
	"roomcast/internal/transport"
)

type command struct {
	name string
	args string
	help string
	run  func(b *Bot, ctx context.Context, args string) string
}

var commands = []command{
	{name: "dispatch_start", args: "[room_id] [delay_s]", help: "start sending queued messages", run: (*Bot).cmdStart},
	{name: "dispatch_stop", help: "stop after the current message", run: (*Bot).cmdStop},
	{name: "say", args: "<text>", help: "queue a message for the room", run: (*Bot).cmdSay},
	{name: "status", help: "show dispatcher state", run: (*Bot).cmdStatus},
	{name: "outcomes", args: "[n]", help: "show recent delivery outcomes", run: (*Bot).cmdOutcomes},
	{name: "announce", args: "<name>", help: "fire a scheduled announcement now", run: (*Bot).cmdAnnounce},
}

// parseCommand splits "/cmd@bot args" into ("cmd", "args").
func parseCommand(text string) (string, string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest), head != ""
}

// exec runs one owner command and returns the reply. Non-commands get no
// reply.
func (b *Bot) exec(ctx context.Context, text string) string {
	name, args, ok := parseCommand(text)
	if !ok {
		return ""
	}
	if name == "start" || name == "help" {
		return helpText()
	}
	for _, c := range commands {
		if c.name == name {
			return c.run(b, ctx, args)
		}
	}
	return "unknown command /" + name + "\n\n" + helpText()
}

func helpText() string {
	var sb strings.Builder
	sb.WriteString("commands:\n")
	for _, c := range commands {
		sb.WriteString("/" + c.name)
		if c.args != "" {
			sb.WriteString(" " + c.args)
		}
		sb.WriteString(" - " + c.help + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) cmdStart(ctx context.Context, args string) string {
	var o transport.RoomOverrides
	fields := strings.Fields(args)
	if len(fields) > 0 {
		o.ID = fields[0]
	}
	if len(fields) > 1 {
		d, err := strconv.Atoi(fields[1])
		if err != nil {
			return "delay must be a number of seconds"
		}
		o.DelaySeconds = &d
	}
	room, err := b.ctl.StartDispatch(o)
	switch {
	case errors.Is(err, dispatch.ErrAlreadyRunning):
		return "dispatch is already running"
	case err != nil:
		return "start failed: " + err.Error()
	}
	return fmt.Sprintf("dispatch started for room %s (delay %ds, %d pending)", room.ID, room.DelaySeconds, b.ctl.Status().Pending)
}

func (b *Bot) cmdStop(ctx context.Context, args string) string {
	st := b.ctl.Status()
	if !st.Running {
		return "dispatch is not running"
	}
	b.ctl.StopDispatch()
	return fmt.Sprintf("dispatch stopping (%d pending kept)", st.Pending)
}

func (b *Bot) cmdSay(ctx context.Context, args string) string {
	if args == "" {
		return "usage: /say <text>"
	}
	n := b.ctl.Notify(args)
	st := b.ctl.Status()
	reply := fmt.Sprintf("queued %d message(s), %d pending", n, st.Pending)
	if !st.Running {
		reply += " (dispatch not running)"
	}
	return reply
}

func (b *Bot) cmdStatus(ctx context.Context, args string) string {
	st := b.ctl.Status()
	state := "stopped"
	if st.Running {
		state = "running"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "dispatch: %s\npending: %d\n", state, st.Pending)
	if st.Room != "" {
		fmt.Fprintf(&sb, "room: %s (delay %ds)\n", st.Room, st.DelaySeconds)
	}
	fmt.Fprintf(&sb, "uptime: %s", st.Uptime)
	for _, a := range st.Announcements {
		fmt.Fprintf(&sb, "\nannouncement %s [%s] fired %d", a.Name, a.Spec, a.Fired)
	}
	for _, w := range st.Workers {
		if w.Restarts == 0 && w.Panics == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\nworker %s: %d restarts, %d panics", w.Name, w.Restarts, w.Panics)
		if w.LastErr != "" {
			fmt.Fprintf(&sb, " (last: %s)", w.LastErr)
		}
	}
	return sb.String()
}

func (b *Bot) cmdOutcomes(ctx context.Context, args string) string {
	limit := 10
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			return "usage: /outcomes [n]"
		}
		limit = min(n, 50)
	}
	recs, err := b.ctl.RecentOutcomes(ctx, limit)
	if errors.Is(err, transport.ErrNoHistory) {
		return "outcome history is disabled"
	}
	if err != nil {
		return "history unavailable: " + err.Error()
	}
	if len(recs) == 0 {
		return "no outcomes yet"
	}
	var sb strings.Builder
	for i, r := range recs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(r.At.Format("01-02 15:04:05") + " ")
		sb.WriteString(formatResult(r.Success, r.Message, r.Error))
	}
	return sb.String()
}

func (b *Bot) cmdAnnounce(ctx context.Context, args string) string {
	if args == "" {
		return "usage: /announce <name>"
	}
	if !b.ctl.TriggerAnnouncement(args) {
		return "unknown announcement " + args
	}
	return "announcement " + args + " queued"
}

func formatResult(success bool, msg, errText string) string {
	if success {
		return "sent: " + msg
	}
	return "failed: " + msg + " (" + errText + ")"
}
