// Package transport holds the contract shared by the operator control
// surfaces (HTTP API and Telegram bot).
package transport

import (
	"context"
	"errors"
	"strings"
	"time"

	"roomcast/internal/dispatch"
	"roomcast/internal/runtime/supervisor"
	"roomcast/internal/schedule"
	"roomcast/internal/storage"
)

// ErrNoHistory is returned by RecentOutcomes when storage is disabled.
var ErrNoHistory = errors.New("outcome history disabled")

// RoomOverrides are optional start parameters. Empty fields fall back to
// the configured room.
type RoomOverrides struct {
	ID           string `json:"room_id,omitempty"`
	Cookie       string `json:"cookie,omitempty"`
	CSRF         string `json:"csrf,omitempty"`
	DelaySeconds *int   `json:"delay,omitempty"`
}

// Apply merges o over base.
func (o RoomOverrides) Apply(base dispatch.Room) dispatch.Room {
	if s := strings.TrimSpace(o.ID); s != "" {
		base.ID = s
	}
	if o.Cookie != "" {
		base.Cookie = o.Cookie
	}
	if o.CSRF != "" {
		base.CSRF = o.CSRF
	}
	if o.DelaySeconds != nil {
		base.DelaySeconds = *o.DelaySeconds
	}
	return base
}

// Status is the dispatcher state reported to operators. It never carries
// credentials.
type Status struct {
	Running       bool               `json:"running"`
	Pending       int                `json:"pending"`
	Room          string             `json:"room,omitempty"`
	DelaySeconds  int                `json:"delay_seconds"`
	Uptime        string             `json:"uptime"`
	Announcements []schedule.Entry   `json:"announcements,omitempty"`
	Workers       []supervisor.Stats `json:"workers,omitempty"`
}

// Controller is what a control surface can do. The app implements it on
// top of a single dispatcher handle.
type Controller interface {
	// StartDispatch starts the worker with the configured room merged with o.
	// The worker outlives the caller's request.
	StartDispatch(o RoomOverrides) (dispatch.Room, error)
	StopDispatch()
	// Notify splits and enqueues text, returning the number of messages queued.
	Notify(text string) int
	Status() Status
	RecentOutcomes(ctx context.Context, limit int) ([]storage.OutcomeRecord, error)
	// TriggerAnnouncement fires a scheduled announcement now.
	TriggerAnnouncement(name string) bool
}

// FormatUptime renders d compactly, e.g. "3h4m5s".
func FormatUptime(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
