package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EventMessageSent is the topic of every delivery outcome.
const EventMessageSent = "message_sent"

// Message is a pending chat message.
type Message struct {
	ID         string
	Text       string
	EnqueuedAt time.Time
}

// Room is the delivery context supplied on Start.
type Room struct {
	ID     string
	Cookie string
	CSRF   string
	// DelaySeconds is waited after a message is dequeued and before it is sent.
	DelaySeconds int
}

func (r Room) Delay() time.Duration { return time.Duration(r.DelaySeconds) * time.Second }

func (r Room) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: room id is empty", ErrInvalidRoom)
	}
	if r.DelaySeconds < 0 {
		return fmt.Errorf("%w: delay must be >= 0 (got %d)", ErrInvalidRoom, r.DelaySeconds)
	}
	return nil
}

// Outcome is the payload of a message_sent event.
//
// Only Success, Message and Error are part of the wire payload; the remaining
// fields are for logs and history.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`

	ID   string    `json:"-"`
	Room string    `json:"-"`
	At   time.Time `json:"-"`
}

// Deliverer sends one message to a room. A nil error means success; a non-nil
// error's text is reported to the host as the failure description.
type Deliverer interface {
	Deliver(ctx context.Context, roomID, text, cookie, csrf string) error
}

type DelivererFunc func(ctx context.Context, roomID, text, cookie, csrf string) error

func (f DelivererFunc) Deliver(ctx context.Context, roomID, text, cookie, csrf string) error {
	return f(ctx, roomID, text, cookie, csrf)
}

// Sink receives outcomes. Emit may fail; the worker logs and carries on.
type Sink interface {
	Emit(o Outcome) error
}

type SinkFunc func(o Outcome) error

func (f SinkFunc) Emit(o Outcome) error { return f(o) }
