package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// DefaultRecentLimit caps RecentOutcomes when limit <= 0.
const DefaultRecentLimit = 50

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// OutcomeRecord is one delivery outcome as stored.
// Keep it compact and schema-stable.
type OutcomeRecord struct {
	At      time.Time `json:"at"`
	ID      string    `json:"id,omitempty"`
	Room    string    `json:"room,omitempty"`
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
}
