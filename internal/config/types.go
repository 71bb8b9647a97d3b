package config

// Config is the whole roomcast config file (JSON or YAML).
type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	Room     RoomConfig      `json:"room"`
	Delivery DeliveryConfig  `json:"delivery"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Schedule *ScheduleConfig `json:"schedule,omitempty"`
	HTTP     *HTTPConfig     `json:"http,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards warnings to telegram.notify_chat_id.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RoomConfig is the default delivery context used by autostart and by
// control surfaces that start dispatch without explicit parameters.
//
// Cookie and CSRF are secrets; they are never logged.
type RoomConfig struct {
	ID           string `json:"id"`
	Cookie       string `json:"cookie"`
	CSRF         string `json:"csrf"`
	DelaySeconds int    `json:"delay_seconds"`
	Autostart    bool   `json:"autostart,omitempty"`
}

// DeliveryConfig configures the live chat HTTP client.
//
// Defaults (when fields are omitted/zero):
//   - endpoint: "https://api.live.bilibili.com"
//   - timeout: "60s"
//   - rate_per_sec: 0 (no client-side limiter)
//   - max_message_len: 20 (negative disables splitting)
type DeliveryConfig struct {
	Endpoint      string  `json:"endpoint,omitempty"`
	Timeout       string  `json:"timeout,omitempty"`
	UserAgent     string  `json:"user_agent,omitempty"`
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
	MaxMessageLen int     `json:"max_message_len,omitempty"`
}

// StorageConfig controls the optional outcome history.
//
// Example:
//
//	storage: { driver: sqlite, path: ./data/roomcast.db }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ScheduleConfig enqueues announcement text on cron or interval schedules.
type ScheduleConfig struct {
	Enabled       bool           `json:"enabled"`
	Timezone      string         `json:"timezone,omitempty"`
	Announcements []Announcement `json:"announcements,omitempty"`
}

type Announcement struct {
	Name string `json:"name"`
	// Spec is a cron expression ("*/30 * * * *", "@hourly") or an interval
	// ("55m", "01:30", "every:10m").
	Spec string `json:"spec"`
	Text string `json:"text"`
}

// HTTPConfig controls the HTTP control API.
//
// Prefer binding to localhost; the API can start dispatch with stored
// credentials. Token, when set, is required as a bearer token.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8787"
	Token   string `json:"token,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}

type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// NotifyChatID receives delivery outcomes and forwarded logs.
	NotifyChatID int64 `json:"notify_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// NotifySuccess also relays successful deliveries (failures always are).
	NotifySuccess bool `json:"notify_success,omitempty"`
}
