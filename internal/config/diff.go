package config

import (
	"reflect"
	"strings"

	logx "roomcast/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections plus safe
// attrs for logging. Secrets (cookie, csrf, tokens) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}
	if oldCfg.Room != newCfg.Room {
		changed = append(changed, "room")
		attrs = append(attrs,
			logx.String("room.id", newCfg.Room.ID),
			logx.Int("room.delay_seconds", newCfg.Room.DelaySeconds),
			logx.Bool("room.cookie_set", strings.TrimSpace(newCfg.Room.Cookie) != ""),
		)
	}
	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, "delivery")
		attrs = append(attrs, logx.String("delivery.endpoint", newCfg.Delivery.Endpoint))
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		changed = append(changed, "schedule")
		if newCfg.Schedule != nil {
			attrs = append(attrs, logx.Int("schedule.announcements", len(newCfg.Schedule.Announcements)))
		}
	}
	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
	}
	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
	}
	return changed, attrs
}
