package app

import (
	"strings"

	"roomcast/internal/config"
	"roomcast/internal/dispatch"
	"roomcast/internal/livechat"
	"roomcast/internal/schedule"
	"roomcast/internal/storage"
	"roomcast/internal/transport/httpapi"
	"roomcast/internal/transport/telegram"
	logx "roomcast/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool) {
	if cfg.Storage == nil {
		return storage.Config{}, false
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: cfg.Storage.BusyTimeoutOrDefault(),
	}, true
}

func mapScheduleConfig(cfg *config.Config) schedule.Config {
	if cfg.Schedule == nil {
		return schedule.Config{}
	}
	out := schedule.Config{
		Enabled:       cfg.Schedule.Enabled,
		Timezone:      cfg.Schedule.Timezone,
		Announcements: make([]schedule.Announcement, 0, len(cfg.Schedule.Announcements)),
	}
	for _, a := range cfg.Schedule.Announcements {
		out.Announcements = append(out.Announcements, schedule.Announcement{
			Name: strings.TrimSpace(a.Name),
			Spec: a.Spec,
			Text: a.Text,
		})
	}
	return out
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	if cfg.HTTP == nil {
		return httpapi.Config{}
	}
	return httpapi.Config{
		Enabled: cfg.HTTP.Enabled,
		Addr:    cfg.HTTP.AddrOrDefault(),
		Token:   cfg.HTTP.Token,
		Pprof:   cfg.HTTP.Pprof,
	}
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, bool) {
	tg := cfg.Telegram
	if tg == nil || !tg.Enabled {
		return telegram.Config{}, false
	}
	return telegram.Config{
		Token:         tg.Token,
		OwnerUserIDs:  tg.OwnerUserIDs,
		NotifyChatID:  tg.NotifyChatID,
		PollTimeout:   tg.PollTimeoutOrDefault(),
		NotifySuccess: tg.NotifySuccess,
	}, true
}

func notifyChatID(cfg *config.Config) int64 {
	if cfg.Telegram == nil {
		return 0
	}
	return cfg.Telegram.NotifyChatID
}

// roomFromConfig is the default room for StartDispatch and autostart.
func roomFromConfig(cfg *config.Config) dispatch.Room {
	return dispatch.Room{
		ID:           strings.TrimSpace(cfg.Room.ID),
		Cookie:       cfg.Room.Cookie,
		CSRF:         cfg.Room.CSRF,
		DelaySeconds: cfg.Room.DelaySeconds,
	}
}

func newLiveChat(cfg *config.Config, log logx.Logger) *livechat.Client {
	return livechat.New(
		livechat.WithEndpoint(cfg.Delivery.EndpointOrDefault()),
		livechat.WithTimeout(cfg.Delivery.DeliveryTimeout()),
		livechat.WithUserAgent(cfg.Delivery.UserAgent),
		livechat.WithRateLimit(cfg.Delivery.RatePerSec),
		livechat.WithLogger(log),
	)
}
