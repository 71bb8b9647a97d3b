package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Validate reports every problem in cfg at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	var err error

	if cfg.Room.DelaySeconds < 0 {
		err = multierror.Append(err, fmt.Errorf("room.delay_seconds must be >= 0"))
	}
	if cfg.Room.Autostart && strings.TrimSpace(cfg.Room.ID) == "" {
		err = multierror.Append(err, fmt.Errorf("room.id is required when room.autostart is true"))
	}

	if ep := strings.TrimSpace(cfg.Delivery.Endpoint); ep != "" {
		if u, e := url.Parse(ep); e != nil || u.Scheme == "" || u.Host == "" {
			err = multierror.Append(err, fmt.Errorf("delivery.endpoint: invalid URL %q", ep))
		}
	}
	if _, e := ParseDurationField("delivery.timeout", cfg.Delivery.Timeout); e != nil {
		err = multierror.Append(err, e)
	}
	if cfg.Delivery.RatePerSec < 0 {
		err = multierror.Append(err, fmt.Errorf("delivery.rate_per_sec must be >= 0"))
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				err = multierror.Append(err, fmt.Errorf("storage.path is required for driver %q", st.Driver))
			}
		default:
			err = multierror.Append(err, fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
		if _, e := ParseDurationField("storage.busy_timeout", st.BusyTimeout); e != nil {
			err = multierror.Append(err, e)
		}
	}

	if sc := cfg.Schedule; sc != nil {
		if tz := strings.TrimSpace(sc.Timezone); tz != "" {
			if _, e := time.LoadLocation(tz); e != nil {
				err = multierror.Append(err, fmt.Errorf("schedule.timezone: invalid %q: %w", tz, e))
			}
		}
		seen := map[string]bool{}
		for i, a := range sc.Announcements {
			name := strings.TrimSpace(a.Name)
			if name == "" {
				err = multierror.Append(err, fmt.Errorf("schedule.announcements[%d].name is required", i))
			} else if seen[name] {
				err = multierror.Append(err, fmt.Errorf("schedule.announcements[%d]: duplicate name %q", i, name))
			}
			seen[name] = true
			if strings.TrimSpace(a.Spec) == "" {
				err = multierror.Append(err, fmt.Errorf("schedule.announcements[%d].spec is required", i))
			}
			if strings.TrimSpace(a.Text) == "" {
				err = multierror.Append(err, fmt.Errorf("schedule.announcements[%d].text is required", i))
			}
		}
	}

	if tg := cfg.Telegram; tg != nil && tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			err = multierror.Append(err, fmt.Errorf("telegram.token is required when telegram.enabled is true"))
		}
		if len(tg.OwnerUserIDs) == 0 {
			err = multierror.Append(err, fmt.Errorf("telegram.owner_user_ids must not be empty"))
		}
		if _, e := ParseDurationField("telegram.poll_timeout", tg.PollTimeout); e != nil {
			err = multierror.Append(err, e)
		}
	}
	if cfg.Logging.Chat.Enabled && (cfg.Telegram == nil || !cfg.Telegram.Enabled) {
		err = multierror.Append(err, fmt.Errorf("logging.chat requires telegram.enabled"))
	}
	return err
}
