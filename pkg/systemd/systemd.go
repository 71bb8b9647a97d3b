// Package systemd reports service state to systemd through sd_notify. All
// calls are no-ops when the process is not run by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready reports READY=1. sent is false when NOTIFY_SOCKET is unset.
func Ready() (sent bool, err error) {
	return daemon.SdNotify(false, daemon.SdNotifyReady)
}

// Stopping reports STOPPING=1.
func Stopping() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func Status(text string) (bool, error) {
	return daemon.SdNotify(false, "STATUS="+text)
}

// WatchdogInterval returns the ping interval requested by the unit
// (half of WatchdogSec), or 0 when the watchdog is off.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings WATCHDOG=1 every interval until ctx ends. healthy gates
// each ping; nil means always healthy.
func Watchdog(ctx context.Context, interval time.Duration, healthy func() bool) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if healthy == nil || healthy() {
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}
}
