// Package sdnotify is a thin veneer over systemd's notify socket. All calls
// are no-ops when the daemon is not running under systemd (NOTIFY_SOCKET
// unset), so callers never have to branch on the environment.
package sdnotify

import (
	"context"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd the daemon finished starting up.
func Ready() { _, _ = sd.SdNotify(false, sd.SdNotifyReady) }

// Stopping tells systemd the daemon began its shutdown.
func Stopping() { _, _ = sd.SdNotify(false, sd.SdNotifyStopping) }

// WatchdogInterval returns the pet interval to use when systemd's watchdog
// is armed (half the configured WatchdogSec), or 0 when it is not.
func WatchdogInterval() time.Duration {
	d, err := sd.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// RunWatchdog pets the watchdog until ctx is done. It returns immediately
// when no watchdog is configured.
func RunWatchdog(ctx context.Context) {
	interval := WatchdogInterval()
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
			_, _ = sd.SdNotify(false, sd.SdNotifyWatchdog)
		}
	}
}
