// Package systemd speaks the sd_notify protocol so the bot can run as a
// Type=notify unit with WatchdogSec. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "wovbot/pkg/logx"
)

type Config struct {
	Notify   bool
	Watchdog bool
}

type Notifier struct {
	cfg Config
	log logx.Logger

	// sd is daemon.SdNotify; swapped in tests.
	sd func(unsetEnv bool, state string) (bool, error)
	// watchdog is daemon.SdWatchdogEnabled; swapped in tests.
	watchdog func(unsetEnv bool) (time.Duration, error)
}

func New(cfg Config, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{cfg: cfg, log: log, sd: daemon.SdNotify, watchdog: daemon.SdWatchdogEnabled}
}

func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

func (n *Notifier) Reloading() { n.send(daemon.SdNotifyReloading) }

func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) {
	n.send("STATUS=" + fmt.Sprintf(format, args...))
}

func (n *Notifier) send(state string) bool {
	if !n.cfg.Notify {
		return false
	}
	ok, err := n.sd(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	if ok {
		n.log.Debug("sd_notify sent", logx.String("state", state))
	}
	return ok
}

// RunWatchdog pings the systemd watchdog at half the configured interval
// until ctx is done. It returns at once when the unit has no watchdog.
func (n *Notifier) RunWatchdog(ctx context.Context) error {
	if !n.cfg.Notify || !n.cfg.Watchdog {
		return nil
	}
	every, err := n.watchdog(false)
	if err != nil {
		return fmt.Errorf("watchdog: %w", err)
	}
	if every <= 0 {
		n.log.Debug("watchdog not enabled for this unit")
		return nil
	}
	every /= 2
	n.log.Info("watchdog enabled", logx.Duration("ping_every", every))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
