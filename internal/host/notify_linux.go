//go:build linux

package host

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// Desktop notification constants.
const (
	notifyService   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications"
	notifyMethod    = notifyInterface + ".Notify"
	notifyAppName   = "slidebridge"

	// notifyExpireMs is how long a notification stays up. Screen readers
	// speak it on arrival; lingering visuals only add clutter.
	notifyExpireMs = int32(4000)
)

// NotifyAnnouncer delivers announcements as desktop notifications over the
// session bus, where assistive technologies listening on
// org.freedesktop.Notifications speak them aloud.
type NotifyAnnouncer struct {
	conn *dbus.Conn
	log  *slog.Logger

	// replacesID collapses rapid announcements into one notification slot
	// so slide-by-slide navigation does not stack a card per slide.
	replacesID uint32
}

// NewNotifyAnnouncer connects to the session bus. The returned announcer
// owns the connection; Close releases it.
func NewNotifyAnnouncer(log *slog.Logger) (*NotifyAnnouncer, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &NotifyAnnouncer{conn: conn, log: log}, nil
}

// Announce sends one notification. Delivery failures are logged and
// swallowed; an announcement is never worth failing an operation for.
func (a *NotifyAnnouncer) Announce(text string) {
	obj := a.conn.Object(notifyService, dbus.ObjectPath(notifyPath))
	call := obj.Call(notifyMethod, 0,
		notifyAppName,
		a.replacesID,
		"",   // app_icon
		text, // summary
		"",   // body
		[]string{},
		map[string]dbus.Variant{},
		notifyExpireMs,
	)
	if call.Err != nil {
		a.log.Warn("notification delivery failed", "error", call.Err)
		return
	}
	if err := call.Store(&a.replacesID); err != nil {
		a.log.Debug("notification id unreadable", "error", err)
	}
}

// Close releases the bus connection.
func (a *NotifyAnnouncer) Close() error {
	return a.conn.Close()
}
