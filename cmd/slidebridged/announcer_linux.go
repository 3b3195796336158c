//go:build linux

package main

import (
	"log/slog"

	"slidebridge/internal/host"
)

// newPlatformAnnouncer prefers desktop notifications over the session
// bus; a missing bus degrades to log-only announcements.
func newPlatformAnnouncer(log *slog.Logger) (host.Announcer, func() error) {
	notifier, err := host.NewNotifyAnnouncer(log)
	if err != nil {
		log.Warn("desktop notifications unavailable, announcing to log only", "error", err)
		return host.NewLogAnnouncer(log), func() error { return nil }
	}
	return notifier, notifier.Close
}
