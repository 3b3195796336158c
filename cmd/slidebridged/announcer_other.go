//go:build !linux

package main

import (
	"log/slog"

	"slidebridge/internal/host"
)

// newPlatformAnnouncer announces to the structured log. Screen-reading
// hosts on this platform consume the log stream or the control socket.
func newPlatformAnnouncer(log *slog.Logger) (host.Announcer, func() error) {
	return host.NewLogAnnouncer(log), func() error { return nil }
}
