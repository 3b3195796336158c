//go:build !windows

package automation

import "log/slog"

// NewLive is unavailable off Windows: the live protocol binding requires
// the platform's object-automation runtime. Simulate mode still works.
func NewLive(progID string, log *slog.Logger) (Connector, error) {
	_ = progID
	_ = log
	return nil, ErrUnavailable
}
