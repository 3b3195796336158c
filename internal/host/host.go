// Package host is the surface toward the screen-reading host: outbound
// announcements and the host's view of input focus.
//
// Announcements are fire and forget. The worker hands text to an Announcer
// and moves on; nothing here may block the caller, and a slow or absent
// backend costs announcements, never responsiveness.
package host

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultQueueDepth is the announcement queue depth used when the caller
// does not configure one. When the queue is full the oldest entry is
// dropped: a stale announcement read late is worse than one never read.
const DefaultQueueDepth = 64

// Announcer delivers one line of text to the screen-reading host.
type Announcer interface {
	// Announce queues text for delivery. It never blocks.
	Announce(text string)
}

// FocusInfo is the host's snapshot of where input focus sits.
type FocusInfo struct {
	// Application is the focused application's name, empty when unknown.
	Application string

	// Window is the focused window's title, empty when unknown.
	Window string

	// Time is when the snapshot was taken.
	Time time.Time
}

// FocusSource reports the host's current input focus.
type FocusSource interface {
	CurrentFocus() FocusInfo
}

// LogAnnouncer writes announcements to the structured log. It is the
// always-available backend and the default in simulate mode.
type LogAnnouncer struct {
	log *slog.Logger
}

// NewLogAnnouncer creates a LogAnnouncer on the given logger.
func NewLogAnnouncer(log *slog.Logger) *LogAnnouncer {
	if log == nil {
		log = slog.Default()
	}
	return &LogAnnouncer{log: log}
}

// Announce logs the text at info level.
func (a *LogAnnouncer) Announce(text string) {
	a.log.Info("announce", "text", text)
}

// QueueAnnouncer records announcements in memory for inspection. Test
// backend.
type QueueAnnouncer struct {
	mu    sync.Mutex
	texts []string
}

// Announce appends the text to the in-memory record.
func (a *QueueAnnouncer) Announce(text string) {
	a.mu.Lock()
	a.texts = append(a.texts, text)
	a.mu.Unlock()
}

// Texts returns a copy of everything announced so far.
func (a *QueueAnnouncer) Texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.texts))
	copy(out, a.texts)
	return out
}

// Len returns the number of announcements recorded.
func (a *QueueAnnouncer) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.texts)
}
