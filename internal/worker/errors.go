package worker

import "errors"

// Failure kinds crossing the worker boundary. Everything the automation
// protocol or the tree search throws is caught at the sink and loop
// boundaries and classified as one of these; nothing escapes to kill the
// worker goroutine, since a dead worker permanently silences the whole
// subsystem.
var (
	// ErrNotAttached means the target editor is unreachable. Retried
	// silently every cycle; surfaced only when an explicit action needs
	// the attachment.
	ErrNotAttached = errors.New("worker: not attached to editor")

	// ErrWindowAmbiguous means the window resolver fell through every
	// fallback. Logged; processing continues on the best guess.
	ErrWindowAmbiguous = errors.New("worker: originating window ambiguous")

	// ErrSubscriptionLost means event delivery silently stopped, detected
	// via the staleness probe. Triggers a full re-attach.
	ErrSubscriptionLost = errors.New("worker: event subscription lost")

	// ErrResolutionUnavailable means no resolution tier could run; comment
	// status is surfaced as an explicit unknown, not an error.
	ErrResolutionUnavailable = errors.New("worker: resolution status unavailable")

	// ErrFocusNotFound means the tree search failed after its retry. A
	// user-initiated action, so it surfaces as a visible failure.
	ErrFocusNotFound = errors.New("worker: comment focus target not found")
)

// kindName maps a classified error to the wire name carried on RespError.
func kindName(err error) string {
	switch {
	case errors.Is(err, ErrNotAttached):
		return "not-attached"
	case errors.Is(err, ErrWindowAmbiguous):
		return "window-ambiguous"
	case errors.Is(err, ErrSubscriptionLost):
		return "subscription-lost"
	case errors.Is(err, ErrResolutionUnavailable):
		return "resolution-unavailable"
	case errors.Is(err, ErrFocusNotFound):
		return "focus-not-found"
	default:
		return "internal"
	}
}
