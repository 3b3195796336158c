// Package automation abstracts the object-automation protocol used to drive
// the slide-presentation editor.
//
// The package defines narrow remote-object seams (Application,
// DocumentWindow, Slide, Selection), a hand-declared event interface
// descriptor with explicit dispatch ids, and an event sink that never lets a
// failure propagate back into protocol dispatch. All calls through these
// interfaces are synchronous remote calls and must only be made from the
// worker's apartment thread.
//
// The live binding (com_windows.go) talks to the real editor; the scripted
// fake (fake.go) backs tests and simulate mode.
package automation

import (
	"errors"
	"time"
)

// Editor view types, as exposed by the editor's window view property.
// The comment pane only exists in Normal view.
const (
	ViewNormal      = 9
	ViewSlideSorter = 5
	ViewNotes       = 10
	ViewOutline     = 6
	ViewSlideMaster = 3
	ViewReading     = 50
)

// Errors reported by connectors and remote objects.
var (
	// ErrNotRunning indicates no running editor instance was found.
	ErrNotRunning = errors.New("automation: target application not running")

	// ErrUnavailable indicates the protocol is not available on this platform.
	ErrUnavailable = errors.New("automation: protocol unavailable on this platform")

	// ErrRemoteCall indicates a remote call into the editor failed.
	ErrRemoteCall = errors.New("automation: remote call failed")

	// ErrWindowClosed indicates the window behind a handle is gone.
	ErrWindowClosed = errors.New("automation: window closed")
)

// Status is a comment thread's resolution status.
type Status int

const (
	// StatusUnknown means the status could not be determined. The primary
	// automation interface never exposes status, so records sourced from it
	// always start Unknown.
	StatusUnknown Status = iota
	// StatusActive means the thread is open.
	StatusActive
	// StatusResolved means the thread was marked resolved.
	StatusResolved
	// StatusClosed means the thread was closed.
	StatusClosed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusResolved:
		return "resolved"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParseStatus maps a saved-file status attribute to a Status. Unrecognized
// values degrade to Unknown, never to a guess.
func ParseStatus(s string) Status {
	switch s {
	case "active":
		return StatusActive
	case "resolved":
		return StatusResolved
	case "closed":
		return StatusClosed
	default:
		return StatusUnknown
	}
}

// CommentRecord is one comment thread as read from the primary automation
// interface. Status stays Unknown on this path; the resolution resolver
// merges it in from the saved file when it can correlate.
type CommentRecord struct {
	Author     string
	Text       string
	Created    time.Time
	Replies    []CommentRecord
	Status     Status
	SlideIndex int
}

// Application is the root automation object of a running editor instance.
type Application interface {
	// Name returns the editor's self-reported name. Cheap; used as a
	// liveness probe when event delivery looks stalled.
	Name() (string, error)

	// Windows lists the open document windows.
	Windows() ([]DocumentWindow, error)

	// ActiveWindow returns the editor's notion of its active window. This
	// accessor can lag the actual event source during rapid window
	// switching; it is the resolver's last resort, never its first choice.
	ActiveWindow() (DocumentWindow, error)
}

// DocumentWindow is one open document window.
type DocumentWindow interface {
	// PresentationName identifies the document (title or file name).
	PresentationName() (string, error)

	// FilePath returns the saved document path, or "" if never saved.
	FilePath() (string, error)

	// HandleID returns the raw platform window handle.
	HandleID() uintptr

	// Active reports whether the editor flags this window active.
	Active() (bool, error)

	// ViewType returns the current view type (ViewNormal etc).
	ViewType() (int, error)

	// SetViewType switches the window's view.
	SetViewType(view int) error

	// CurrentSlideIndex returns the 1-based index of the displayed slide.
	CurrentSlideIndex() (int, error)

	// GoToSlide moves the window to the given 1-based slide index.
	GoToSlide(index int) error

	// SlideCount returns the number of slides in the document.
	SlideCount() (int, error)

	// Slide returns the slide at the given 1-based index.
	Slide(index int) (Slide, error)
}

// Slide is one slide of an open document.
type Slide interface {
	// Index returns the slide's 1-based index.
	Index() int

	// Comments returns the slide's comment threads, replies nested.
	Comments() ([]CommentRecord, error)

	// NotesText returns the slide's speaker notes, or "" if none.
	NotesText() (string, error)
}

// Selection is an event payload's current-selection handle.
type Selection interface {
	// Window returns the window that owns the selection. This is the only
	// window attribution immune to the active-window race.
	Window() (DocumentWindow, error)

	// SlideIndex returns the selection's 1-based slide index, or 0 if the
	// selection is not positioned on a slide.
	SlideIndex() (int, error)
}

// Subscription is a live event registration. It must stay referenced for
// the worker's entire lifetime: releasing it early silently and permanently
// ends event delivery. Close exactly once, on shutdown.
type Subscription interface {
	Close() error
}

// Connector binds to the protocol on the calling thread. All methods must
// be called from the same OS thread; the worker locks one for this.
type Connector interface {
	// Attach locates the running editor and registers the sink against its
	// event source. Idempotent from the worker's perspective: safe to retry
	// every cycle while unattached. Returns ErrNotRunning when no instance
	// is up.
	Attach(sink *Sink) (Application, Subscription, error)

	// Pump delivers pending protocol callbacks, waiting at most the given
	// duration. This is the worker loop's only intentional wait.
	Pump(timeout time.Duration)

	// Shutdown tears down the apartment. The subscription must already be
	// closed.
	Shutdown() error
}
