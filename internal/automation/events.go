package automation

import (
	"log/slog"
	"time"
)

// EventKind identifies one declared editor event.
type EventKind int

const (
	// EventSelectionChanged fires when the selection moves, including slide
	// changes in Normal view.
	EventSelectionChanged EventKind = iota
	// EventSlideShowBegin fires when a slide show starts. The first slide
	// of a run never gets a next-slide event, so state must be seeded here.
	EventSlideShowBegin
	// EventSlideShowNext fires on slide transitions after the first.
	EventSlideShowNext
	// EventSlideShowEnd fires when a slide show ends.
	EventSlideShowEnd
	// EventPresentationSaved fires after the editor finishes saving a
	// document. Drives the Tier-2 saved-file re-read.
	EventPresentationSaved
)

// Dispatch ids for the subset of the vendor's event interface we consume.
// Hand-declared: loading the vendor's full type descriptor is unreliable
// across installations, so the descriptor is versioned here instead.
const (
	DispidWindowSelectionChange = 2001
	DispidPresentationSave      = 2005
	DispidSlideShowBegin        = 2011
	DispidSlideShowNextSlide    = 2013
	DispidSlideShowEnd          = 2014
)

// KindForDispid maps a wire-level dispatch id to an EventKind.
func KindForDispid(dispid int) (EventKind, bool) {
	switch dispid {
	case DispidWindowSelectionChange:
		return EventSelectionChanged, true
	case DispidPresentationSave:
		return EventPresentationSaved, true
	case DispidSlideShowBegin:
		return EventSlideShowBegin, true
	case DispidSlideShowNextSlide:
		return EventSlideShowNext, true
	case DispidSlideShowEnd:
		return EventSlideShowEnd, true
	default:
		return 0, false
	}
}

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventSelectionChanged:
		return "selection-changed"
	case EventSlideShowBegin:
		return "slideshow-begin"
	case EventSlideShowNext:
		return "slideshow-next"
	case EventSlideShowEnd:
		return "slideshow-end"
	case EventPresentationSaved:
		return "presentation-saved"
	default:
		return "unknown"
	}
}

// Event is one delivered editor event.
type Event struct {
	Kind EventKind

	// Selection is the payload's current-selection handle, when the event
	// carries one (selection and slide-show events).
	Selection Selection

	// SlideIndex is the 1-based slide index for slide-show events, 0 when
	// the event does not carry one.
	SlideIndex int

	// SavedPath is the saved file path for presentation-saved events.
	SavedPath string

	// Time is when the sink received the event.
	Time time.Time
}

// Handler processes one delivered event. Handlers run synchronously on the
// apartment thread and must do minimal work: resolve the window, schedule
// the cache update, return.
type Handler func(Event)

// Sink receives raw protocol callbacks and dispatches them to registered
// handlers by event kind. A handler failure is caught and logged, never
// propagated into protocol dispatch: an escaped failure there can silently
// disable future event delivery.
type Sink struct {
	handlers map[EventKind]Handler
	log      *slog.Logger
}

// NewSink creates an empty sink.
func NewSink(log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{
		handlers: make(map[EventKind]Handler),
		log:      log,
	}
}

// On registers the handler for an event kind, replacing any previous one.
func (s *Sink) On(kind EventKind, h Handler) {
	s.handlers[kind] = h
}

// Deliver dispatches one event. Unregistered kinds are dropped silently;
// handler panics are recovered and logged.
func (s *Sink) Deliver(ev Event) {
	h, ok := s.handlers[ev.Kind]
	if !ok {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("event handler panicked",
				"event", ev.Kind.String(),
				"panic", r)
		}
	}()
	h(ev)
}

// DeliverDispid dispatches a wire-level callback by dispatch id. Unknown
// dispatch ids are dropped: the descriptor only declares what we consume.
func (s *Sink) DeliverDispid(dispid int, ev Event) {
	kind, ok := KindForDispid(dispid)
	if !ok {
		s.log.Debug("undeclared dispatch id", "dispid", dispid)
		return
	}
	ev.Kind = kind
	s.Deliver(ev)
}
