package worker

import (
	"slidebridge/internal/cache"
	"slidebridge/internal/focusnav"
)

// RequestKind selects the operation a Request asks for.
type RequestKind int

const (
	// ReqNavigateSlide moves the active window by Direction slides.
	ReqNavigateSlide RequestKind = iota
	// ReqFocusComment moves host focus to comment Ordinal on the current
	// slide.
	ReqFocusComment
	// ReqRefreshStatus re-observes the current slide and re-runs the
	// resolution read.
	ReqRefreshStatus
	// ReqReadNotes returns the current slide's speaker notes.
	ReqReadNotes
)

// String returns the request kind name.
func (k RequestKind) String() string {
	switch k {
	case ReqNavigateSlide:
		return "navigate-slide"
	case ReqFocusComment:
		return "focus-comment"
	case ReqRefreshStatus:
		return "refresh-status"
	case ReqReadNotes:
		return "read-notes"
	default:
		return "unknown"
	}
}

// Request is one immutable operation handed to the worker. Producers
// enqueue and return; they never wait inline.
type Request struct {
	Kind RequestKind

	// Direction is +1 (next) or -1 (previous) for ReqNavigateSlide.
	Direction int

	// Ordinal is the 1-based comment ordinal for ReqFocusComment.
	Ordinal int

	// Reply, when non-nil, receives this request's response. Must be
	// buffered: the worker sends without blocking and drops on a full
	// channel.
	Reply chan Response
}

// ResponseKind tags what a Response carries.
type ResponseKind int

const (
	// RespSlideChanged reports a new or re-observed slide snapshot.
	RespSlideChanged ResponseKind = iota
	// RespFocusResult reports the outcome of a focus-comment request.
	RespFocusResult
	// RespNotesText carries the current slide's speaker notes.
	RespNotesText
	// RespError reports a classified failure.
	RespError
)

// Response is one message from the worker. It carries a snapshot copy,
// never a live reference to worker-owned state.
type Response struct {
	Kind ResponseKind

	// Window identifies the document the response concerns.
	Window cache.WindowHandle

	// SlideIndex and Snapshot are set for RespSlideChanged.
	SlideIndex int
	Snapshot   cache.SlideSnapshot

	// FocusStatus is set for RespFocusResult.
	FocusStatus focusnav.Status

	// Notes is set for RespNotesText.
	Notes string

	// ErrKind and Message are set for RespError.
	ErrKind string
	Message string
}
