package ipc

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"slidebridge/internal/journal"
	"slidebridge/internal/worker"
)

// DefaultRequestTimeout bounds how long the bridge waits on the worker
// for one request. The IPC goroutine may wait; the worker never does.
const DefaultRequestTimeout = 10 * time.Second

// Bridge translates control-socket messages onto the worker's request
// channel and renders the worker's replies back onto the wire.
type Bridge struct {
	worker  *worker.Worker
	journal *journal.Journal
	version string
	started time.Time
	timeout time.Duration
	log     *slog.Logger

	// onShutdown is invoked after acknowledging a shutdown request.
	onShutdown func()

	// last holds the newest slide observation seen on the worker's
	// response channel, for status reads without waking the editor.
	mu       sync.Mutex
	last     worker.Response
	haveLast bool
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	Worker     *worker.Worker
	Journal    *journal.Journal
	Version    string
	OnShutdown func()
	Timeout    time.Duration
	Log        *slog.Logger
}

// NewBridge creates the daemon-side message handler.
func NewBridge(opts BridgeOptions) *Bridge {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		worker:     opts.Worker,
		journal:    opts.Journal,
		version:    opts.Version,
		started:    time.Now(),
		timeout:    timeout,
		log:        log,
		onShutdown: opts.OnShutdown,
	}
}

// Observe records a worker response for status reads. The daemon feeds
// every response from the worker's channel through here.
func (b *Bridge) Observe(resp worker.Response) {
	if resp.Kind != worker.RespSlideChanged {
		return
	}
	b.mu.Lock()
	b.last = resp
	b.haveLast = true
	b.mu.Unlock()
}

// HandleMessage implements Handler.
func (b *Bridge) HandleMessage(msg *Message) (*Message, error) {
	id := msg.Header.RequestID
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, id, nil), nil

	case MsgStatusRequest:
		return Marshal(MsgStatusResponse, id, b.status())

	case MsgNavigate:
		var p NavigatePayload
		if err := msg.Decode(&p); err != nil {
			return b.badRequest(id, err)
		}
		if p.Direction != 1 && p.Direction != -1 {
			return b.badRequest(id, fmt.Errorf("direction must be 1 or -1, got %d", p.Direction))
		}
		return b.slideRequest(id, MsgNavigateResp, worker.Request{
			Kind:      worker.ReqNavigateSlide,
			Direction: p.Direction,
		})

	case MsgRefresh:
		return b.slideRequest(id, MsgRefreshResp, worker.Request{
			Kind: worker.ReqRefreshStatus,
		})

	case MsgFocusComment:
		var p FocusPayload
		if err := msg.Decode(&p); err != nil {
			return b.badRequest(id, err)
		}
		resp, err := b.submit(worker.Request{Kind: worker.ReqFocusComment, Ordinal: p.Ordinal})
		if err != nil {
			return b.failure(id, "timeout", err)
		}
		if resp.Kind == worker.RespError {
			return Marshal(MsgError, id, ErrorPayload{Kind: resp.ErrKind, Message: resp.Message})
		}
		return Marshal(MsgFocusResp, id, FocusResultPayload{Status: resp.FocusStatus.String()})

	case MsgReadNotes:
		resp, err := b.submit(worker.Request{Kind: worker.ReqReadNotes})
		if err != nil {
			return b.failure(id, "timeout", err)
		}
		if resp.Kind == worker.RespError {
			return Marshal(MsgError, id, ErrorPayload{Kind: resp.ErrKind, Message: resp.Message})
		}
		return Marshal(MsgReadNotesResp, id, NotesPayload{Text: resp.Notes})

	case MsgRecentEvents:
		var p RecentEventsPayload
		if err := msg.Decode(&p); err != nil {
			return b.badRequest(id, err)
		}
		return b.recentEvents(id, p.Count)

	case MsgShutdown:
		b.log.Info("shutdown requested over control socket")
		if b.onShutdown != nil {
			// Acknowledge first; the teardown closes this connection.
			defer func() { go b.onShutdown() }()
		}
		return NewMessage(MsgShutdownAck, id, nil), nil

	default:
		return Marshal(MsgError, id, ErrorPayload{
			Kind:    "unsupported",
			Message: fmt.Sprintf("unsupported message type 0x%04x", uint16(msg.Header.Type)),
		})
	}
}

func (b *Bridge) status() StatusPayload {
	p := StatusPayload{
		Version:   b.version,
		Attached:  b.worker.Attached(),
		Freshness: "unknown",
		UptimeSec: int64(time.Since(b.started).Seconds()),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.haveLast {
		snap := b.last.Snapshot
		p.Presentation = b.last.Window.Presentation
		p.SlideIndex = snap.SlideIndex
		p.CommentCount = snap.CommentCount
		p.NotesPresent = snap.NotesPresent
		p.Active = snap.Resolution.Active
		p.Resolved = snap.Resolution.Resolved
		p.Closed = snap.Resolution.Closed
		p.Unknown = snap.Resolution.Unknown
		p.Freshness = snap.Freshness.String()
	}
	return p
}

// slideRequest runs one worker request that answers with a slide
// observation.
func (b *Bridge) slideRequest(id uint32, respType MessageType, req worker.Request) (*Message, error) {
	resp, err := b.submit(req)
	if err != nil {
		return b.failure(id, "timeout", err)
	}
	if resp.Kind == worker.RespError {
		return Marshal(MsgError, id, ErrorPayload{Kind: resp.ErrKind, Message: resp.Message})
	}
	b.Observe(resp)
	return Marshal(respType, id, SlidePayload{
		Presentation: resp.Window.Presentation,
		SlideIndex:   resp.Snapshot.SlideIndex,
		CommentCount: resp.Snapshot.CommentCount,
		NotesPresent: resp.Snapshot.NotesPresent,
		Freshness:    resp.Snapshot.Freshness.String(),
		Announcement: worker.FormatSlideAnnouncement(resp.Snapshot),
	})
}

// submit enqueues one request and waits, bounded, for its reply.
func (b *Bridge) submit(req worker.Request) (worker.Response, error) {
	req.Reply = make(chan worker.Response, 1)
	if !b.worker.Submit(req) {
		return worker.Response{}, fmt.Errorf("worker request queue full")
	}
	select {
	case resp := <-req.Reply:
		return resp, nil
	case <-time.After(b.timeout):
		return worker.Response{}, fmt.Errorf("no reply from worker within %s", b.timeout)
	}
}

func (b *Bridge) recentEvents(id uint32, count int) (*Message, error) {
	if b.journal == nil {
		return Marshal(MsgError, id, ErrorPayload{
			Kind:    "journal-disabled",
			Message: "the diagnostics journal is not enabled",
		})
	}
	if count <= 0 {
		count = 20
	}
	entries, err := b.journal.Recent(count)
	if err != nil {
		return b.failure(id, "internal", err)
	}
	out := RecentEventsRespPayload{Events: make([]JournalEventPayload, 0, len(entries))}
	for _, e := range entries {
		out.Events = append(out.Events, JournalEventPayload{
			Seq:         e.Seq,
			TimestampNs: e.Timestamp.UnixNano(),
			Kind:        e.Kind,
			Window:      e.Window,
			SlideIndex:  e.SlideIndex,
			Detail:      e.Detail,
		})
	}
	return Marshal(MsgRecentEventsResp, id, out)
}

func (b *Bridge) badRequest(id uint32, err error) (*Message, error) {
	return Marshal(MsgError, id, ErrorPayload{Kind: "bad-request", Message: err.Error()})
}

func (b *Bridge) failure(id uint32, kind string, err error) (*Message, error) {
	b.log.Warn("control request failed", "kind", kind, "error", err)
	return Marshal(MsgError, id, ErrorPayload{Kind: kind, Message: err.Error()})
}
