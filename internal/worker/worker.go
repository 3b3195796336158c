// Package worker runs the automation worker: the only code that ever
// issues calls into the editor's automation protocol.
//
// The protocol imposes a single-threaded apartment discipline, so the
// worker pins itself to one OS thread and everything protocol-facing
// (remote calls, event handling, the state cache) happens on that thread.
// Other goroutines talk to it only through immutable Request values on a
// buffered channel and receive only snapshot copies back.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"slidebridge/internal/automation"
	"slidebridge/internal/cache"
	"slidebridge/internal/config"
	"slidebridge/internal/focusnav"
	"slidebridge/internal/host"
	"slidebridge/internal/identity"
	"slidebridge/internal/journal"
	"slidebridge/internal/mention"
	"slidebridge/internal/resolution"
)

// ErrShutdownTimeout reports that the worker did not stop within the
// configured join bound, typically because the editor stopped servicing a
// remote call mid-flight.
var ErrShutdownTimeout = errors.New("worker: shutdown timed out")

// Options wires the worker's collaborators. Connector, Cache, and
// Announcer are required; the rest degrade gracefully when nil.
type Options struct {
	Config    *config.Config
	Connector automation.Connector
	Cache     *cache.Cache

	// Resolver reads comment status from the saved file; nil disables
	// resolution (everything reports unknown).
	Resolver *resolution.Resolver

	// Watcher re-reads decks after on-disk saves; nil disables the
	// save-watching tier.
	Watcher *resolution.SaveWatcher

	// Navigator moves host focus to comment cards; nil makes
	// focus-comment requests fail visibly.
	Navigator *focusnav.Navigator

	// Roster holds the current user's identities for @mention matching;
	// nil disables mention announcements.
	Roster *identity.Roster

	Announcer host.Announcer

	// Journal records events for diagnostics; nil disables journaling.
	Journal *journal.Journal

	Log *slog.Logger
}

// Worker owns the apartment thread, the live attachment, and the state
// cache. All fields below the channels are touched only on the worker
// goroutine.
type Worker struct {
	cfg       *config.Config
	conn      automation.Connector
	cache     *cache.Cache
	resolver  *resolution.Resolver
	watcher   *resolution.SaveWatcher
	nav       *focusnav.Navigator
	roster    *identity.Roster
	announcer host.Announcer
	journal   *journal.Journal
	log       *slog.Logger

	sink      *automation.Sink
	requests  chan Request
	responses chan Response
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	// attachedFlag mirrors the loop's attached state for cross-goroutine
	// status reads.
	attachedFlag atomic.Bool

	// Worker-goroutine state. Never touched from outside the loop.
	app         automation.Application
	sub         automation.Subscription
	winResolver *windowResolver
	attached    bool
	lastEvent   time.Time
	lastAttach  time.Time

	// current is the last observed (window, slide); requests act on it.
	curHandle cache.WindowHandle
	curWindow automation.DocumentWindow
	curSlide  int

	// curMentions counts roster mentions in the current slide's comments.
	curMentions int

	// liveWindows maps cache handles back to live protocol objects.
	liveWindows map[cache.WindowHandle]automation.DocumentWindow

	// watchedPaths maps a watched deck path to its window handle.
	watchedPaths map[string]cache.WindowHandle
}

// New creates a Worker. Call Start to begin the loop.
func New(opts Options) (*Worker, error) {
	if opts.Connector == nil {
		return nil, errors.New("worker: connector is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("worker: cache is required")
	}
	if opts.Announcer == nil {
		return nil, errors.New("worker: announcer is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	queueSize := cfg.Worker.RequestQueueSize
	if queueSize <= 0 {
		queueSize = 32
	}

	w := &Worker{
		cfg:          cfg,
		conn:         opts.Connector,
		cache:        opts.Cache,
		resolver:     opts.Resolver,
		watcher:      opts.Watcher,
		nav:          opts.Navigator,
		roster:       opts.Roster,
		announcer:    opts.Announcer,
		journal:      opts.Journal,
		log:          log,
		sink:         automation.NewSink(log),
		requests:     make(chan Request, queueSize),
		responses:    make(chan Response, queueSize),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		liveWindows:  make(map[cache.WindowHandle]automation.DocumentWindow),
		watchedPaths: make(map[string]cache.WindowHandle),
	}

	w.sink.On(automation.EventSelectionChanged, w.onSelectionChanged)
	w.sink.On(automation.EventSlideShowBegin, w.onSlideShow)
	w.sink.On(automation.EventSlideShowNext, w.onSlideShow)
	w.sink.On(automation.EventSlideShowEnd, w.onSlideShowEnd)
	w.sink.On(automation.EventPresentationSaved, w.onPresentationSaved)
	return w, nil
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	go w.run()
}

// Submit enqueues a request without blocking. Returns false when the
// queue is full; the caller decides whether that is worth surfacing.
func (w *Worker) Submit(req Request) bool {
	select {
	case w.requests <- req:
		return true
	default:
		return false
	}
}

// Responses returns the outbound response channel. Unconsumed responses
// are dropped, never block the worker.
func (w *Worker) Responses() <-chan Response {
	return w.responses
}

// Attached reports whether the worker currently holds a live attachment.
func (w *Worker) Attached() bool {
	return w.attachedFlag.Load()
}

// Stop signals the loop and waits for it, bounded by the configured
// shutdown timeout. On timeout the worker goroutine is abandoned: there
// is no mid-flight cancellation of a remote call.
func (w *Worker) Stop() error {
	w.stopOnce.Do(func() { close(w.stop) })

	timeout := time.Duration(w.cfg.Worker.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-w.done:
		return nil
	case <-time.After(timeout):
		w.log.Error("worker did not stop in time, abandoning thread")
		return ErrShutdownTimeout
	}
}

func (w *Worker) run() {
	// The protocol's objects are apartment-bound; everything below this
	// line stays on this one OS thread.
	runtime.LockOSThread()
	defer close(w.done)
	defer w.teardown()

	pump := time.Duration(w.cfg.Worker.PumpIntervalMs) * time.Millisecond
	if pump <= 0 {
		pump = 50 * time.Millisecond
	}

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		w.conn.Pump(pump)
		w.drainInbound()

		if !w.attached {
			w.tryAttach()
		} else {
			w.checkStaleness()
		}
	}
}

func (w *Worker) teardown() {
	w.releaseSubscription()
	if err := w.conn.Shutdown(); err != nil {
		w.log.Warn("connector shutdown failed", "error", err)
	}
	// The loop goroutine is the only sender; closing here lets consumers
	// ranging over Responses() exit on shutdown.
	close(w.responses)
	w.log.Info("worker stopped")
}

// releaseSubscription closes the event registration exactly once.
func (w *Worker) releaseSubscription() {
	if w.sub == nil {
		return
	}
	if err := w.sub.Close(); err != nil {
		w.log.Warn("subscription release failed", "error", err)
	}
	w.sub = nil
	w.attached = false
	w.attachedFlag.Store(false)
}

// tryAttach attempts attachment, rate-limited by the configured retry
// interval. Failures stay silent: the editor simply is not running yet.
func (w *Worker) tryAttach() {
	retry := time.Duration(w.cfg.Application.AttachRetryMs) * time.Millisecond
	if retry > 0 && time.Since(w.lastAttach) < retry {
		return
	}
	w.lastAttach = time.Now()

	app, sub, err := w.conn.Attach(w.sink)
	if err != nil {
		if !errors.Is(err, automation.ErrNotRunning) {
			w.log.Debug("attach attempt failed", "error", err)
		}
		return
	}

	w.app = app
	w.sub = sub
	w.attached = true
	w.attachedFlag.Store(true)
	w.lastEvent = time.Now()
	w.winResolver = newWindowResolver(app, w.log)

	name, _ := app.Name()
	w.log.Info("attached to editor", "application", name)
	w.journalEvent("attach", name, 0, "")

	// The event stream never fires for the state that already exists, so
	// seed the first observation eagerly.
	w.seedFirstObservation()
}

func (w *Worker) seedFirstObservation() {
	win, err := w.app.ActiveWindow()
	if err != nil || win == nil {
		w.log.Debug("no active window at attach", "error", err)
		return
	}
	w.enforceNormalView(win)

	idx, err := win.CurrentSlideIndex()
	if err != nil {
		w.log.Warn("first observation failed", "error", err)
		return
	}
	w.observeSlide(win, idx, false)
}

// enforceNormalView switches the window to Normal view when configured.
// The comment pane only exists there.
func (w *Worker) enforceNormalView(win automation.DocumentWindow) {
	if !w.cfg.Application.EnforceNormalView {
		return
	}
	vt, err := win.ViewType()
	if err != nil || vt == automation.ViewNormal {
		return
	}
	if err := win.SetViewType(automation.ViewNormal); err != nil {
		w.log.Warn("could not switch to normal view", "view", vt, "error", err)
		return
	}
	w.log.Info("switched editor to normal view", "previous_view", vt)
	// The view changed under the user; silence here would be disorienting.
	w.announce("Switched to Normal view")
}

// checkStaleness detects a silently dead subscription. Event delivery has
// no error path for this: the registration object can die without a
// callback, so a quiet channel is probed and a failed probe forces a full
// re-attach.
func (w *Worker) checkStaleness() {
	timeout := time.Duration(w.cfg.Worker.StalenessTimeoutSec) * time.Second
	if timeout <= 0 || time.Since(w.lastEvent) < timeout {
		return
	}

	if _, err := w.app.Name(); err != nil {
		w.log.Warn("liveness probe failed, re-attaching",
			"error", err, "cause", ErrSubscriptionLost)
		w.journalEvent("subscription-lost", w.curHandle.Presentation, 0, err.Error())
		w.releaseSubscription()
		w.app = nil
		w.winResolver = nil
		return
	}
	// Alive but idle. Reset the clock so the probe stays cheap.
	w.lastEvent = time.Now()
}

// drainInbound handles queued requests and watcher notifications without
// blocking. Runs every cycle on the worker thread.
func (w *Worker) drainInbound() {
	for {
		select {
		case req := <-w.requests:
			w.handleRequest(req)
			continue
		default:
		}

		if w.watcher != nil {
			select {
			case path := <-w.watcher.Events():
				w.onWatchedSave(path)
				continue
			case err := <-w.watcher.Errors():
				if err != nil {
					w.log.Warn("save watcher error", "error", err)
				}
				continue
			default:
			}
		}
		return
	}
}

func (w *Worker) handleRequest(req Request) {
	if !w.attached {
		w.reply(req, Response{
			Kind:    RespError,
			ErrKind: kindName(ErrNotAttached),
			Message: "presentation editor is not reachable",
		})
		return
	}

	switch req.Kind {
	case ReqNavigateSlide:
		w.handleNavigate(req)
	case ReqFocusComment:
		w.handleFocusComment(req)
	case ReqRefreshStatus:
		w.handleRefresh(req)
	case ReqReadNotes:
		w.handleReadNotes(req)
	default:
		w.reply(req, Response{
			Kind:    RespError,
			ErrKind: "internal",
			Message: fmt.Sprintf("unknown request kind %d", req.Kind),
		})
	}
}

func (w *Worker) handleNavigate(req Request) {
	win := w.actionWindow()
	if win == nil {
		w.replyErr(req, ErrWindowAmbiguous, "no document window to navigate")
		return
	}

	cur, err := win.CurrentSlideIndex()
	if err != nil {
		w.replyErr(req, err, "current slide unreadable")
		return
	}
	count, err := win.SlideCount()
	if err != nil {
		w.replyErr(req, err, "slide count unreadable")
		return
	}

	target := cur + req.Direction
	if target < 1 {
		target = 1
	}
	if target > count {
		target = count
	}
	if err := win.GoToSlide(target); err != nil {
		w.replyErr(req, err, fmt.Sprintf("navigation to slide %d failed", target))
		return
	}

	snap, _ := w.observeSlide(win, target, false)
	w.reply(req, Response{
		Kind:       RespSlideChanged,
		Window:     w.curHandle,
		SlideIndex: target,
		Snapshot:   snap,
	})
}

func (w *Worker) handleFocusComment(req Request) {
	if w.nav == nil {
		w.replyErr(req, ErrFocusNotFound, "focus navigation is not available")
		return
	}
	win := w.actionWindow()
	if win == nil {
		w.replyErr(req, ErrWindowAmbiguous, "no document window to focus in")
		return
	}
	w.enforceNormalView(win)

	status := w.nav.FocusComment(w.curHandle, req.Ordinal)
	w.reply(req, Response{
		Kind:        RespFocusResult,
		Window:      w.curHandle,
		FocusStatus: status,
	})
	if status != focusnav.StatusOK {
		// User-initiated, so the failure must be audible, not silent.
		w.announce(fmt.Sprintf("Comment %d not focused: %s", req.Ordinal, status))
	}
}

func (w *Worker) handleRefresh(req Request) {
	win := w.actionWindow()
	if win == nil {
		w.replyErr(req, ErrWindowAmbiguous, "no document window to refresh")
		return
	}
	idx, err := win.CurrentSlideIndex()
	if err != nil {
		w.replyErr(req, err, "current slide unreadable")
		return
	}

	snap, _ := w.observeSlide(win, idx, true)

	if w.resolver != nil {
		if path, err := win.FilePath(); err == nil && path != "" {
			// An on-demand read sees the file as of its last save, not
			// unsaved edits.
			w.refreshResolution(win, path, cache.FreshnessStaleCached)
			if updated, ok := w.cache.Get(w.curHandle, idx); ok {
				snap = updated
			}
		}
	}

	// Explicit refresh always speaks, even when nothing changed.
	w.announce(w.slideAnnouncement(snap))
	w.reply(req, Response{
		Kind:       RespSlideChanged,
		Window:     w.curHandle,
		SlideIndex: idx,
		Snapshot:   snap,
	})
}

func (w *Worker) handleReadNotes(req Request) {
	win := w.actionWindow()
	if win == nil {
		w.replyErr(req, ErrWindowAmbiguous, "no document window to read from")
		return
	}
	idx, err := win.CurrentSlideIndex()
	if err != nil {
		w.replyErr(req, err, "current slide unreadable")
		return
	}
	slide, err := win.Slide(idx)
	if err != nil {
		w.replyErr(req, err, "slide unreadable")
		return
	}
	notes, err := slide.NotesText()
	if err != nil {
		w.replyErr(req, err, "notes unreadable")
		return
	}

	text := strings.TrimSpace(notes)
	if text == "" {
		text = "No notes on this slide"
	}
	w.announce(text)
	w.reply(req, Response{
		Kind:   RespNotesText,
		Window: w.curHandle,
		Notes:  notes,
	})
}

// actionWindow returns the window explicit requests act on: the last
// observed window, falling back to the editor's active window.
func (w *Worker) actionWindow() automation.DocumentWindow {
	if w.curWindow != nil {
		if _, err := w.curWindow.PresentationName(); err == nil {
			return w.curWindow
		}
		// Window closed since we last saw it.
		w.cache.DropWindow(w.curHandle)
		delete(w.liveWindows, w.curHandle)
		w.curWindow = nil
	}
	win, err := w.app.ActiveWindow()
	if err != nil || win == nil {
		return nil
	}
	if handle, ok := w.handleFor(win); ok {
		w.curHandle = handle
		w.curWindow = win
	}
	return win
}

// Event handlers. All run synchronously on the worker thread via the
// sink's panic-recovering dispatch.

func (w *Worker) onSelectionChanged(ev automation.Event) {
	w.lastEvent = ev.Time

	win, conf, err := w.resolveEventWindow(ev)
	if err != nil {
		return
	}
	idx, err := win.CurrentSlideIndex()
	if err != nil {
		w.log.Debug("selection without readable slide", "error", err)
		return
	}
	if conf != ResolveDirect {
		w.log.Debug("observation attributed with degraded confidence",
			"confidence", conf.String(), "slide", idx)
	}
	w.observeSlide(win, idx, false)
}

func (w *Worker) onSlideShow(ev automation.Event) {
	w.lastEvent = ev.Time

	win, _, err := w.resolveEventWindow(ev)
	if err != nil {
		return
	}
	idx := ev.SlideIndex
	if idx < 1 {
		// Begin events may not carry an index; the first slide of a run
		// never gets its own next-slide event, so read it out directly.
		var err error
		idx, err = win.CurrentSlideIndex()
		if err != nil {
			w.log.Debug("slide show slide unreadable", "error", err)
			return
		}
	}
	w.observeSlide(win, idx, false)
}

func (w *Worker) onSlideShowEnd(ev automation.Event) {
	w.lastEvent = ev.Time
	w.announce("Slide show ended")
	w.journalEvent("slideshow-end", w.curHandle.Presentation, 0, "")
}

func (w *Worker) onPresentationSaved(ev automation.Event) {
	w.lastEvent = ev.Time

	win, _, err := w.resolveEventWindow(ev)
	if err != nil {
		return
	}
	path := ev.SavedPath
	if path == "" {
		if path, err = win.FilePath(); err != nil {
			w.log.Debug("saved path unreadable", "error", err)
			return
		}
	}
	w.journalEvent("save", w.curHandle.Presentation, w.curSlide, path)
	if w.resolver != nil {
		// Right after a save, disk and memory coincide.
		w.refreshResolution(win, path, cache.FreshnessFresh)
	}
}

// onWatchedSave handles a debounced on-disk write of a watched deck.
func (w *Worker) onWatchedSave(path string) {
	handle, ok := w.watchedPaths[path]
	if !ok {
		return
	}
	win, ok := w.liveWindows[handle]
	if !ok {
		return
	}
	w.log.Debug("watched deck changed on disk", "path", path)
	w.refreshResolution(win, path, cache.FreshnessFresh)
}

func (w *Worker) resolveEventWindow(ev automation.Event) (automation.DocumentWindow, ResolveConfidence, error) {
	if w.winResolver == nil {
		return nil, ResolveFailed, ErrNotAttached
	}
	win, conf, err := w.winResolver.Resolve(ev.Selection)
	if err != nil {
		w.log.Warn("event dropped, originating window unresolvable",
			"kind", ev.Kind.String(), "error", err)
		return nil, conf, err
	}
	return win, conf, nil
}

// observeSlide reads one slide's observable state and records it. When the
// observation differs from the cached snapshot it announces and emits a
// SlideChanged response; a same-value observation stays silent.
func (w *Worker) observeSlide(win automation.DocumentWindow, idx int, forced bool) (cache.SlideSnapshot, bool) {
	handle, ok := w.handleFor(win)
	if !ok {
		return cache.SlideSnapshot{}, false
	}
	w.curHandle = handle
	w.curWindow = win
	w.curSlide = idx
	w.liveWindows[handle] = win
	w.watchDeck(win, handle)

	slide, err := win.Slide(idx)
	if err != nil {
		w.log.Warn("slide unreadable", "slide", idx, "error", err)
		return cache.SlideSnapshot{}, false
	}
	comments, err := slide.Comments()
	if err != nil {
		w.log.Warn("comments unreadable", "slide", idx, "error", err)
		return cache.SlideSnapshot{}, false
	}
	notes, err := slide.NotesText()
	if err != nil {
		w.log.Debug("notes unreadable", "slide", idx, "error", err)
	}

	w.curMentions = w.countMentions(comments)

	snap, changed := w.cache.Update(handle, idx, len(comments), strings.TrimSpace(notes) != "")
	if changed || forced {
		// A forced observation leaves announcing to its caller, which may
		// still be folding in resolution status.
		if changed && !forced {
			w.announce(w.slideAnnouncement(snap))
		}
		w.emit(Response{
			Kind:       RespSlideChanged,
			Window:     handle,
			SlideIndex: idx,
			Snapshot:   snap,
		})
		w.journalEvent("slide-changed", handle.Presentation, idx,
			fmt.Sprintf("comments=%d notes=%t", snap.CommentCount, snap.NotesPresent))
	}
	return snap, changed
}

// watchDeck registers the window's saved file with the save watcher.
func (w *Worker) watchDeck(win automation.DocumentWindow, handle cache.WindowHandle) {
	if w.watcher == nil {
		return
	}
	path, err := win.FilePath()
	if err != nil || path == "" {
		return
	}
	if _, ok := w.watchedPaths[path]; ok {
		return
	}
	if err := w.watcher.Watch(path); err != nil {
		w.log.Debug("deck not watchable", "path", path, "error", err)
		return
	}
	w.watchedPaths[path] = handle
}

// refreshResolution re-reads the saved deck and merges per-slide status
// into cached snapshots. Correlation misses degrade to unknown; a wrong
// status is worse than no status. The caller states the freshness: a read
// triggered by a completed save reflects the in-memory document, an
// on-demand read only reflects the last-saved state.
func (w *Worker) refreshResolution(win automation.DocumentWindow, path string, fresh cache.Freshness) {
	handle, ok := w.handleFor(win)
	if !ok {
		return
	}

	doc, err := w.resolver.ReadSaved(path)
	if err != nil {
		w.log.Warn("saved deck unreadable", "path", path, "error", err)
		return
	}

	for idx, saved := range doc.Slides {
		if _, cached := w.cache.Get(handle, idx); !cached {
			continue
		}
		slide, err := win.Slide(idx)
		if err != nil {
			continue
		}
		primary, err := slide.Comments()
		if err != nil {
			continue
		}
		correlated := resolution.ApplyStatuses(primary, saved)
		summary := resolution.Summarize(correlated)
		snap, changed := w.cache.MergeResolution(handle, idx, summary, fresh)
		if changed && idx == w.curSlide && snap.CommentCount > 0 {
			w.announce(w.slideAnnouncement(snap))
		}
	}
}

// countMentions scans comment threads for @mentions of the roster user.
func (w *Worker) countMentions(comments []automation.CommentRecord) int {
	if w.roster == nil {
		return 0
	}
	matches := mention.Scan(comments, w.roster,
		w.cfg.Mentions.StrongThreshold, w.cfg.Mentions.WeakThreshold)
	return len(matches)
}

// slideAnnouncement renders the current slide's announcement, flagging
// roster mentions found during the last observation.
func (w *Worker) slideAnnouncement(snap cache.SlideSnapshot) string {
	text := FormatSlideAnnouncement(snap)
	switch w.curMentions {
	case 0:
	case 1:
		text += ", mentions you"
	default:
		text += fmt.Sprintf(", mentions you %d times", w.curMentions)
	}
	return text
}

// handleFor derives the stable cache handle for a live window.
func (w *Worker) handleFor(win automation.DocumentWindow) (cache.WindowHandle, bool) {
	name, err := win.PresentationName()
	if err != nil {
		w.log.Debug("window name unreadable", "error", err)
		return cache.WindowHandle{}, false
	}
	return cache.WindowHandle{Presentation: name, RawHandle: win.HandleID()}, true
}

func (w *Worker) announce(text string) {
	w.announcer.Announce(text)
}

// emit posts a response without blocking; an unconsumed channel loses
// responses rather than stalling the apartment thread.
func (w *Worker) emit(resp Response) {
	select {
	case w.responses <- resp:
	default:
		w.log.Debug("response dropped, channel full", "kind", int(resp.Kind))
	}
}

// reply routes a response to the request's reply channel when present,
// otherwise onto the shared response channel. Never blocks.
func (w *Worker) reply(req Request, resp Response) {
	if req.Reply != nil {
		select {
		case req.Reply <- resp:
		default:
			w.log.Debug("reply dropped, caller not listening", "request", req.Kind.String())
		}
		return
	}
	w.emit(resp)
}

func (w *Worker) replyErr(req Request, err error, msg string) {
	w.log.Warn("request failed", "request", req.Kind.String(), "error", err)
	w.reply(req, Response{
		Kind:    RespError,
		ErrKind: kindName(err),
		Message: msg,
	})
}

func (w *Worker) journalEvent(kind, window string, slide int, detail string) {
	if w.journal == nil {
		return
	}
	if err := w.journal.Append(kind, window, slide, detail); err != nil {
		w.log.Debug("journal append failed", "error", err)
	}
}
