package automation

import (
	"fmt"
	"sync"
	"time"
)

// Fake is a scripted in-memory editor implementing Connector. Tests and the
// daemon's simulate mode drive it by mutating windows and injecting events.
//
// Remote-object methods take the fake's lock so tests may mutate state from
// other goroutines; the real protocol has no such luxury.
type Fake struct {
	mu sync.Mutex

	name    string
	windows []*FakeWindow
	active  int

	sink     *Sink
	subOpen  bool
	attached bool

	pending chan Event

	// NotRunning makes Attach fail with ErrNotRunning.
	NotRunning bool

	// NameErr makes Application.Name fail, simulating a dead instance.
	NameErr error

	// PumpHang makes every Pump call sleep this long regardless of timeout,
	// simulating an unresponsive editor.
	PumpHang time.Duration
}

// NewFake creates a fake editor with no windows.
func NewFake() *Fake {
	return &Fake{
		name:    "Fake Presentation Editor",
		pending: make(chan Event, 128),
	}
}

// AddWindow adds an open document window and returns it.
func (f *Fake) AddWindow(name, path string, slideCount int) *FakeWindow {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &FakeWindow{
		fake:   f,
		name:   name,
		path:   path,
		handle: uintptr(0x1000 + len(f.windows)),
		view:   ViewNormal,
		cur:    1,
	}
	for i := 1; i <= slideCount; i++ {
		w.slides = append(w.slides, &FakeSlide{index: i})
	}
	f.windows = append(f.windows, w)
	return w
}

// SetActive marks the given window as the editor's active window.
func (f *Fake) SetActive(w *FakeWindow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, win := range f.windows {
		if win == w {
			f.active = i
		}
	}
}

// Attach implements Connector.
func (f *Fake) Attach(sink *Sink) (Application, Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.NotRunning {
		return nil, nil, ErrNotRunning
	}
	f.sink = sink
	f.subOpen = true
	f.attached = true
	return &fakeApp{f}, &fakeSub{f}, nil
}

// Pump implements Connector: delivers injected events until the queue is
// empty or the timeout elapses.
func (f *Fake) Pump(timeout time.Duration) {
	if f.PumpHang > 0 {
		time.Sleep(f.PumpHang)
		return
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case ev := <-f.pending:
			f.mu.Lock()
			sink, open := f.sink, f.subOpen
			f.mu.Unlock()
			// A released registration silently ends delivery.
			if sink != nil && open {
				sink.Deliver(ev)
			}
		case <-deadline.C:
			return
		default:
			// Queue drained; wait out the remaining timeout for new events.
			select {
			case ev := <-f.pending:
				f.mu.Lock()
				sink, open := f.sink, f.subOpen
				f.mu.Unlock()
				if sink != nil && open {
					sink.Deliver(ev)
				}
			case <-deadline.C:
				return
			}
		}
	}
}

// Shutdown implements Connector.
func (f *Fake) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = false
	return nil
}

// SubscriptionOpen reports whether the event registration is still held.
func (f *Fake) SubscriptionOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subOpen
}

// SelectSlide moves a window to the given slide and injects the
// selection-changed event the editor would emit.
func (f *Fake) SelectSlide(w *FakeWindow, index int) {
	f.mu.Lock()
	w.cur = index
	f.mu.Unlock()
	f.Inject(Event{
		Kind:      EventSelectionChanged,
		Selection: &fakeSelection{window: w},
	})
}

// InjectShowBegin injects a slideshow-begin event for the window.
func (f *Fake) InjectShowBegin(w *FakeWindow) {
	f.Inject(Event{
		Kind:       EventSlideShowBegin,
		Selection:  &fakeSelection{window: w},
		SlideIndex: 1,
	})
}

// InjectShowNext injects a slideshow-next event for the window.
func (f *Fake) InjectShowNext(w *FakeWindow, index int) {
	f.mu.Lock()
	w.cur = index
	f.mu.Unlock()
	f.Inject(Event{
		Kind:       EventSlideShowNext,
		Selection:  &fakeSelection{window: w},
		SlideIndex: index,
	})
}

// InjectSave injects a presentation-saved event.
func (f *Fake) InjectSave(w *FakeWindow) {
	f.Inject(Event{
		Kind:      EventPresentationSaved,
		Selection: &fakeSelection{window: w},
		SavedPath: w.path,
	})
}

// Inject queues a raw event for the next Pump.
func (f *Fake) Inject(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	f.pending <- ev
}

// fakeApp adapts Fake to Application.
type fakeApp struct {
	f *Fake
}

func (a *fakeApp) Name() (string, error) {
	a.f.mu.Lock()
	defer a.f.mu.Unlock()
	if a.f.NameErr != nil {
		return "", a.f.NameErr
	}
	return a.f.name, nil
}

func (a *fakeApp) Windows() ([]DocumentWindow, error) {
	a.f.mu.Lock()
	defer a.f.mu.Unlock()
	out := make([]DocumentWindow, len(a.f.windows))
	for i, w := range a.f.windows {
		out[i] = w
	}
	return out, nil
}

func (a *fakeApp) ActiveWindow() (DocumentWindow, error) {
	a.f.mu.Lock()
	defer a.f.mu.Unlock()
	if len(a.f.windows) == 0 {
		return nil, ErrWindowClosed
	}
	return a.f.windows[a.f.active], nil
}

// fakeSub adapts Fake to Subscription.
type fakeSub struct {
	f *Fake
}

func (s *fakeSub) Close() error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.subOpen = false
	return nil
}

// FakeWindow is one scripted document window.
type FakeWindow struct {
	fake   *Fake
	name   string
	path   string
	handle uintptr
	view   int
	cur    int
	slides []*FakeSlide

	// Closed makes every remote call fail, simulating a closed window.
	Closed bool

	// ActiveFlag overrides the editor-active flag independently of the
	// fake's active-window pointer, for resolver fallback tests.
	ActiveFlag bool
}

func (w *FakeWindow) err() error {
	if w.Closed {
		return ErrWindowClosed
	}
	return nil
}

func (w *FakeWindow) PresentationName() (string, error) {
	if err := w.err(); err != nil {
		return "", err
	}
	return w.name, nil
}

func (w *FakeWindow) FilePath() (string, error) {
	if err := w.err(); err != nil {
		return "", err
	}
	return w.path, nil
}

func (w *FakeWindow) HandleID() uintptr { return w.handle }

func (w *FakeWindow) Active() (bool, error) {
	if err := w.err(); err != nil {
		return false, err
	}
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	if w.ActiveFlag {
		return true, nil
	}
	for i, win := range w.fake.windows {
		if win == w {
			return i == w.fake.active, nil
		}
	}
	return false, nil
}

func (w *FakeWindow) ViewType() (int, error) {
	if err := w.err(); err != nil {
		return 0, err
	}
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	return w.view, nil
}

func (w *FakeWindow) SetViewType(view int) error {
	if err := w.err(); err != nil {
		return err
	}
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	w.view = view
	return nil
}

func (w *FakeWindow) CurrentSlideIndex() (int, error) {
	if err := w.err(); err != nil {
		return 0, err
	}
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	return w.cur, nil
}

func (w *FakeWindow) GoToSlide(index int) error {
	if err := w.err(); err != nil {
		return err
	}
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	if index < 1 || index > len(w.slides) {
		return fmt.Errorf("%w: slide %d of %d", ErrRemoteCall, index, len(w.slides))
	}
	w.cur = index
	return nil
}

func (w *FakeWindow) SlideCount() (int, error) {
	if err := w.err(); err != nil {
		return 0, err
	}
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	return len(w.slides), nil
}

func (w *FakeWindow) Slide(index int) (Slide, error) {
	if err := w.err(); err != nil {
		return nil, err
	}
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	if index < 1 || index > len(w.slides) {
		return nil, fmt.Errorf("%w: slide %d of %d", ErrRemoteCall, index, len(w.slides))
	}
	return w.slides[index-1], nil
}

// SetView sets the window's view type directly (test convenience).
func (w *FakeWindow) SetView(view int) {
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	w.view = view
}

// AddComment appends a comment thread to the given 1-based slide.
func (w *FakeWindow) AddComment(slide int, rec CommentRecord) {
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	rec.SlideIndex = slide
	s := w.slides[slide-1]
	s.comments = append(s.comments, rec)
}

// SetNotes sets the speaker notes of the given 1-based slide.
func (w *FakeWindow) SetNotes(slide int, text string) {
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	w.slides[slide-1].notes = text
}

// FakeSlide is one scripted slide.
type FakeSlide struct {
	index    int
	comments []CommentRecord
	notes    string
}

func (s *FakeSlide) Index() int { return s.index }

func (s *FakeSlide) Comments() ([]CommentRecord, error) {
	out := make([]CommentRecord, len(s.comments))
	copy(out, s.comments)
	return out, nil
}

func (s *FakeSlide) NotesText() (string, error) {
	return s.notes, nil
}

// fakeSelection is an event payload selection handle.
type fakeSelection struct {
	window *FakeWindow

	// WindowErr makes Window fail, forcing resolver fallbacks.
	WindowErr error
}

func (s *fakeSelection) Window() (DocumentWindow, error) {
	if s.WindowErr != nil {
		return nil, s.WindowErr
	}
	if s.window == nil {
		return nil, ErrWindowClosed
	}
	return s.window, nil
}

func (s *fakeSelection) SlideIndex() (int, error) {
	if s.window == nil {
		return 0, ErrWindowClosed
	}
	s.window.fake.mu.Lock()
	defer s.window.fake.mu.Unlock()
	return s.window.cur, nil
}

// NewOrphanSelection returns a selection whose Window call fails with the
// given error, for resolver fallback tests.
func NewOrphanSelection(err error) Selection {
	return &fakeSelection{WindowErr: err}
}

// NewSelectionFor returns a selection owned by the given window.
func NewSelectionFor(w *FakeWindow) Selection {
	return &fakeSelection{window: w}
}
