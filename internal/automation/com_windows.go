//go:build windows

package automation

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"golang.org/x/sys/windows"
)

// eventInterfaceIID is the editor's application-event dispinterface. Only
// the dispatch ids declared in events.go are consumed; everything else the
// interface carries is ignored without loading its type descriptor.
var eventInterfaceIID = ole.NewGUID("{914934C2-5A91-11CF-8700-00AA0060263B}")

// comConnector is the live protocol binding. All of its methods must run on
// the worker's locked apartment thread.
type comConnector struct {
	progID string
	log    *slog.Logger

	inited bool
	app    *ole.IDispatch
	point  *ole.IConnectionPoint
	cookie uint32
	recv   *comSink
}

// NewLive returns a connector bound to the running editor identified by
// progID.
func NewLive(progID string, log *slog.Logger) (Connector, error) {
	if log == nil {
		log = slog.Default()
	}
	return &comConnector{progID: progID, log: log}, nil
}

// Attach implements Connector. The running instance is located through the
// running-object lookup; direct activation is never attempted because it
// fails under the screen reader's elevated security context.
func (c *comConnector) Attach(sink *Sink) (Application, Subscription, error) {
	if !c.inited {
		if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
			return nil, nil, fmt.Errorf("initialize apartment: %w", err)
		}
		c.inited = true
	}

	unknown, err := oleutil.GetActiveObject(c.progID)
	if err != nil {
		return nil, nil, ErrNotRunning
	}
	disp, err := unknown.QueryInterface(ole.IID_IDispatch)
	unknown.Release()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: query dispatch: %v", ErrRemoteCall, err)
	}

	recv := newComSink(sink, c.log)
	point, cookie, err := advise(disp, recv)
	if err != nil {
		disp.Release()
		return nil, nil, fmt.Errorf("register event sink: %w", err)
	}

	c.app = disp
	c.point = point
	c.cookie = cookie
	c.recv = recv

	return &comApplication{disp: disp}, &comSubscription{conn: c}, nil
}

// advise finds the application's connection point for the declared event
// interface and registers the sink against it.
func advise(disp *ole.IDispatch, recv *comSink) (*ole.IConnectionPoint, uint32, error) {
	unknown, err := disp.QueryInterface(ole.IID_IConnectionPointContainer)
	if err != nil {
		return nil, 0, fmt.Errorf("query connection point container: %w", err)
	}
	container := (*ole.IConnectionPointContainer)(unsafe.Pointer(unknown))
	defer container.Release()

	var point *ole.IConnectionPoint
	if err := container.FindConnectionPoint(eventInterfaceIID, &point); err != nil {
		return nil, 0, fmt.Errorf("find connection point: %w", err)
	}

	cookie, err := point.Advise((*ole.IUnknown)(unsafe.Pointer(recv)))
	if err != nil {
		point.Release()
		return nil, 0, fmt.Errorf("advise: %w", err)
	}
	return point, cookie, nil
}

// comSubscription holds the live registration. It must stay referenced for
// the worker's lifetime; Close releases it exactly once.
type comSubscription struct {
	conn   *comConnector
	closed atomic.Bool
}

func (s *comSubscription) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	c := s.conn
	if c.point != nil {
		c.point.Unadvise(c.cookie)
		c.point.Release()
		c.point = nil
	}
	if c.app != nil {
		c.app.Release()
		c.app = nil
	}
	c.recv = nil
	return nil
}

// Message pump plumbing.

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	procPeekMessageW             = user32.NewProc("PeekMessageW")
	procTranslateMessage         = user32.NewProc("TranslateMessage")
	procDispatchMessageW         = user32.NewProc("DispatchMessageW")
	procMsgWaitForMultipleObject = user32.NewProc("MsgWaitForMultipleObjects")
)

const (
	pmRemove   = 0x0001
	qsAllInput = 0x04FF
)

type msg struct {
	hwnd    uintptr
	message uint32
	wparam  uintptr
	lparam  uintptr
	time    uint32
	ptX     int32
	ptY     int32
}

// Pump implements Connector: waits, bounded, for queued window messages and
// dispatches them so protocol callbacks can be delivered on this thread.
func (c *comConnector) Pump(timeout time.Duration) {
	ms := uint32(timeout / time.Millisecond)
	procMsgWaitForMultipleObject.Call(0, 0, 0, uintptr(ms), qsAllInput)

	var m msg
	for {
		ret, _, _ := procPeekMessageW.Call(
			uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmRemove)
		if ret == 0 {
			return
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

// Shutdown implements Connector.
func (c *comConnector) Shutdown() error {
	if c.inited {
		ole.CoUninitialize()
		c.inited = false
	}
	return nil
}

// comSink is a raw IDispatch implementation of the declared event
// interface. Hand-rolled vtable: the vendor's type descriptor is never
// loaded, Invoke switches on the declared dispatch ids directly.
type comSink struct {
	vtbl *comSinkVtbl
	ref  int32
	sink *Sink
	log  *slog.Logger
}

type comSinkVtbl struct {
	pQueryInterface   uintptr
	pAddRef           uintptr
	pRelease          uintptr
	pGetTypeInfoCount uintptr
	pGetTypeInfo      uintptr
	pGetIDsOfNames    uintptr
	pInvoke           uintptr
}

func newComSink(sink *Sink, log *slog.Logger) *comSink {
	s := &comSink{sink: sink, log: log, ref: 1}
	s.vtbl = &comSinkVtbl{
		pQueryInterface:   syscall.NewCallback(sinkQueryInterface),
		pAddRef:           syscall.NewCallback(sinkAddRef),
		pRelease:          syscall.NewCallback(sinkRelease),
		pGetTypeInfoCount: syscall.NewCallback(sinkGetTypeInfoCount),
		pGetTypeInfo:      syscall.NewCallback(sinkGetTypeInfo),
		pGetIDsOfNames:    syscall.NewCallback(sinkGetIDsOfNames),
		pInvoke:           syscall.NewCallback(sinkInvoke),
	}
	return s
}

func sinkQueryInterface(this *comSink, iid *ole.GUID, punk *unsafe.Pointer) uintptr {
	*punk = nil
	if ole.IsEqualGUID(iid, ole.IID_IUnknown) ||
		ole.IsEqualGUID(iid, ole.IID_IDispatch) ||
		ole.IsEqualGUID(iid, eventInterfaceIID) {
		sinkAddRef(this)
		*punk = unsafe.Pointer(this)
		return ole.S_OK
	}
	return ole.E_NOINTERFACE
}

func sinkAddRef(this *comSink) uintptr {
	this.ref++
	return uintptr(this.ref)
}

func sinkRelease(this *comSink) uintptr {
	this.ref--
	return uintptr(this.ref)
}

func sinkGetTypeInfoCount(this *comSink, pcount *uint32) uintptr {
	if pcount != nil {
		*pcount = 0
	}
	return ole.S_OK
}

func sinkGetTypeInfo(this *comSink, index uint32, lcid uint32, pinfo *unsafe.Pointer) uintptr {
	return ole.E_NOTIMPL
}

func sinkGetIDsOfNames(this *comSink, iid *ole.GUID, names unsafe.Pointer, count uint32, lcid uint32, dispids *int32) uintptr {
	return ole.E_NOTIMPL
}

type dispParams struct {
	rgvarg            uintptr
	rgdispidNamedArgs uintptr
	cArgs             uint32
	cNamedArgs        uint32
}

// sinkInvoke is the protocol dispatch boundary. It must never fail outward:
// any error here can silently disable future event delivery, so everything
// is recovered and the callback always returns S_OK.
func sinkInvoke(this *comSink, dispid int32, iid *ole.GUID, lcid uint32, flags uint16, params *dispParams, result unsafe.Pointer, excepInfo unsafe.Pointer, argErr *uint32) uintptr {
	defer func() {
		if r := recover(); r != nil {
			this.log.Error("event callback panicked", "dispid", dispid, "panic", r)
		}
	}()

	payload := firstDispatchArg(params)
	ev := Event{Time: time.Now()}
	if payload != nil {
		ev.Selection = &comPayload{disp: payload}
		if dispid == DispidSlideShowNextSlide || dispid == DispidSlideShowBegin {
			ev.SlideIndex = showPosition(payload)
		}
		if dispid == DispidPresentationSave {
			if v, err := oleutil.GetProperty(payload, "FullName"); err == nil {
				ev.SavedPath = v.ToString()
				v.Clear()
			}
		}
	}

	this.sink.DeliverDispid(int(dispid), ev)
	return ole.S_OK
}

// firstDispatchArg extracts the first (wire-order last) argument of the
// callback as an IDispatch, or nil.
func firstDispatchArg(params *dispParams) *ole.IDispatch {
	if params == nil || params.cArgs == 0 || params.rgvarg == 0 {
		return nil
	}
	size := unsafe.Sizeof(ole.VARIANT{})
	// Arguments are stored in reverse order.
	v := (*ole.VARIANT)(unsafe.Pointer(params.rgvarg + uintptr(params.cArgs-1)*size))
	if v.VT != ole.VT_DISPATCH {
		return nil
	}
	return v.ToIDispatch()
}

// showPosition reads a slide-show payload's current position, 0 on failure.
func showPosition(disp *ole.IDispatch) int {
	view, err := oleutil.GetProperty(disp, "View")
	if err != nil {
		return 0
	}
	defer view.Clear()
	vd := view.ToIDispatch()
	if vd == nil {
		return 0
	}
	pos, err := oleutil.GetProperty(vd, "CurrentShowPosition")
	if err != nil {
		return 0
	}
	defer pos.Clear()
	return int(pos.Val)
}

// Remote-object wrappers. Every method is a synchronous remote call bound
// to the apartment thread.

type comApplication struct {
	disp *ole.IDispatch
}

func (a *comApplication) Name() (string, error) {
	return getString(a.disp, "Name")
}

func (a *comApplication) Windows() ([]DocumentWindow, error) {
	coll, err := oleutil.GetProperty(a.disp, "Windows")
	if err != nil {
		return nil, remoteErr("Windows", err)
	}
	defer coll.Clear()
	cd := coll.ToIDispatch()
	if cd == nil {
		return nil, remoteErr("Windows", fmt.Errorf("nil collection"))
	}

	count, err := getInt(cd, "Count")
	if err != nil {
		return nil, err
	}
	out := make([]DocumentWindow, 0, count)
	for i := 1; i <= count; i++ {
		item, err := oleutil.CallMethod(cd, "Item", i)
		if err != nil {
			return nil, remoteErr("Windows.Item", err)
		}
		out = append(out, &comWindow{disp: item.ToIDispatch()})
	}
	return out, nil
}

func (a *comApplication) ActiveWindow() (DocumentWindow, error) {
	v, err := oleutil.GetProperty(a.disp, "ActiveWindow")
	if err != nil {
		return nil, remoteErr("ActiveWindow", err)
	}
	d := v.ToIDispatch()
	if d == nil {
		v.Clear()
		return nil, ErrWindowClosed
	}
	return &comWindow{disp: d}, nil
}

type comWindow struct {
	disp *ole.IDispatch
}

func (w *comWindow) presentation() (*ole.IDispatch, error) {
	v, err := oleutil.GetProperty(w.disp, "Presentation")
	if err != nil {
		return nil, remoteErr("Presentation", err)
	}
	d := v.ToIDispatch()
	if d == nil {
		v.Clear()
		return nil, ErrWindowClosed
	}
	return d, nil
}

func (w *comWindow) PresentationName() (string, error) {
	pres, err := w.presentation()
	if err != nil {
		return "", err
	}
	defer pres.Release()
	return getString(pres, "Name")
}

func (w *comWindow) FilePath() (string, error) {
	pres, err := w.presentation()
	if err != nil {
		return "", err
	}
	defer pres.Release()
	// FullName is the display name until the document is first saved.
	full, err := getString(pres, "FullName")
	if err != nil {
		return "", err
	}
	path, err := getString(pres, "Path")
	if err != nil || path == "" {
		return "", err
	}
	return full, nil
}

func (w *comWindow) HandleID() uintptr {
	v, err := oleutil.GetProperty(w.disp, "HWND")
	if err != nil {
		return 0
	}
	defer v.Clear()
	return uintptr(v.Val)
}

func (w *comWindow) Active() (bool, error) {
	v, err := getInt(w.disp, "Active")
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (w *comWindow) ViewType() (int, error) {
	return getInt(w.disp, "ViewType")
}

func (w *comWindow) SetViewType(view int) error {
	if _, err := oleutil.PutProperty(w.disp, "ViewType", view); err != nil {
		return remoteErr("ViewType", err)
	}
	return nil
}

func (w *comWindow) view() (*ole.IDispatch, error) {
	v, err := oleutil.GetProperty(w.disp, "View")
	if err != nil {
		return nil, remoteErr("View", err)
	}
	d := v.ToIDispatch()
	if d == nil {
		v.Clear()
		return nil, ErrWindowClosed
	}
	return d, nil
}

func (w *comWindow) CurrentSlideIndex() (int, error) {
	view, err := w.view()
	if err != nil {
		return 0, err
	}
	defer view.Release()

	slide, err := oleutil.GetProperty(view, "Slide")
	if err != nil {
		return 0, remoteErr("View.Slide", err)
	}
	defer slide.Clear()
	sd := slide.ToIDispatch()
	if sd == nil {
		return 0, ErrWindowClosed
	}
	return getInt(sd, "SlideIndex")
}

func (w *comWindow) GoToSlide(index int) error {
	view, err := w.view()
	if err != nil {
		return err
	}
	defer view.Release()
	if _, err := oleutil.CallMethod(view, "GotoSlide", index); err != nil {
		return remoteErr("GotoSlide", err)
	}
	return nil
}

func (w *comWindow) slides() (*ole.IDispatch, error) {
	pres, err := w.presentation()
	if err != nil {
		return nil, err
	}
	defer pres.Release()

	v, err := oleutil.GetProperty(pres, "Slides")
	if err != nil {
		return nil, remoteErr("Slides", err)
	}
	d := v.ToIDispatch()
	if d == nil {
		v.Clear()
		return nil, ErrWindowClosed
	}
	return d, nil
}

func (w *comWindow) SlideCount() (int, error) {
	slides, err := w.slides()
	if err != nil {
		return 0, err
	}
	defer slides.Release()
	return getInt(slides, "Count")
}

func (w *comWindow) Slide(index int) (Slide, error) {
	slides, err := w.slides()
	if err != nil {
		return nil, err
	}
	defer slides.Release()

	item, err := oleutil.CallMethod(slides, "Item", index)
	if err != nil {
		return nil, remoteErr("Slides.Item", err)
	}
	d := item.ToIDispatch()
	if d == nil {
		item.Clear()
		return nil, ErrWindowClosed
	}
	return &comSlide{disp: d, index: index}, nil
}

type comSlide struct {
	disp  *ole.IDispatch
	index int
}

func (s *comSlide) Index() int { return s.index }

func (s *comSlide) Comments() ([]CommentRecord, error) {
	coll, err := oleutil.GetProperty(s.disp, "Comments")
	if err != nil {
		return nil, remoteErr("Comments", err)
	}
	defer coll.Clear()
	cd := coll.ToIDispatch()
	if cd == nil {
		return nil, nil
	}

	count, err := getInt(cd, "Count")
	if err != nil {
		return nil, err
	}

	out := make([]CommentRecord, 0, count)
	for i := 1; i <= count; i++ {
		item, err := oleutil.CallMethod(cd, "Item", i)
		if err != nil {
			return nil, remoteErr("Comments.Item", err)
		}
		d := item.ToIDispatch()
		if d == nil {
			item.Clear()
			continue
		}
		rec := readComment(d, s.index)
		d.Release()
		out = append(out, rec)
	}
	return out, nil
}

// readComment reads one comment thread. The primary interface never exposes
// resolution status, so Status stays Unknown here.
func readComment(disp *ole.IDispatch, slideIndex int) CommentRecord {
	rec := CommentRecord{SlideIndex: slideIndex, Status: StatusUnknown}
	rec.Author, _ = getString(disp, "Author")
	rec.Text, _ = getString(disp, "Text")
	if v, err := oleutil.GetProperty(disp, "DateTime"); err == nil {
		if t, ok := v.Value().(time.Time); ok {
			rec.Created = t
		}
		v.Clear()
	}

	// Replies only exist on newer builds; a failed read is not an error.
	replies, err := oleutil.GetProperty(disp, "Replies")
	if err != nil {
		return rec
	}
	defer replies.Clear()
	rd := replies.ToIDispatch()
	if rd == nil {
		return rec
	}
	count, err := getInt(rd, "Count")
	if err != nil {
		return rec
	}
	for i := 1; i <= count; i++ {
		item, err := oleutil.CallMethod(rd, "Item", i)
		if err != nil {
			break
		}
		d := item.ToIDispatch()
		if d == nil {
			item.Clear()
			continue
		}
		rec.Replies = append(rec.Replies, readComment(d, slideIndex))
		d.Release()
	}
	return rec
}

func (s *comSlide) NotesText() (string, error) {
	notes, err := oleutil.GetProperty(s.disp, "NotesPage")
	if err != nil {
		return "", remoteErr("NotesPage", err)
	}
	defer notes.Clear()
	nd := notes.ToIDispatch()
	if nd == nil {
		return "", nil
	}

	shapes, err := oleutil.GetProperty(nd, "Shapes")
	if err != nil {
		return "", remoteErr("NotesPage.Shapes", err)
	}
	defer shapes.Clear()
	sd := shapes.ToIDispatch()
	if sd == nil {
		return "", nil
	}

	placeholders, err := oleutil.GetProperty(sd, "Placeholders")
	if err != nil {
		return "", remoteErr("Placeholders", err)
	}
	defer placeholders.Clear()
	pd := placeholders.ToIDispatch()
	if pd == nil {
		return "", nil
	}

	// Placeholder 2 is the notes body. Some layouts lack it.
	item, err := oleutil.CallMethod(pd, "Item", 2)
	if err != nil {
		return "", nil
	}
	defer item.Clear()
	body := item.ToIDispatch()
	if body == nil {
		return "", nil
	}

	frame, err := oleutil.GetProperty(body, "TextFrame")
	if err != nil {
		return "", nil
	}
	defer frame.Clear()
	fd := frame.ToIDispatch()
	if fd == nil {
		return "", nil
	}
	rng, err := oleutil.GetProperty(fd, "TextRange")
	if err != nil {
		return "", nil
	}
	defer rng.Clear()
	rd := rng.ToIDispatch()
	if rd == nil {
		return "", nil
	}
	return getString(rd, "Text")
}

// comPayload is an event payload handle: either a window selection or a
// slide-show window, both resolved lazily.
type comPayload struct {
	disp *ole.IDispatch
}

func (p *comPayload) Window() (DocumentWindow, error) {
	// Selection payloads: Parent is the owning document window.
	if v, err := oleutil.GetProperty(p.disp, "Parent"); err == nil {
		if d := v.ToIDispatch(); d != nil {
			w := &comWindow{disp: d}
			if _, err := w.ViewType(); err == nil {
				return w, nil
			}
			d.Release()
		}
		v.Clear()
	}
	return nil, fmt.Errorf("%w: payload has no owning window", ErrRemoteCall)
}

func (p *comPayload) SlideIndex() (int, error) {
	// Selection payloads expose SlideRange.
	if v, err := oleutil.GetProperty(p.disp, "SlideRange"); err == nil {
		defer v.Clear()
		if d := v.ToIDispatch(); d != nil {
			return getInt(d, "SlideIndex")
		}
	}
	// Slide-show payloads expose View.CurrentShowPosition.
	if pos := showPosition(p.disp); pos > 0 {
		return pos, nil
	}
	return 0, nil
}

// Variant helpers.

func getString(disp *ole.IDispatch, name string) (string, error) {
	v, err := oleutil.GetProperty(disp, name)
	if err != nil {
		return "", remoteErr(name, err)
	}
	defer v.Clear()
	return v.ToString(), nil
}

func getInt(disp *ole.IDispatch, name string) (int, error) {
	v, err := oleutil.GetProperty(disp, name)
	if err != nil {
		return 0, remoteErr(name, err)
	}
	defer v.Clear()
	return int(v.Val), nil
}

func remoteErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrRemoteCall, op, err)
}
