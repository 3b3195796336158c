package worker

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidebridge/internal/automation"
	"slidebridge/internal/cache"
	"slidebridge/internal/config"
	"slidebridge/internal/host"
	"slidebridge/internal/identity"
	"slidebridge/internal/resolution"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Application.AttachRetryMs = 1
	cfg.Worker.PumpIntervalMs = 5
	cfg.Worker.StalenessTimeoutSec = 0
	cfg.Worker.ShutdownTimeoutSec = 2
	return cfg
}

// startWorker spins up a worker over the fake editor and tears it down
// with the test.
func startWorker(t *testing.T, fake *automation.Fake, cfg *config.Config) (*Worker, *host.QueueAnnouncer) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	announcer := &host.QueueAnnouncer{}
	w, err := New(Options{
		Config:    cfg,
		Connector: fake,
		Cache:     cache.New(),
		Announcer: announcer,
	})
	require.NoError(t, err)
	w.Start()
	t.Cleanup(func() { w.Stop() })
	if !fake.NotRunning {
		require.Eventually(t, fake.SubscriptionOpen, 3*time.Second, 5*time.Millisecond,
			"worker never attached to the fake editor")
	}
	return w, announcer
}

// submitAndWait sends one request and waits for its reply.
func submitAndWait(t *testing.T, w *Worker, req Request) Response {
	t.Helper()
	req.Reply = make(chan Response, 1)
	require.True(t, w.Submit(req))
	select {
	case resp := <-req.Reply:
		return resp
	case <-time.After(3 * time.Second):
		t.Fatalf("no reply to %s request", req.Kind)
		return Response{}
	}
}

func contains(texts []string, want string) bool {
	for _, tx := range texts {
		if tx == want {
			return true
		}
	}
	return false
}

func TestAttachSeedsFirstObservation(t *testing.T) {
	fake := automation.NewFake()
	win := fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 3)
	win.AddComment(1, automation.CommentRecord{Author: "Ana", Text: "check this"})

	_, announcer := startWorker(t, fake, nil)

	// No event ever fires for the state that already exists; the attach
	// itself must produce the first announcement.
	assert.Eventually(t, func() bool {
		return contains(announcer.Texts(), "Slide 1: 1 comment, status unknown")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSelectionChangeAnnouncesOnce(t *testing.T) {
	fake := automation.NewFake()
	win := fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 5)
	win.SetNotes(2, "remember the demo")

	_, announcer := startWorker(t, fake, nil)

	fake.SelectSlide(win, 2)
	want := "Slide 2: no comments, notes present"
	assert.Eventually(t, func() bool {
		return contains(announcer.Texts(), want)
	}, 3*time.Second, 10*time.Millisecond)

	// Re-delivering the same observation must not re-announce.
	before := announcer.Len()
	fake.SelectSlide(win, 2)
	fake.SelectSlide(win, 2)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, before, announcer.Len())
}

func TestNavigateSlide(t *testing.T) {
	fake := automation.NewFake()
	win := fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 3)
	w, _ := startWorker(t, fake, nil)

	resp := submitAndWait(t, w, Request{Kind: ReqNavigateSlide, Direction: 1})
	require.Equal(t, RespSlideChanged, resp.Kind)
	assert.Equal(t, 2, resp.SlideIndex)
	assert.Equal(t, "deck.pptx", resp.Window.Presentation)

	idx, err := win.CurrentSlideIndex()
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
}

func TestNavigateClampsAtDeckBounds(t *testing.T) {
	fake := automation.NewFake()
	fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 2)
	w, _ := startWorker(t, fake, nil)

	resp := submitAndWait(t, w, Request{Kind: ReqNavigateSlide, Direction: -1})
	require.Equal(t, RespSlideChanged, resp.Kind)
	assert.Equal(t, 1, resp.SlideIndex)

	for i := 0; i < 4; i++ {
		resp = submitAndWait(t, w, Request{Kind: ReqNavigateSlide, Direction: 1})
	}
	require.Equal(t, RespSlideChanged, resp.Kind)
	assert.Equal(t, 2, resp.SlideIndex)
}

func TestReadNotes(t *testing.T) {
	fake := automation.NewFake()
	win := fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 2)
	win.SetNotes(1, "opening remarks")
	w, _ := startWorker(t, fake, nil)

	resp := submitAndWait(t, w, Request{Kind: ReqReadNotes})
	require.Equal(t, RespNotesText, resp.Kind)
	assert.Equal(t, "opening remarks", resp.Notes)
}

func TestReadNotesEmptySlideAnnouncesAbsence(t *testing.T) {
	fake := automation.NewFake()
	fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 2)
	w, announcer := startWorker(t, fake, nil)

	resp := submitAndWait(t, w, Request{Kind: ReqReadNotes})
	require.Equal(t, RespNotesText, resp.Kind)
	assert.Empty(t, resp.Notes)
	assert.Eventually(t, func() bool {
		return contains(announcer.Texts(), "No notes on this slide")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRefreshStatusAlwaysAnnounces(t *testing.T) {
	fake := automation.NewFake()
	fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 2)
	w, announcer := startWorker(t, fake, nil)

	want := "Slide 1: no comments"
	resp := submitAndWait(t, w, Request{Kind: ReqRefreshStatus})
	require.Equal(t, RespSlideChanged, resp.Kind)

	resp = submitAndWait(t, w, Request{Kind: ReqRefreshStatus})
	require.Equal(t, RespSlideChanged, resp.Kind)

	// Unlike event-driven observations, an explicit refresh re-announces
	// unchanged state.
	assert.Eventually(t, func() bool {
		n := 0
		for _, tx := range announcer.Texts() {
			if tx == want {
				n++
			}
		}
		// Once at attach plus once per refresh.
		return n >= 3
	}, 3*time.Second, 10*time.Millisecond)
}

const savedSlide1Rels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId2" Type="http://schemas.microsoft.com/office/2018/10/relationships/comments" Target="../comments/modernComment_1.xml"/>
</Relationships>`

const savedComments1XML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cm:cmLst xmlns:cm="http://schemas.microsoft.com/office/powerpoint/2018/8/main">
  <cm:cm id="{D1}" authorId="{A1}" created="2026-04-01T10:00:00.000" status="resolved">
    <cm:txBody><a:p><a:r><a:t>Tighten the intro</a:t></a:r></a:p></cm:txBody>
  </cm:cm>
  <cm:cm id="{D2}" authorId="{A1}" created="2026-04-01T10:05:00.000">
    <cm:txBody><a:p><a:r><a:t>Update the totals</a:t></a:r></a:p></cm:txBody>
  </cm:cm>
  <cm:cm id="{D3}" authorId="{A1}" created="2026-04-01T10:10:00.000" status="closed">
    <cm:txBody><a:p><a:r><a:t>Stale question</a:t></a:r></a:p></cm:txBody>
  </cm:cm>
</cm:cmLst>`

// writeSavedDeck builds a zipped saved copy of a deck whose slide 1
// carries one resolved, one active, and one closed comment.
func writeSavedDeck(t *testing.T, dir string) string {
	t.Helper()
	deck := filepath.Join(dir, "deck.pptx")
	parts := map[string]string{
		"ppt/authors.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p188:authorLst xmlns:p188="http://schemas.microsoft.com/office/powerpoint/2018/8/main">
  <p188:author id="{A1}" name="Ada Lovelace" initials="AL"/>
</p188:authorLst>`,
		"ppt/slides/slide1.xml":            `<p:sld/>`,
		"ppt/slides/_rels/slide1.xml.rels": savedSlide1Rels,
		"ppt/comments/modernComment_1.xml": savedComments1XML,
	}
	f, err := os.Create(deck)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, content := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return deck
}

func TestRefreshReportsSavedStatusAsOfLastSave(t *testing.T) {
	deck := writeSavedDeck(t, t.TempDir())

	fake := automation.NewFake()
	win := fake.AddWindow("deck.pptx", deck, 2)
	win.AddComment(1, automation.CommentRecord{Author: "Ada Lovelace", Text: "Tighten the intro"})
	win.AddComment(1, automation.CommentRecord{Author: "Ada Lovelace", Text: "Update the totals"})
	win.AddComment(1, automation.CommentRecord{Author: "Ada Lovelace", Text: "Stale question"})

	announcer := &host.QueueAnnouncer{}
	w, err := New(Options{
		Config:    testConfig(),
		Connector: fake,
		Cache:     cache.New(),
		Resolver:  resolution.New(resolution.Options{LiveRead: true}),
		Announcer: announcer,
	})
	require.NoError(t, err)
	w.Start()
	t.Cleanup(func() { w.Stop() })
	require.Eventually(t, fake.SubscriptionOpen, 3*time.Second, 5*time.Millisecond)

	resp := submitAndWait(t, w, Request{Kind: ReqRefreshStatus})
	require.Equal(t, RespSlideChanged, resp.Kind)
	assert.Equal(t, cache.FreshnessStaleCached, resp.Snapshot.Freshness)

	// An on-demand read sees the file only as of its last save, and the
	// announcement must say so.
	assert.Eventually(t, func() bool {
		return contains(announcer.Texts(),
			"Slide 1: 3 comments, 1 resolved, 1 closed as of last save")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestNonNormalViewSwitchedAndAnnounced(t *testing.T) {
	fake := automation.NewFake()
	win := fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 2)
	win.SetView(automation.ViewSlideSorter)

	_, announcer := startWorker(t, fake, nil)

	assert.Eventually(t, func() bool {
		return contains(announcer.Texts(), "Switched to Normal view")
	}, 3*time.Second, 10*time.Millisecond)

	vt, err := win.ViewType()
	require.NoError(t, err)
	assert.Equal(t, automation.ViewNormal, vt)
}

func TestStopClosesResponseStream(t *testing.T) {
	fake := automation.NewFake()
	fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 2)
	w, _ := startWorker(t, fake, nil)

	require.NoError(t, w.Stop())

	// Consumers ranging over Responses() must see the channel close.
	select {
	case _, ok := <-w.Responses():
		if ok {
			// Drain any responses emitted before shutdown.
			for range w.Responses() {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("response channel still open after Stop")
	}
}

func TestFocusCommentWithoutNavigatorFailsVisibly(t *testing.T) {
	fake := automation.NewFake()
	fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 2)
	w, _ := startWorker(t, fake, nil)

	resp := submitAndWait(t, w, Request{Kind: ReqFocusComment, Ordinal: 3})
	require.Equal(t, RespError, resp.Kind)
	assert.Equal(t, "focus-not-found", resp.ErrKind)
}

func TestMentionOfRosterUserAnnounced(t *testing.T) {
	fake := automation.NewFake()
	win := fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 3)
	win.AddComment(2, automation.CommentRecord{
		Author: "Sam Okafor",
		Text:   "@Dana please review the totals",
	})

	roster, err := identity.Parse([]byte(`{"users": [{"display_name": "Dana Reyes", "aliases": ["Dana"]}]}`))
	require.NoError(t, err)

	announcer := &host.QueueAnnouncer{}
	w, err := New(Options{
		Config:    testConfig(),
		Connector: fake,
		Cache:     cache.New(),
		Roster:    roster,
		Announcer: announcer,
	})
	require.NoError(t, err)
	w.Start()
	t.Cleanup(func() { w.Stop() })
	require.Eventually(t, fake.SubscriptionOpen, 3*time.Second, 5*time.Millisecond)

	fake.SelectSlide(win, 2)
	assert.Eventually(t, func() bool {
		return contains(announcer.Texts(), "Slide 2: 1 comment, status unknown, mentions you")
	}, 3*time.Second, 10*time.Millisecond)

	// A slide without mentions must not carry the flag over.
	fake.SelectSlide(win, 3)
	assert.Eventually(t, func() bool {
		return contains(announcer.Texts(), "Slide 3: no comments")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRequestsWhileDetachedReportNotAttached(t *testing.T) {
	fake := automation.NewFake()
	fake.NotRunning = true
	fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 2)
	w, _ := startWorker(t, fake, nil)

	resp := submitAndWait(t, w, Request{Kind: ReqNavigateSlide, Direction: 1})
	require.Equal(t, RespError, resp.Kind)
	assert.Equal(t, "not-attached", resp.ErrKind)
}

func TestTwoWindowsObservedIndependently(t *testing.T) {
	fake := automation.NewFake()
	a := fake.AddWindow("a.pptx", "/tmp/a.pptx", 3)
	b := fake.AddWindow("b.pptx", "/tmp/b.pptx", 3)
	b.AddComment(2, automation.CommentRecord{Author: "Bo", Text: "typo here"})

	_, announcer := startWorker(t, fake, nil)

	fake.SelectSlide(a, 2)
	fake.SelectSlide(b, 2)

	assert.Eventually(t, func() bool {
		texts := announcer.Texts()
		return contains(texts, "Slide 2: no comments") &&
			contains(texts, "Slide 2: 1 comment, status unknown")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSlideShowBeginSeedsFirstSlide(t *testing.T) {
	fake := automation.NewFake()
	win := fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 1)
	win.AddComment(1, automation.CommentRecord{Author: "Ana", Text: "title fix"})

	_, announcer := startWorker(t, fake, nil)

	assert.Eventually(t, func() bool { return announcer.Len() >= 1 }, 3*time.Second, 10*time.Millisecond)

	fake.InjectShowBegin(win)
	// Same values as the attach observation: nothing new to announce, but
	// the observation must not be missing either.
	time.Sleep(200 * time.Millisecond)
	texts := announcer.Texts()
	assert.True(t, contains(texts, "Slide 1: 1 comment, status unknown"))
}

func TestSlideShowNextAnnouncesTransition(t *testing.T) {
	fake := automation.NewFake()
	win := fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 4)
	_, announcer := startWorker(t, fake, nil)

	fake.InjectShowBegin(win)
	fake.InjectShowNext(win, 2)
	fake.InjectShowNext(win, 3)

	assert.Eventually(t, func() bool {
		texts := announcer.Texts()
		return contains(texts, "Slide 2: no comments") && contains(texts, "Slide 3: no comments")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSlideShowEndAnnounced(t *testing.T) {
	fake := automation.NewFake()
	win := fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 2)
	_, announcer := startWorker(t, fake, nil)

	fake.InjectShowBegin(win)
	fake.Inject(automation.Event{Kind: automation.EventSlideShowEnd})

	assert.Eventually(t, func() bool {
		return contains(announcer.Texts(), "Slide show ended")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestOrphanSelectionFallsBackToActiveWindow(t *testing.T) {
	fake := automation.NewFake()
	win := fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 3)
	win.SetNotes(3, "closing")
	_, announcer := startWorker(t, fake, nil)

	// The payload cannot name its window; the resolver must fall back to
	// the editor's active-window bookkeeping instead of dropping the event.
	fake.SetActive(win)
	win.GoToSlide(3)
	fake.Inject(automation.Event{
		Kind:      automation.EventSelectionChanged,
		Selection: automation.NewOrphanSelection(automation.ErrRemoteCall),
	})

	assert.Eventually(t, func() bool {
		return contains(announcer.Texts(), "Slide 3: no comments, notes present")
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStopReleasesSubscription(t *testing.T) {
	fake := automation.NewFake()
	fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 2)

	announcer := &host.QueueAnnouncer{}
	w, err := New(Options{
		Config:    testConfig(),
		Connector: fake,
		Cache:     cache.New(),
		Announcer: announcer,
	})
	require.NoError(t, err)
	w.Start()

	assert.Eventually(t, fake.SubscriptionOpen, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())
	assert.False(t, fake.SubscriptionOpen())

	// Stop is idempotent.
	require.NoError(t, w.Stop())
}

func TestStopBoundedWhenEditorHangs(t *testing.T) {
	fake := automation.NewFake()
	fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 2)
	fake.PumpHang = 10 * time.Second

	cfg := testConfig()
	cfg.Worker.ShutdownTimeoutSec = 1

	w, err := New(Options{
		Config:    cfg,
		Connector: fake,
		Cache:     cache.New(),
		Announcer: &host.QueueAnnouncer{},
	})
	require.NoError(t, err)
	w.Start()
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	err = w.Stop()
	require.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStalenessProbeForcesReattach(t *testing.T) {
	fake := automation.NewFake()
	fake.AddWindow("deck.pptx", "/tmp/deck.pptx", 2)

	cfg := testConfig()
	cfg.Worker.StalenessTimeoutSec = 1

	_, _ = startWorker(t, fake, cfg)
	assert.Eventually(t, fake.SubscriptionOpen, 3*time.Second, 10*time.Millisecond)

	// Kill the instance behind the worker's back: the probe must notice
	// and release the dead registration.
	fake.NameErr = automation.ErrRemoteCall
	fake.NotRunning = true

	assert.Eventually(t, func() bool { return !fake.SubscriptionOpen() },
		5*time.Second, 20*time.Millisecond)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{Connector: automation.NewFake()})
	require.Error(t, err)

	_, err = New(Options{Connector: automation.NewFake(), Cache: cache.New()})
	require.Error(t, err)
}
