package worker

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidebridge/internal/automation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// attachedApp attaches a throwaway sink and returns the fake's
// Application view.
func attachedApp(t *testing.T, fake *automation.Fake) automation.Application {
	t.Helper()
	app, _, err := fake.Attach(automation.NewSink(nil))
	require.NoError(t, err)
	return app
}

func TestResolveDirectFromPayload(t *testing.T) {
	fake := automation.NewFake()
	winA := fake.AddWindow("a.pptx", "/tmp/a.pptx", 2)
	winB := fake.AddWindow("b.pptx", "/tmp/b.pptx", 2)
	// The editor thinks B is active, but the payload came from A. The
	// direct strategy must win over the active-window bookkeeping.
	fake.SetActive(winB)
	app := attachedApp(t, fake)

	r := newWindowResolver(app, testLogger())
	r.foreground = func() uintptr { return 0 }

	win, conf, err := r.Resolve(automation.NewSelectionFor(winA))
	require.NoError(t, err)
	assert.Equal(t, ResolveDirect, conf)

	name, err := win.PresentationName()
	require.NoError(t, err)
	assert.Equal(t, "a.pptx", name)
}

func TestResolveByForegroundHandle(t *testing.T) {
	fake := automation.NewFake()
	winA := fake.AddWindow("a.pptx", "/tmp/a.pptx", 2)
	winB := fake.AddWindow("b.pptx", "/tmp/b.pptx", 2)
	fake.SetActive(winA)
	app := attachedApp(t, fake)

	r := newWindowResolver(app, testLogger())
	r.foreground = func() uintptr { return winB.HandleID() }

	win, conf, err := r.Resolve(automation.NewOrphanSelection(automation.ErrRemoteCall))
	require.NoError(t, err)
	assert.Equal(t, ResolveForeground, conf)

	name, err := win.PresentationName()
	require.NoError(t, err)
	assert.Equal(t, "b.pptx", name)
}

func TestResolveByActiveFlag(t *testing.T) {
	fake := automation.NewFake()
	fake.AddWindow("a.pptx", "/tmp/a.pptx", 2)
	winB := fake.AddWindow("b.pptx", "/tmp/b.pptx", 2)
	fake.SetActive(winB)
	app := attachedApp(t, fake)

	r := newWindowResolver(app, testLogger())
	r.foreground = func() uintptr { return 0 }

	win, conf, err := r.Resolve(automation.NewOrphanSelection(automation.ErrRemoteCall))
	require.NoError(t, err)
	assert.Equal(t, ResolveActiveFlag, conf)

	name, err := win.PresentationName()
	require.NoError(t, err)
	assert.Equal(t, "b.pptx", name)
}

func TestResolveFailsWithNoWindows(t *testing.T) {
	fake := automation.NewFake()
	app := attachedApp(t, fake)

	r := newWindowResolver(app, testLogger())
	r.foreground = func() uintptr { return 0 }

	_, conf, err := r.Resolve(automation.NewOrphanSelection(automation.ErrRemoteCall))
	require.ErrorIs(t, err, ErrWindowAmbiguous)
	assert.Equal(t, ResolveFailed, conf)
}

func TestResolveNilSelectionUsesFallbacks(t *testing.T) {
	fake := automation.NewFake()
	win := fake.AddWindow("a.pptx", "/tmp/a.pptx", 2)
	fake.SetActive(win)
	app := attachedApp(t, fake)

	r := newWindowResolver(app, testLogger())
	r.foreground = func() uintptr { return 0 }

	got, conf, err := r.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, ResolveActiveFlag, conf)
	assert.NotNil(t, got)
}
