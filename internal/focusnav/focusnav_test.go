package focusnav

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidebridge/internal/cache"
)

// fakeElement is a scripted accessibility-tree node.
type fakeElement struct {
	role     string
	id       string
	name     string
	children []*fakeElement

	focused  bool
	invoked  int
	toggled  bool
	stale    bool
	focusErr error
	onInvoke func()
}

func (e *fakeElement) Role() string         { return e.role }
func (e *fakeElement) AutomationID() string { return e.id }
func (e *fakeElement) Name() string         { return e.name }

func (e *fakeElement) Children() ([]Element, error) {
	if e.stale {
		return nil, ErrStale
	}
	out := make([]Element, len(e.children))
	for i, c := range e.children {
		out[i] = c
	}
	return out, nil
}

func (e *fakeElement) SetFocus() error {
	if e.focusErr != nil {
		return e.focusErr
	}
	e.focused = true
	return nil
}

func (e *fakeElement) Invoke() error {
	e.invoked++
	e.toggled = !e.toggled
	if e.onInvoke != nil {
		e.onInvoke()
	}
	return nil
}

func (e *fakeElement) Toggled() (bool, error) {
	return e.toggled, nil
}

// fakeTree hands out a scripted root, optionally rebuilding it on every
// resolve after the first.
type fakeTree struct {
	root    *fakeElement
	rebuild func() *fakeElement
	calls   int
}

func (t *fakeTree) Root(window cache.WindowHandle) (Element, error) {
	t.calls++
	if t.rebuild != nil && t.calls > 1 {
		t.root = t.rebuild()
	}
	return t.root, nil
}

var testWindow = cache.WindowHandle{Presentation: "deck.pptx", RawHandle: 0x1000}

// newPaneTree builds a window root containing a visible comment pane with
// the given number of comment cards.
func newPaneTree(cards int) (*fakeElement, *fakeElement) {
	list := &fakeElement{role: RoleList, id: "CommentList"}
	for i := 0; i < cards; i++ {
		list.children = append(list.children, &fakeElement{role: RoleListItem})
	}
	pane := &fakeElement{role: RolePane, id: CommentPaneID, children: []*fakeElement{list}}
	root := &fakeElement{
		role: RolePane,
		id:   "SlideWindow",
		children: []*fakeElement{
			{role: RoleButton, id: CommentPaneToggleID, toggled: true},
			pane,
		},
	}
	return root, pane
}

func TestFocusCommentByOrdinal(t *testing.T) {
	root, pane := newPaneTree(3)
	nav := New(&fakeTree{root: root}, nil)

	assert.Equal(t, StatusOK, nav.FocusComment(testWindow, 2))

	list := pane.children[0]
	assert.False(t, list.children[0].focused)
	assert.True(t, list.children[1].focused)
	assert.False(t, list.children[2].focused)
}

func TestFocusCommentBeyondCountReturnsNotFound(t *testing.T) {
	root, _ := newPaneTree(2)
	nav := New(&fakeTree{root: root}, nil)

	assert.Equal(t, StatusNotFound, nav.FocusComment(testWindow, 3))
	assert.Equal(t, StatusNotFound, nav.FocusComment(testWindow, 0))
	assert.Equal(t, StatusNotFound, nav.FocusComment(testWindow, -1))
}

func TestFocusCommentShowsHiddenPane(t *testing.T) {
	// Pane absent until the toggle is invoked; the invoke materializes the
	// pane subtree under the window root, as the editor does.
	toggleBtn := &fakeElement{role: RoleButton, id: CommentPaneToggleID}
	root := &fakeElement{role: RolePane, id: "SlideWindow", children: []*fakeElement{toggleBtn}}
	toggleBtn.onInvoke = func() {
		paneRoot, _ := newPaneTree(1)
		root.children = append(root.children, paneRoot.children[1])
	}
	nav := New(&fakeTree{root: root}, nil)

	assert.Equal(t, StatusOK, nav.FocusComment(testWindow, 1))
	assert.Equal(t, 1, toggleBtn.invoked)
}

func TestFocusCommentNeverHidesVisiblePane(t *testing.T) {
	root, _ := newPaneTree(1)
	toggleBtn := root.children[0]
	nav := New(&fakeTree{root: root}, nil)

	nav.FocusComment(testWindow, 1)
	// The pane was already visible; a blind invoke would have hidden it.
	assert.Equal(t, 0, toggleBtn.invoked)
	assert.True(t, toggleBtn.toggled)
}

func TestFocusCommentToggleOnButPaneMissing(t *testing.T) {
	// Toggle reports on yet no pane exists: invoking would hide nothing
	// and flipping it blind is wrong, so the pane stays unreachable.
	toggleBtn := &fakeElement{role: RoleButton, id: CommentPaneToggleID, toggled: true}
	root := &fakeElement{role: RolePane, children: []*fakeElement{toggleBtn}}
	nav := New(&fakeTree{root: root}, nil)

	assert.Equal(t, StatusPaneHidden, nav.FocusComment(testWindow, 1))
	assert.Equal(t, 0, toggleBtn.invoked)
}

func TestFocusCommentPaneHidden(t *testing.T) {
	// No pane and no toggle control anywhere.
	root := &fakeElement{role: RolePane, id: "SlideWindow"}
	nav := New(&fakeTree{root: root}, nil)

	assert.Equal(t, StatusPaneHidden, nav.FocusComment(testWindow, 1))
}

func TestFocusCommentRetriesStaleTreeOnce(t *testing.T) {
	staleRoot, _ := newPaneTree(2)
	staleRoot.stale = true

	tree := &fakeTree{root: staleRoot}
	tree.rebuild = func() *fakeElement {
		fresh, _ := newPaneTree(2)
		return fresh
	}
	nav := New(tree, nil)

	assert.Equal(t, StatusOK, nav.FocusComment(testWindow, 1))
	assert.Equal(t, 2, tree.calls)
}

func TestFocusCommentStaleTwiceReturnsNotFound(t *testing.T) {
	staleRoot, _ := newPaneTree(2)
	staleRoot.stale = true

	tree := &fakeTree{root: staleRoot}
	tree.rebuild = func() *fakeElement { return staleRoot }
	nav := New(tree, nil)

	assert.Equal(t, StatusNotFound, nav.FocusComment(testWindow, 1))
	assert.Equal(t, 2, tree.calls)
}

func TestFocusFailureIsNotFoundNotPanic(t *testing.T) {
	root, pane := newPaneTree(1)
	pane.children[0].children[0].focusErr = errors.New("element rejected focus")
	nav := New(&fakeTree{root: root}, nil)

	require.NotPanics(t, func() {
		assert.Equal(t, StatusNotFound, nav.FocusComment(testWindow, 1))
	})
}
