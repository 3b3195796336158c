// Package focusnav locates and focuses elements in the editor's
// accessibility tree, independently of the automation protocol.
//
// Element handles are ephemeral: the editor may rebuild a pane between
// locating it and using it, so nothing here is cached across operations.
// Every navigation re-resolves from the window root, and a stale handle is
// retried once by re-locating before giving up.
package focusnav

import (
	"errors"
	"log/slog"

	"slidebridge/internal/cache"
)

// Structural identifiers of the comment pane. Stable across display
// languages; localized pane titles are never matched.
const (
	// CommentPaneID is the pane root's automation id.
	CommentPaneID = "CommentsPane"

	// CommentPaneToggleID is the ribbon control that shows or hides the
	// pane. It is a toggle: invoking it while the pane is visible hides
	// the pane.
	CommentPaneToggleID = "ShowComments"
)

// Element roles used by the navigator.
const (
	RolePane     = "pane"
	RoleList     = "list"
	RoleListItem = "listitem"
	RoleButton   = "button"
)

// ErrStale marks an element handle invalidated by a tree rebuild.
var ErrStale = errors.New("focusnav: stale element")

// Element is one node of the accessibility tree. Handles are valid only
// until the next tree mutation; callers re-resolve instead of storing
// them.
type Element interface {
	// Role returns the element's control role.
	Role() string

	// AutomationID returns the element's stable structural identifier.
	AutomationID() string

	// Name returns the element's (localized) display name.
	Name() string

	// Children returns the element's children. Fails with ErrStale when
	// the handle outlived a rebuild.
	Children() ([]Element, error)

	// SetFocus requests input focus on the element. This only requests:
	// the host's focus tracking may react later, and callers must not
	// assume the next focus read reflects the change.
	SetFocus() error

	// Invoke activates the element (press a button, toggle a control).
	Invoke() error

	// Toggled reports a toggle control's current state.
	Toggled() (bool, error)
}

// TreeProvider resolves a window's accessibility tree root on demand.
type TreeProvider interface {
	// Root returns the tree root for the given window.
	Root(window cache.WindowHandle) (Element, error)
}

// Status is the outcome of a focus operation.
type Status int

const (
	// StatusOK means focus was requested on the target element.
	StatusOK Status = iota
	// StatusNotFound means the target does not exist (after one retry).
	StatusNotFound
	// StatusPaneHidden means the comment pane could not be made visible.
	StatusPaneHidden
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not-found"
	case StatusPaneHidden:
		return "pane-hidden"
	default:
		return "unknown"
	}
}

// Navigator moves input focus inside the editor's accessibility tree.
type Navigator struct {
	provider TreeProvider
	log      *slog.Logger
}

// New creates a Navigator over the given tree provider.
func New(provider TreeProvider, log *slog.Logger) *Navigator {
	if log == nil {
		log = slog.Default()
	}
	return &Navigator{provider: provider, log: log}
}

// FocusComment moves input focus to the comment card at the given 1-based
// ordinal in the window's comment pane. The whole locate-and-select runs
// twice on a stale tree before reporting not-found.
func (n *Navigator) FocusComment(window cache.WindowHandle, ordinal int) Status {
	status, err := n.focusCommentOnce(window, ordinal)
	if errors.Is(err, ErrStale) {
		n.log.Debug("accessibility tree rebuilt mid-navigation, re-locating",
			"window", window.Presentation, "ordinal", ordinal)
		status, err = n.focusCommentOnce(window, ordinal)
	}
	if err != nil {
		n.log.Warn("comment focus failed",
			"window", window.Presentation, "ordinal", ordinal, "error", err)
		return StatusNotFound
	}
	return status
}

func (n *Navigator) focusCommentOnce(window cache.WindowHandle, ordinal int) (Status, error) {
	if ordinal < 1 {
		return StatusNotFound, nil
	}

	root, err := n.provider.Root(window)
	if err != nil {
		return StatusNotFound, err
	}

	pane, err := n.ensurePaneVisible(root)
	if err != nil {
		return StatusNotFound, err
	}
	if pane == nil {
		return StatusPaneHidden, nil
	}

	items, err := n.listItems(pane)
	if err != nil {
		return StatusNotFound, err
	}
	if ordinal > len(items) {
		return StatusNotFound, nil
	}

	if err := items[ordinal-1].SetFocus(); err != nil {
		return StatusNotFound, err
	}
	return StatusOK, nil
}

// ensurePaneVisible returns the comment pane root, showing it first if
// needed. The show control is a toggle, so its state is checked before
// invoking: a blind invoke on a visible pane would hide it instead.
func (n *Navigator) ensurePaneVisible(root Element) (Element, error) {
	pane, err := findByAutomationID(root, CommentPaneID)
	if err != nil {
		return nil, err
	}
	if pane != nil {
		return pane, nil
	}

	toggle, err := findByAutomationID(root, CommentPaneToggleID)
	if err != nil {
		return nil, err
	}
	if toggle == nil {
		return nil, nil
	}

	on, err := toggle.Toggled()
	if err != nil {
		return nil, err
	}
	if !on {
		if err := toggle.Invoke(); err != nil {
			return nil, err
		}
	}

	// The pane materializes in the tree after the toggle lands.
	return findByAutomationID(root, CommentPaneID)
}

// listItems returns the pane's comment cards in tree order.
func (n *Navigator) listItems(pane Element) ([]Element, error) {
	var items []Element
	err := walk(pane, func(el Element) bool {
		if el.Role() == RoleListItem {
			items = append(items, el)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// findByAutomationID searches the subtree for an element with the given
// automation id. Returns nil when absent.
func findByAutomationID(root Element, id string) (Element, error) {
	var found Element
	err := walk(root, func(el Element) bool {
		if el.AutomationID() == id {
			found = el
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// walk visits the subtree depth-first until visit returns false.
func walk(el Element, visit func(Element) bool) error {
	if !visit(el) {
		return nil
	}
	children, err := el.Children()
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := walk(child, visit); err != nil {
			return err
		}
	}
	return nil
}
