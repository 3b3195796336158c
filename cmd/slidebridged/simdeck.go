package main

import (
	"fmt"
	"time"

	"slidebridge/internal/automation"
	"slidebridge/internal/cache"
	"slidebridge/internal/focusnav"
)

// buildSimDeck populates the fake connector with a small demo deck so
// slidectl can be exercised without a running editor.
func buildSimDeck(fake *automation.Fake) *automation.FakeWindow {
	win := fake.AddWindow("Quarterly Review.pptx", "", 8)

	base := time.Date(2026, time.August, 28, 14, 30, 0, 0, time.UTC)
	win.AddComment(2, automation.CommentRecord{
		Author:     "Dana Reyes",
		Text:       "Swap this chart for the Q3 one, the axis labels are wrong.",
		Created:    base,
		SlideIndex: 2,
		Replies: []automation.CommentRecord{
			{Author: "Sam Okafor", Text: "Fixed in the shared copy.", Created: base.Add(40 * time.Minute), SlideIndex: 2},
		},
	})
	win.AddComment(2, automation.CommentRecord{
		Author:     "Sam Okafor",
		Text:       "@Dana can you confirm the revenue number?",
		Created:    base.Add(time.Hour),
		SlideIndex: 2,
	})
	win.AddComment(5, automation.CommentRecord{
		Author:     "Dana Reyes",
		Text:       "This slide runs long, consider splitting it.",
		Created:    base.Add(2 * time.Hour),
		SlideIndex: 5,
	})

	win.SetNotes(1, "Welcome everyone, wait for the room to settle before starting.")
	win.SetNotes(5, "Keep this one under two minutes.")

	fake.SetActive(win)
	return win
}

// simTreeProvider serves an accessibility tree over the simulated deck.
// The comment pane lists the current slide's cards, rebuilt per lookup
// the way a real tree is.
type simTreeProvider struct {
	win *automation.FakeWindow
}

func newSimTreeProvider(win *automation.FakeWindow) *simTreeProvider {
	return &simTreeProvider{win: win}
}

func (p *simTreeProvider) Root(window cache.WindowHandle) (focusnav.Element, error) {
	idx, err := p.win.CurrentSlideIndex()
	if err != nil {
		return nil, err
	}
	slide, err := p.win.Slide(idx)
	if err != nil {
		return nil, err
	}
	comments, err := slide.Comments()
	if err != nil {
		return nil, err
	}

	items := make([]*simElement, 0, len(comments))
	for i, c := range comments {
		items = append(items, &simElement{
			role: focusnav.RoleListItem,
			id:   fmt.Sprintf("CommentCard%d", i+1),
			name: c.Author,
		})
	}
	list := &simElement{role: focusnav.RoleList, id: "CommentList", name: "Comments", children: items}
	pane := &simElement{role: focusnav.RolePane, id: focusnav.CommentPaneID, name: "Comments", children: []*simElement{list}}
	toggle := &simElement{role: focusnav.RoleButton, id: focusnav.CommentPaneToggleID, name: "Show Comments", toggled: true}
	return &simElement{
		role:     focusnav.RolePane,
		id:       "DocumentRoot",
		name:     window.Presentation,
		children: []*simElement{toggle, pane},
	}, nil
}

type simElement struct {
	role     string
	id       string
	name     string
	toggled  bool
	children []*simElement
}

func (e *simElement) Role() string         { return e.role }
func (e *simElement) AutomationID() string { return e.id }
func (e *simElement) Name() string         { return e.name }

func (e *simElement) Children() ([]focusnav.Element, error) {
	out := make([]focusnav.Element, len(e.children))
	for i, c := range e.children {
		out[i] = c
	}
	return out, nil
}

func (e *simElement) SetFocus() error        { return nil }
func (e *simElement) Invoke() error          { return nil }
func (e *simElement) Toggled() (bool, error) { return e.toggled, nil }
