package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	winA = WindowHandle{Presentation: "a.pptx", RawHandle: 0x1000}
	winB = WindowHandle{Presentation: "b.pptx", RawHandle: 0x1001}
)

func TestUpdateReflectsMostRecentObservation(t *testing.T) {
	c := New()

	c.Update(winA, 1, 2, false)
	c.Update(winA, 1, 3, false)
	c.Update(winA, 1, 5, true)

	snap, ok := c.Get(winA, 1)
	require.True(t, ok)
	assert.Equal(t, 5, snap.CommentCount)
	assert.True(t, snap.NotesPresent)
}

func TestUpdateIdempotentOnSameValues(t *testing.T) {
	c := New()

	_, changed := c.Update(winA, 2, 4, true)
	assert.True(t, changed)

	_, changed = c.Update(winA, 2, 4, true)
	assert.False(t, changed, "same-value update must not report a change")

	_, changed = c.Update(winA, 2, 5, true)
	assert.True(t, changed)
}

func TestTwoWindowIsolation(t *testing.T) {
	c := New()

	// Interleaved events from two windows must never cross-contaminate.
	c.Update(winA, 1, 1, false)
	c.Update(winB, 1, 9, true)
	c.Update(winA, 1, 2, false)
	c.Update(winB, 1, 8, true)

	a, ok := c.Get(winA, 1)
	require.True(t, ok)
	b, ok := c.Get(winB, 1)
	require.True(t, ok)

	assert.Equal(t, 2, a.CommentCount)
	assert.False(t, a.NotesPresent)
	assert.Equal(t, 8, b.CommentCount)
	assert.True(t, b.NotesPresent)
}

func TestMergeResolutionTouchesOnlyResolutionFields(t *testing.T) {
	c := New()
	c.Update(winA, 3, 7, true)

	before, _ := c.Get(winA, 3)

	summary := ResolutionSummary{Active: 4, Resolved: 2, Unknown: 1}
	merged, changed := c.MergeResolution(winA, 3, summary, FreshnessStaleCached)
	require.True(t, changed)

	// Only the resolution summary and freshness flag may differ.
	assert.Equal(t, before.SlideIndex, merged.SlideIndex)
	assert.Equal(t, before.CommentCount, merged.CommentCount)
	assert.Equal(t, before.NotesPresent, merged.NotesPresent)
	assert.Equal(t, before.Observed, merged.Observed)
	assert.Equal(t, summary, merged.Resolution)
	assert.Equal(t, FreshnessStaleCached, merged.Freshness)

	_, changed = c.MergeResolution(winA, 3, summary, FreshnessStaleCached)
	assert.False(t, changed)
}

func TestMergeResolutionUnknownKeyIsNoOp(t *testing.T) {
	c := New()
	_, changed := c.MergeResolution(winA, 1, ResolutionSummary{Active: 1}, FreshnessFresh)
	assert.False(t, changed)
	_, ok := c.Get(winA, 1)
	assert.False(t, ok)
}

func TestResolutionSurvivesUnchangedUpdate(t *testing.T) {
	c := New()
	c.Update(winA, 1, 3, false)
	c.MergeResolution(winA, 1, ResolutionSummary{Active: 3}, FreshnessStaleCached)

	// Re-observing identical comment data keeps the merged resolution.
	snap, changed := c.Update(winA, 1, 3, false)
	assert.False(t, changed)
	assert.Equal(t, 3, snap.Resolution.Active)

	// A real change resets it: old counts no longer describe the slide.
	snap, changed = c.Update(winA, 1, 4, false)
	assert.True(t, changed)
	assert.Equal(t, ResolutionSummary{}, snap.Resolution)
	assert.Equal(t, FreshnessUnknown, snap.Freshness)
}

func TestLastSlideAndDropWindow(t *testing.T) {
	c := New()
	c.Update(winA, 1, 0, false)
	c.Update(winA, 4, 0, false)
	assert.Equal(t, 4, c.LastSlide(winA))

	c.DropWindow(winA)
	assert.Equal(t, 0, c.LastSlide(winA))
	_, ok := c.Get(winA, 4)
	assert.False(t, ok)
}
