// Package cache holds the worker-owned per-window state snapshots.
//
// The cache is owned exclusively by the automation worker's apartment
// thread: every read and write happens there, so the cache carries no
// locks. Cross-thread access goes through the worker's request queue and
// receives snapshot copies, never live references.
package cache

import "time"

// WindowHandle identifies one open document window. Created on first
// observation, discarded when the window closes; never persisted.
type WindowHandle struct {
	// Presentation is the document identity (path, or title if unsaved).
	Presentation string

	// RawHandle is the platform window handle.
	RawHandle uintptr
}

// Freshness marks whether resolution data reflects live state.
type Freshness int

const (
	// FreshnessUnknown means no resolution data is available.
	FreshnessUnknown Freshness = iota
	// FreshnessFresh means resolution data reflects the current in-memory
	// document.
	FreshnessFresh
	// FreshnessStaleCached means resolution data reflects the last-saved
	// file only.
	FreshnessStaleCached
)

// String returns the freshness name.
func (f Freshness) String() string {
	switch f {
	case FreshnessFresh:
		return "fresh"
	case FreshnessStaleCached:
		return "stale-cached"
	default:
		return "unknown"
	}
}

// ResolutionSummary counts comment threads by resolution status.
type ResolutionSummary struct {
	Active   int
	Resolved int
	Closed   int
	Unknown  int
}

// SlideSnapshot is the cached observation of one (window, slide) pair.
type SlideSnapshot struct {
	SlideIndex   int
	CommentCount int
	NotesPresent bool
	Resolution   ResolutionSummary
	Freshness    Freshness
	Observed     time.Time
}

type key struct {
	window WindowHandle
	slide  int
}

// Cache stores SlideSnapshots keyed by (window, slide index). Entries are
// overwritten per observation and never explicitly evicted; the population
// is bounded by slide count times open windows.
type Cache struct {
	snapshots map[key]SlideSnapshot
	lastSlide map[WindowHandle]int
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		snapshots: make(map[key]SlideSnapshot),
		lastSlide: make(map[WindowHandle]int),
	}
}

// Update overwrites the snapshot for (window, slide). Returns the stored
// snapshot and whether anything observable changed; a same-value update is
// a no-op so callers never re-announce unchanged state. Resolution fields
// survive an unchanged update and reset when the comment data moved.
func (c *Cache) Update(w WindowHandle, slide, commentCount int, notesPresent bool) (SlideSnapshot, bool) {
	k := key{window: w, slide: slide}
	c.lastSlide[w] = slide

	if prev, ok := c.snapshots[k]; ok &&
		prev.CommentCount == commentCount && prev.NotesPresent == notesPresent {
		return prev, false
	}

	snap := SlideSnapshot{
		SlideIndex:   slide,
		CommentCount: commentCount,
		NotesPresent: notesPresent,
		Freshness:    FreshnessUnknown,
		Observed:     time.Now(),
	}
	c.snapshots[k] = snap
	return snap, true
}

// Get returns the snapshot for (window, slide), if one exists.
func (c *Cache) Get(w WindowHandle, slide int) (SlideSnapshot, bool) {
	snap, ok := c.snapshots[key{window: w, slide: slide}]
	return snap, ok
}

// MergeResolution updates only the resolution summary and freshness flag of
// an existing snapshot, leaving the rest untouched. Returns the merged
// snapshot and whether the resolution fields changed. Merging into a key
// that was never observed is a no-op: the resolver runs on its own schedule
// and may outpace slide observation.
func (c *Cache) MergeResolution(w WindowHandle, slide int, summary ResolutionSummary, fresh Freshness) (SlideSnapshot, bool) {
	k := key{window: w, slide: slide}
	prev, ok := c.snapshots[k]
	if !ok {
		return SlideSnapshot{}, false
	}
	if prev.Resolution == summary && prev.Freshness == fresh {
		return prev, false
	}
	prev.Resolution = summary
	prev.Freshness = fresh
	c.snapshots[k] = prev
	return prev, true
}

// LastSlide returns the window's last observed slide index, 0 if never
// observed.
func (c *Cache) LastSlide(w WindowHandle) int {
	return c.lastSlide[w]
}

// DropWindow discards all state for a closed window.
func (c *Cache) DropWindow(w WindowHandle) {
	delete(c.lastSlide, w)
	for k := range c.snapshots {
		if k.window == w {
			delete(c.snapshots, k)
		}
	}
}

// Windows returns the handles with cached state.
func (c *Cache) Windows() []WindowHandle {
	out := make([]WindowHandle, 0, len(c.lastSlide))
	for w := range c.lastSlide {
		out = append(out, w)
	}
	return out
}
