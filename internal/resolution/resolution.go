// Package resolution recovers comment resolution status, the one field the
// primary automation interface never exposes.
//
// The design is tiered. Tier 1 reads the saved document file through a
// point-in-time snapshot (copy, then parse), so an editor holding the file
// open never blocks the read; the result reflects last-saved state only.
// Tier 2, when direct reads are not permitted, re-reads the file after each
// save-completed signal, tolerating the brief window where the file is
// still transiently locked. Tier 3 surfaces no status at all and flags
// everything unknown rather than guessing.
//
// Correlation with the primary interface's comments is probabilistic by
// construction: the two sources share no stable identifier. A failed
// correlation degrades to unknown, never to a wrong guess.
package resolution

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"slidebridge/internal/automation"
	"slidebridge/internal/cache"
)

// ErrUnavailable means no tier could produce resolution data.
var ErrUnavailable = errors.New("resolution: unavailable")

// Options configures a Resolver.
type Options struct {
	// LiveRead permits Tier-1 on-demand reads of the saved file. When
	// false, reads only happen after save events (Tier 2).
	LiveRead bool

	// RetryAttempts bounds re-reads while the file is transiently locked.
	RetryAttempts int

	// RetryBackoff is the initial backoff between attempts, doubled each
	// retry.
	RetryBackoff time.Duration

	// Log receives degraded-path diagnostics.
	Log *slog.Logger
}

// Resolver reads saved documents and merges status into comment records.
type Resolver struct {
	opts Options
	log  *slog.Logger
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{opts: opts, log: log}
}

// LiveRead reports whether Tier-1 on-demand reads are permitted.
func (r *Resolver) LiveRead() bool {
	return r.opts.LiveRead
}

// DocComments is the comment state of one saved document, keyed by 1-based
// slide index.
type DocComments struct {
	Path   string
	Slides map[int][]automation.CommentRecord
}

// ReadSaved reads the document at path with bounded retries. The file may
// be transiently locked right after a save; each failed attempt backs off
// twice as long as the last.
func (r *Resolver) ReadSaved(path string) (*DocComments, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: document never saved", ErrUnavailable)
	}

	backoff := r.opts.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= r.opts.RetryAttempts; attempt++ {
		doc, err := readSnapshot(path)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if os.IsNotExist(err) {
			break
		}
		r.log.Debug("saved-file read failed, retrying",
			"path", path, "attempt", attempt, "error", err)
		if attempt < r.opts.RetryAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// Summarize counts a slide's comment threads by status. Replies do not
// count: status belongs to the thread.
func Summarize(comments []automation.CommentRecord) cache.ResolutionSummary {
	var s cache.ResolutionSummary
	for _, c := range comments {
		switch c.Status {
		case automation.StatusActive:
			s.Active++
		case automation.StatusResolved:
			s.Resolved++
		case automation.StatusClosed:
			s.Closed++
		default:
			s.Unknown++
		}
	}
	return s
}

// UnknownSummary is the Tier-3 fallback: n threads, all unknown.
func UnknownSummary(n int) cache.ResolutionSummary {
	return cache.ResolutionSummary{Unknown: n}
}
