package worker

import (
	"fmt"
	"strings"

	"slidebridge/internal/cache"
)

// FormatSlideAnnouncement renders one snapshot as the line handed to the
// screen-reading host. Kept deterministic: the same snapshot always
// renders the same line, so the idempotence check upstream is enough to
// prevent repeat announcements.
func FormatSlideAnnouncement(snap cache.SlideSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Slide %d: %s", snap.SlideIndex, countNoun(snap.CommentCount, "comment"))

	if snap.CommentCount > 0 {
		switch snap.Freshness {
		case cache.FreshnessFresh, cache.FreshnessStaleCached:
			if snap.Resolution.Resolved > 0 {
				fmt.Fprintf(&b, ", %d resolved", snap.Resolution.Resolved)
			}
			if snap.Resolution.Closed > 0 {
				fmt.Fprintf(&b, ", %d closed", snap.Resolution.Closed)
			}
			if snap.Resolution.Unknown > 0 {
				fmt.Fprintf(&b, ", %d status unknown", snap.Resolution.Unknown)
			}
			if snap.Freshness == cache.FreshnessStaleCached {
				b.WriteString(" as of last save")
			}
		default:
			// No tier could run; say so rather than guess.
			b.WriteString(", status unknown")
		}
	}

	if snap.NotesPresent {
		b.WriteString(", notes present")
	}
	return b.String()
}

func countNoun(n int, noun string) string {
	switch n {
	case 0:
		return "no " + noun + "s"
	case 1:
		return "1 " + noun
	default:
		return fmt.Sprintf("%d %ss", n, noun)
	}
}
