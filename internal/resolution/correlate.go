package resolution

import (
	"strings"

	"slidebridge/internal/automation"
)

// prefixRunes is the length of the text prefix used as the correlation key.
const prefixRunes = 32

// Confidence grades one correlation.
type Confidence int

const (
	// ConfidenceNone means no saved comment could be matched.
	ConfidenceNone Confidence = iota
	// ConfidenceText means a comment elsewhere in the slide matched by
	// text prefix only.
	ConfidenceText
	// ConfidencePositional means ordinal position and text prefix agree.
	ConfidencePositional
)

// Correlation is the status recovered for one primary comment.
type Correlation struct {
	Status     automation.Status
	Confidence Confidence
}

// Correlate matches one slide's primary comments against the saved file's
// comments for the same slide. There is no stable shared identifier across
// the two sources, so the key is (ordinal position, text prefix): a
// probabilistic join, never a guaranteed one. Any comment that fails to
// correlate gets StatusUnknown; edited text between the two reads lands
// here deliberately.
func Correlate(primary, saved []automation.CommentRecord) []Correlation {
	out := make([]Correlation, len(primary))
	claimed := make([]bool, len(saved))

	// Pass 1: same ordinal, same prefix.
	for i, p := range primary {
		out[i] = Correlation{Status: automation.StatusUnknown}
		if i < len(saved) && samePrefix(p.Text, saved[i].Text) {
			out[i] = Correlation{Status: saved[i].Status, Confidence: ConfidencePositional}
			claimed[i] = true
		}
	}

	// Pass 2: unmatched primaries against unclaimed saved comments by
	// prefix alone. Ambiguity (two unclaimed candidates with the same
	// prefix) degrades to unknown rather than picking one.
	for i, p := range primary {
		if out[i].Confidence != ConfidenceNone {
			continue
		}
		match := -1
		for j, s := range saved {
			if claimed[j] || !samePrefix(p.Text, s.Text) {
				continue
			}
			if match >= 0 {
				match = -1
				break
			}
			match = j
		}
		if match >= 0 {
			out[i] = Correlation{Status: saved[match].Status, Confidence: ConfidenceText}
			claimed[match] = true
		}
	}
	return out
}

// ApplyStatuses returns a copy of primary with correlated statuses merged
// in. Author, text, timestamps, and replies are untouched.
func ApplyStatuses(primary, saved []automation.CommentRecord) []automation.CommentRecord {
	correlations := Correlate(primary, saved)
	out := make([]automation.CommentRecord, len(primary))
	for i, p := range primary {
		out[i] = p
		out[i].Status = correlations[i].Status
	}
	return out
}

// samePrefix compares the case-folded text prefixes of two comments.
func samePrefix(a, b string) bool {
	return prefix(a) == prefix(b)
}

func prefix(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	runes := []rune(s)
	if len(runes) > prefixRunes {
		runes = runes[:prefixRunes]
	}
	return string(runes)
}
