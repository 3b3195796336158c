// Package mention extracts @mentions from comment text and matches them
// against the current user's known identities.
//
// Everything here is pure: deterministic, side-effect free, and total over
// arbitrary input, so it is unit-testable without any live document.
package mention

import (
	"regexp"
	"strings"
	"unicode"

	"slidebridge/internal/automation"
	"slidebridge/internal/identity"
)

// Default similarity thresholds.
const (
	DefaultStrongThreshold = 0.85
	DefaultWeakThreshold   = 0.70
)

// Tier is the confidence tier of an identity match.
type Tier int

const (
	// TierNone means no match.
	TierNone Tier = iota
	// TierWeak is a fuzzy match above the weak threshold only.
	TierWeak
	// TierStrong is a fuzzy match above the strong threshold.
	TierStrong
	// TierPrefix means the mention is a leading subset of a full name.
	TierPrefix
	// TierExact is a case-insensitive exact match.
	TierExact
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierPrefix:
		return "prefix"
	case TierStrong:
		return "strong"
	case TierWeak:
		return "weak"
	default:
		return "none"
	}
}

// mentionPattern captures one or more capitalized words following @.
var mentionPattern = regexp.MustCompile(`@([A-Z][A-Za-z]*(?:[ \t][A-Z][A-Za-z]*)*)`)

// domainPattern matches a domain-like tail (".tld") right after a
// candidate, the shape of an email address fragment.
var domainPattern = regexp.MustCompile(`^\.[A-Za-z]{2,}`)

// Extract returns the mention candidates in text. Candidates that are part
// of an email-address shape are excluded: an @ preceded by a local-part
// character, or a candidate followed by a domain tail, is not a mention.
// Total: any input returns a (possibly empty) slice.
func Extract(text string) []string {
	var out []string
	for _, idx := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := idx[0], idx[1]
		candStart, candEnd := idx[2], idx[3]

		// "user@Example": the @ belongs to an email local part.
		if start > 0 && isLocalPartChar(rune(text[start-1])) {
			continue
		}
		// "@Example.com" is a domain, not a person.
		if domainPattern.MatchString(text[end:]) {
			continue
		}
		out = append(out, text[candStart:candEnd])
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func isLocalPartChar(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.', '_', '%', '+', '-':
		return true
	}
	return false
}

// Match is the result of matching a candidate against identity variants.
type Match struct {
	// Variant is the identity variant that matched.
	Variant string

	// Tier is the confidence tier.
	Tier Tier

	// Score is the similarity score for fuzzy tiers, 1.0 for exact/prefix.
	Score float64
}

// MatchIdentity matches one extracted candidate against the known identity
// variants: exact case-insensitive first, then leading-subset prefix, then
// fuzzy similarity against the thresholds. Returns the best match found.
func MatchIdentity(candidate string, variants []string, strongThreshold, weakThreshold float64) (Match, bool) {
	cand := strings.ToLower(strings.TrimSpace(candidate))
	if cand == "" {
		return Match{}, false
	}

	best := Match{Tier: TierNone}
	for _, variant := range variants {
		v := strings.ToLower(strings.TrimSpace(variant))
		if v == "" {
			continue
		}

		var m Match
		switch {
		case cand == v:
			m = Match{Variant: variant, Tier: TierExact, Score: 1.0}
		case strings.HasPrefix(v, cand+" "):
			m = Match{Variant: variant, Tier: TierPrefix, Score: 1.0}
		default:
			score := similarity(cand, v)
			switch {
			case score >= strongThreshold:
				m = Match{Variant: variant, Tier: TierStrong, Score: score}
			case score >= weakThreshold:
				m = Match{Variant: variant, Tier: TierWeak, Score: score}
			default:
				continue
			}
		}

		if m.Tier > best.Tier || (m.Tier == best.Tier && m.Score > best.Score) {
			best = m
		}
	}
	return best, best.Tier != TierNone
}

// similarity scores two names in [0, 1]. Names with the same word count
// are compared word by word and bounded by their weakest word, so a typo
// in one word ("Jon" for "John") cannot be averaged away by exact
// surnames. Differing word counts fall back to whole-string comparison.
func similarity(a, b string) float64 {
	wa := strings.Fields(a)
	wb := strings.Fields(b)
	if len(wa) != len(wb) || len(wa) == 0 {
		return ratio(a, b)
	}

	min := 1.0
	for i := range wa {
		if r := ratio(wa[i], wb[i]); r < min {
			min = r
		}
	}
	return min
}

// ratio is the normalized edit-distance similarity: 1 - distance/maxlen.
func ratio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes edit distance with a two-row table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// MentionMatch references a mention of the current user inside a comment.
// Derived per scan, never stored.
type MentionMatch struct {
	// SlideIndex and Ordinal locate the comment on its slide.
	SlideIndex int
	Ordinal    int

	// Author and Candidate describe the mention.
	Author    string
	Candidate string

	// Match is the identity match that fired.
	Match Match
}

// Scan walks the comments (replies included) and returns every mention of
// the roster's identities at or above the weak threshold.
func Scan(comments []automation.CommentRecord, roster *identity.Roster, strongThreshold, weakThreshold float64) []MentionMatch {
	if roster == nil {
		return nil
	}
	variants := roster.Variants()
	if len(variants) == 0 {
		return nil
	}

	var out []MentionMatch
	for ordinal, rec := range comments {
		scanRecord(rec, ordinal, variants, strongThreshold, weakThreshold, &out)
	}
	return out
}

func scanRecord(rec automation.CommentRecord, ordinal int, variants []string, strong, weak float64, out *[]MentionMatch) {
	for _, cand := range Extract(rec.Text) {
		if m, ok := MatchIdentity(cand, variants, strong, weak); ok {
			*out = append(*out, MentionMatch{
				SlideIndex: rec.SlideIndex,
				Ordinal:    ordinal,
				Author:     rec.Author,
				Candidate:  cand,
				Match:      m,
			})
		}
	}
	for _, reply := range rec.Replies {
		scanRecord(reply, ordinal, variants, strong, weak, out)
	}
}
