package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"slidebridge/internal/cache"
)

func TestFormatSlideAnnouncement(t *testing.T) {
	tests := []struct {
		name string
		snap cache.SlideSnapshot
		want string
	}{
		{
			name: "bare slide",
			snap: cache.SlideSnapshot{SlideIndex: 1},
			want: "Slide 1: no comments",
		},
		{
			name: "single comment unknown status",
			snap: cache.SlideSnapshot{SlideIndex: 2, CommentCount: 1},
			want: "Slide 2: 1 comment, status unknown",
		},
		{
			name: "notes only",
			snap: cache.SlideSnapshot{SlideIndex: 3, NotesPresent: true},
			want: "Slide 3: no comments, notes present",
		},
		{
			name: "fresh resolution",
			snap: cache.SlideSnapshot{
				SlideIndex:   4,
				CommentCount: 5,
				Resolution:   cache.ResolutionSummary{Active: 2, Resolved: 2, Closed: 1},
				Freshness:    cache.FreshnessFresh,
			},
			want: "Slide 4: 5 comments, 2 resolved, 1 closed",
		},
		{
			name: "stale cached resolution carries caveat",
			snap: cache.SlideSnapshot{
				SlideIndex:   5,
				CommentCount: 2,
				Resolution:   cache.ResolutionSummary{Resolved: 2},
				Freshness:    cache.FreshnessStaleCached,
			},
			want: "Slide 5: 2 comments, 2 resolved as of last save",
		},
		{
			name: "partially correlated",
			snap: cache.SlideSnapshot{
				SlideIndex:   6,
				CommentCount: 3,
				Resolution:   cache.ResolutionSummary{Resolved: 1, Unknown: 2},
				Freshness:    cache.FreshnessFresh,
			},
			want: "Slide 6: 3 comments, 1 resolved, 2 status unknown",
		},
		{
			name: "everything",
			snap: cache.SlideSnapshot{
				SlideIndex:   7,
				CommentCount: 1,
				Resolution:   cache.ResolutionSummary{Active: 1},
				Freshness:    cache.FreshnessFresh,
				NotesPresent: true,
			},
			want: "Slide 7: 1 comment, notes present",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSlideAnnouncement(tt.snap))
		})
	}
}

func TestFormatIsDeterministic(t *testing.T) {
	snap := cache.SlideSnapshot{SlideIndex: 9, CommentCount: 4, NotesPresent: true}
	assert.Equal(t, FormatSlideAnnouncement(snap), FormatSlideAnnouncement(snap))
}
