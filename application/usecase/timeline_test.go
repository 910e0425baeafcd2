package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTimelineEvenSegments(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		segments int
		markers  int
	}{
		{"short", 10, 1, 2},
		{"thirty seconds", 30, 2, 6},
		{"long", 300, 5, 60},
		{"just over", 31, 3, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := BuildTimeline(tt.duration, "")
			require.Len(t, tl.Segments, tt.segments)
			assert.Len(t, tl.Markers, tt.markers)

			assert.Zero(t, tl.Segments[0].StartTime)
			assert.InDelta(t, tt.duration, tl.Segments[len(tl.Segments)-1].EndTime, 1e-9)
			assert.Equal(t, "Segment 1", tl.Segments[0].Label)
			if tt.markers > 0 {
				assert.Equal(t, 5.0, tl.Markers[0].Time)
				assert.Equal(t, "5s", tl.Markers[0].Label)
				assert.Equal(t, MarkerBookmark, tl.Markers[0].Type)
			}
		})
	}
}

func TestBuildTimelineEmpty(t *testing.T) {
	tl := BuildTimeline(0, "Hello.")
	assert.Empty(t, tl.Segments)
	assert.Empty(t, tl.Markers)
}

func TestBuildTimelineFromTranscript(t *testing.T) {
	transcript := "First sentence here. Second one! Third? Fourth sentence that is rather long. Fifth. Sixth..."
	tl := BuildTimeline(60, transcript)

	require.Len(t, tl.Segments, 3)
	assert.Equal(t, "segment-0", tl.Segments[0].ID)
	assert.Equal(t, "First sentence here", tl.Segments[0].Label)
	assert.InDelta(t, 0, tl.Segments[0].StartTime, 1e-9)
	assert.InDelta(t, 20, tl.Segments[0].EndTime, 1e-9)
	assert.Equal(t, "segment-2", tl.Segments[1].ID)
	assert.Equal(t, "Third", tl.Segments[1].Label)
	assert.Equal(t, "Fifth", tl.Segments[2].Label)
	assert.InDelta(t, 40, tl.Segments[2].StartTime, 1e-9)
	assert.InDelta(t, 60, tl.Segments[2].EndTime, 1e-9)

	// markers still follow the duration
	assert.Len(t, tl.Markers, 12)
}

func TestBuildTimelineBlankTranscriptKeepsEvenSegments(t *testing.T) {
	tl := BuildTimeline(30, " ... !? ")
	require.Len(t, tl.Segments, 2)
	assert.Equal(t, "Segment 2", tl.Segments[1].Label)
}

func TestShortLabel(t *testing.T) {
	assert.Equal(t, "short", shortLabel("short"))
	assert.Equal(t, "Fourth sentence that...", shortLabel("Fourth sentence that is rather long"))
}
