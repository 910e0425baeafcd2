package usecase

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

const (
	maxSegments     = 5
	segmentSeconds  = 15.0
	markerSeconds   = 5.0
	segmentLabelLen = 20
)

// MarkerType tells bookmarks from subtitle markers
type MarkerType string

const (
	MarkerBookmark MarkerType = "bookmark"
	MarkerSubtitle MarkerType = "subtitle"
)

// Segment is a labelled span of the timeline
type Segment struct {
	ID        string
	StartTime float64
	EndTime   float64
	Label     string
}

// Marker is a point on the timeline
type Marker struct {
	ID    string
	Time  float64
	Type  MarkerType
	Label string
}

// Timeline holds the segmentation shown under the waveform
type Timeline struct {
	Segments []Segment
	Markers  []Marker
}

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// BuildTimeline divides duration into at most five even segments of about
// fifteen seconds and places a bookmark every five seconds. When a transcript
// is given the segments follow its sentences instead.
func BuildTimeline(duration float64, transcript string) Timeline {
	var tl Timeline
	if duration <= 0 {
		return tl
	}

	count := int(math.Min(maxSegments, math.Ceil(duration/segmentSeconds)))
	length := duration / float64(count)
	for i := 0; i < count; i++ {
		tl.Segments = append(tl.Segments, Segment{
			ID:        fmt.Sprintf("segment-%d", i),
			StartTime: float64(i) * length,
			EndTime:   float64(i+1) * length,
			Label:     fmt.Sprintf("Segment %d", i+1),
		})
	}

	for i := 1; float64(i)*markerSeconds <= duration; i++ {
		t := float64(i) * markerSeconds
		tl.Markers = append(tl.Markers, Marker{
			ID:    fmt.Sprintf("marker-%d", i-1),
			Time:  t,
			Type:  MarkerBookmark,
			Label: fmt.Sprintf("%gs", t),
		})
	}

	if segs := transcriptSegments(duration, transcript); len(segs) > 0 {
		tl.Segments = segs
	}
	return tl
}

func transcriptSegments(duration float64, transcript string) []Segment {
	sentences := lo.Filter(sentenceBoundary.Split(transcript, -1), func(s string, _ int) bool {
		return strings.TrimSpace(s) != ""
	})
	if len(sentences) == 0 {
		return nil
	}

	size := int(math.Ceil(float64(len(sentences)) / maxSegments))
	total := float64(len(sentences))
	segs := make([]Segment, 0, maxSegments)
	for i, chunk := range lo.Chunk(sentences, size) {
		first := i * size
		last := math.Min(float64(first+size), total)
		segs = append(segs, Segment{
			ID:        fmt.Sprintf("segment-%d", first),
			StartTime: float64(first) / total * duration,
			EndTime:   last / total * duration,
			Label:     shortLabel(strings.TrimSpace(chunk[0])),
		})
	}
	return segs
}

func shortLabel(text string) string {
	if len([]rune(text)) <= segmentLabelLen {
		return text
	}
	return lo.Substring(text, 0, segmentLabelLen) + "..."
}
