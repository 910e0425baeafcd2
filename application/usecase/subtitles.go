package usecase

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Skryldev/audioedit/domain/model"
)

// SubtitleUpdate carries the fields to change; nil fields are left alone
type SubtitleUpdate struct {
	StartTime *float64
	EndTime   *float64
	Text      *string
	Position  *model.SubtitlePosition
	Style     *model.SubtitleStyle
}

func (u SubtitleUpdate) apply(s model.Subtitle) model.Subtitle {
	if u.StartTime != nil {
		s.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		s.EndTime = *u.EndTime
	}
	if u.Text != nil {
		s.Text = *u.Text
	}
	if u.Position != nil {
		s.Position = *u.Position
	}
	if u.Style != nil {
		s.Style = *u.Style
	}
	return s
}

func newSubtitle(start, end float64, text string) model.Subtitle {
	return model.Subtitle{
		ID:        "subtitle-" + uuid.NewString(),
		StartTime: start,
		EndTime:   end,
		Text:      text,
		Position:  model.PositionBottom,
		Style:     model.DefaultSubtitleStyle(),
	}
}

func subtitleMarker(s model.Subtitle) Marker {
	return Marker{
		ID:    "marker-subtitle-" + s.ID,
		Time:  s.StartTime,
		Type:  MarkerSubtitle,
		Label: shortLabel(s.Text),
	}
}

// FormatTimecode renders seconds as m:ss
func FormatTimecode(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// TranscriptFromSubtitles joins subtitles in start order as
// "[m:ss - m:ss] text" lines. It returns "" for no subtitles.
func TranscriptFromSubtitles(subs []model.Subtitle) string {
	if len(subs) == 0 {
		return ""
	}
	sorted := append([]model.Subtitle(nil), subs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartTime < sorted[j].StartTime })
	lines := lo.Map(sorted, func(s model.Subtitle, _ int) string {
		return fmt.Sprintf("[%s - %s] %s", FormatTimecode(s.StartTime), FormatTimecode(s.EndTime), s.Text)
	})
	return strings.Join(lines, "\n")
}
