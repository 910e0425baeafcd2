package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Skryldev/audioedit/domain/model"
)

func TestEstimateFileSizeKB(t *testing.T) {
	tests := []struct {
		format  model.Format
		quality model.Quality
		seconds float64
		want    float64
	}{
		{model.FormatMP3, model.QualityHigh, 10, 400},
		{model.FormatMP3, model.QualityLow, 8, 96},
		{model.FormatWAV, model.QualityMedium, 8, 1411},
		{model.FormatWAV, model.QualityLow, 10, 881.25},
		{model.FormatOGG, model.QualityHigh, 4, 128},
		{model.FormatOpus, model.QualityLow, 8, 80},
		{model.FormatAAC, model.QualityMedium, 8, 128},
		{model.FormatMP3, "", 8, 320},
	}
	for _, tt := range tests {
		t.Run(string(tt.format)+"/"+string(tt.quality), func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateFileSizeKB(tt.format, tt.quality, tt.seconds), 1e-9)
		})
	}
}

func TestMaxExportDuration(t *testing.T) {
	assert.Equal(t, 60*time.Minute, MaxExportDuration(model.FormatMP3, model.QualityLow))
	assert.Equal(t, 15*time.Minute, MaxExportDuration(model.FormatMP3, model.QualityHigh))
	assert.Equal(t, 5*time.Minute, MaxExportDuration(model.FormatWAV, model.QualityHigh))
	assert.Equal(t, 15*time.Minute, MaxExportDuration(model.FormatWAV, model.QualityMedium))
	assert.Equal(t, 30*time.Minute, MaxExportDuration(model.FormatOGG, model.QualityMedium))
	assert.Equal(t, 30*time.Minute, MaxExportDuration(model.FormatOpus, model.QualityMedium))
}

func TestFormatTimecode(t *testing.T) {
	assert.Equal(t, "0:00", FormatTimecode(0))
	assert.Equal(t, "0:05", FormatTimecode(5.9))
	assert.Equal(t, "1:05", FormatTimecode(65))
	assert.Equal(t, "12:00", FormatTimecode(720))
	assert.Equal(t, "0:00", FormatTimecode(-3))
}

func TestTranscriptFromSubtitles(t *testing.T) {
	assert.Empty(t, TranscriptFromSubtitles(nil))

	subs := []model.Subtitle{
		{ID: "b", StartTime: 65, EndTime: 70, Text: "second"},
		{ID: "a", StartTime: 1, EndTime: 3.5, Text: "first"},
	}
	assert.Equal(t, "[0:01 - 0:03] first\n[1:05 - 1:10] second", TranscriptFromSubtitles(subs))
	assert.Equal(t, "b", subs[0].ID, "input order is not changed")
}
