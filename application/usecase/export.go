package usecase

import (
	"time"

	"github.com/Skryldev/audioedit/domain/model"
)

// exportBitrates are nominal kbps per format and quality, used for size estimates
var exportBitrates = map[model.Format]map[model.Quality]float64{
	model.FormatMP3: {model.QualityLow: 96, model.QualityMedium: 128, model.QualityHigh: 320},
	model.FormatWAV: {model.QualityLow: 705, model.QualityMedium: 1411, model.QualityHigh: 3072},
	model.FormatOGG: {model.QualityLow: 80, model.QualityMedium: 128, model.QualityHigh: 256},
}

var exportMaxDurations = map[model.Format]map[model.Quality]time.Duration{
	model.FormatMP3: {model.QualityLow: 60 * time.Minute, model.QualityMedium: 30 * time.Minute, model.QualityHigh: 15 * time.Minute},
	model.FormatWAV: {model.QualityLow: 30 * time.Minute, model.QualityMedium: 15 * time.Minute, model.QualityHigh: 5 * time.Minute},
	model.FormatOGG: {model.QualityLow: 60 * time.Minute, model.QualityMedium: 30 * time.Minute, model.QualityHigh: 15 * time.Minute},
}

// exportTable maps formats without their own row onto the closest one
func exportTable(f model.Format) model.Format {
	switch f {
	case model.FormatOpus:
		return model.FormatOGG
	case model.FormatAAC:
		return model.FormatMP3
	case model.FormatWAV, model.FormatMP3, model.FormatOGG:
		return f
	default:
		return model.FormatMP3
	}
}

func validQuality(q model.Quality) bool {
	return q == model.QualityLow || q == model.QualityMedium || q == model.QualityHigh
}

// EstimateFileSizeKB returns bitrate * seconds / 8
func EstimateFileSizeKB(f model.Format, q model.Quality, seconds float64) float64 {
	if !validQuality(q) {
		q = model.QualityHigh
	}
	return exportBitrates[exportTable(f)][q] * seconds / 8
}

// MaxExportDuration returns the longest export allowed for the format and quality
func MaxExportDuration(f model.Format, q model.Quality) time.Duration {
	if !validQuality(q) {
		q = model.QualityHigh
	}
	return exportMaxDurations[exportTable(f)][q]
}

// ExportResult is a finished export
type ExportResult struct {
	Ref             model.AudioRef
	Format          model.Format
	Quality         model.Quality
	Settings        model.QualitySettings
	EstimatedSizeKB float64
}
