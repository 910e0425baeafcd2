package pipeline

import (
	"context"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/pkg/dsp"
)

// HumFrequencies are the mains hum fundamentals and first harmonics
var HumFrequencies = []float64{50, 60, 100, 120}

// NeedsNoiseReduction reports whether the profile differs from the defaults
func NeedsNoiseReduction(n model.NoiseReduction) bool {
	return !n.Clamp().IsDefault()
}

// NoiseReductionChain is a heuristic suppressor, not a spectral model:
// rumble high-pass, hum notches, three banded compressors summed, and a
// final gentle compressor.
func NoiseReductionChain(sampleRate int, n model.NoiseReduction) dsp.Chain {
	n = n.Clamp()
	strength := float64(n.Strength)
	sensitivity := float64(n.Sensitivity)
	preserve := float64(n.PreserveVoice)

	chain := dsp.Chain{dsp.NewHighpass(sampleRate, 60+sensitivity*0.6, 0.7)}
	for _, f := range HumFrequencies {
		chain = append(chain, dsp.NewNotch(sampleRate, f, 10, strength*0.5))
	}

	low := dsp.Chain{
		dsp.NewLowpass(sampleRate, 300, 0.707),
		dsp.Compressor{SampleRate: sampleRate, Threshold: -70 + strength*0.4, Knee: 30, Ratio: 4 + strength/20, Attack: 0.005, Release: 0.1},
	}
	mid := dsp.Chain{
		dsp.NewHighpass(sampleRate, 300, 0.707),
		dsp.NewLowpass(sampleRate, 4000, 0.707),
		dsp.Compressor{SampleRate: sampleRate, Threshold: -50 + preserve*0.3, Knee: 30, Ratio: 2 + strength/40, Attack: 0.003, Release: 0.1},
	}
	high := dsp.Chain{
		dsp.NewHighpass(sampleRate, 4000, 0.707),
		dsp.Compressor{SampleRate: sampleRate, Threshold: -60 + strength*0.3, Knee: 30, Ratio: 6 + strength/15, Attack: 0.002, Release: 0.05},
	}

	return append(chain,
		dsp.Parallel{low, mid, high},
		dsp.Compressor{SampleRate: sampleRate, Threshold: -70 + strength*0.6, Knee: 40 - strength*0.2, Ratio: 2 + strength/25, Attack: 0.02, Release: 0.3},
	)
}

// ReduceNoise runs the noise reduction chain
func (e *Engine) ReduceNoise(ctx context.Context, buf *model.Buffer, n model.NoiseReduction) (*model.Buffer, error) {
	return e.Apply(ctx, buf, NoiseReductionChain(buf.SampleRate, n))
}
