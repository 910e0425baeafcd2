package pipeline

import (
	"context"
	"math"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/pkg/dsp"
)

// NeedsEnhancement reports whether any slider differs from neutral
func NeedsEnhancement(e model.Enhancement) bool {
	return !e.Clamp().IsNeutral()
}

// VoiceClarityCutoff maps the clarity slider to the high-pass cutoff.
// 50 gives 20 Hz; every 12.5 points doubles or halves it.
func VoiceClarityCutoff(voiceClarity int) float64 {
	return 20 * math.Pow(2, float64(voiceClarity-50)/12.5)
}

// EnhanceChain is the fixed five-stage enhancement chain
func EnhanceChain(sampleRate int, e model.Enhancement) dsp.Chain {
	e = e.Clamp()
	return dsp.Chain{
		dsp.NewHighpass(sampleRate, VoiceClarityCutoff(e.VoiceClarity), 0.707),
		dsp.NewLowShelf(sampleRate, 200, float64(e.BassTone-50)*0.3),
		dsp.NewPeaking(sampleRate, 1000, 1, float64(e.MidTone-50)*0.2),
		dsp.NewHighShelf(sampleRate, 4000, float64(e.TrebleTone-50)*0.25),
		dsp.NewPeaking(sampleRate, 2500, 1.5, float64(e.Presence-50)*0.3),
	}
}

// Enhance runs the enhancement chain. All five stages always run, so the
// output is deterministic for a given input and parameters.
func (e *Engine) Enhance(ctx context.Context, buf *model.Buffer, en model.Enhancement) (*model.Buffer, error) {
	return e.Apply(ctx, buf, EnhanceChain(buf.SampleRate, en))
}
