package pipeline

import (
	"context"
	"math"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/pkg/dsp"
)

const reverbSeed = 0x5eed

// Reverb mixes buf with its convolution against a decaying-noise response.
// The response is secondsAtFull*intensity/100 long, capped at maxSeconds.
type Reverb struct {
	ir  []float64
	wet float64
	dry float64
}

// NewReverb builds a reverb for intensity 0-100
func NewReverb(sampleRate, intensity int, secondsAtFull, maxSeconds float64) Reverb {
	r := float64(model.ClampSlider(intensity))
	length := int(math.Min(float64(sampleRate)*r/100*secondsAtFull, float64(sampleRate)*maxSeconds))
	return Reverb{
		ir:  dsp.DecayingNoiseIR(length, reverbSeed),
		wet: r / 100,
		dry: 1 - r/200,
	}
}

func (r Reverb) Process(in []float64) []float64 {
	wet := dsp.Convolve(in, r.ir)
	out := make([]float64, len(in))
	for i, x := range in {
		out[i] = x*r.dry + wet[i]*r.wet
	}
	return out
}

// EffectsChain chains every effect with intensity above zero in EffectOrder
func EffectsChain(sampleRate int, fx model.Effects) dsp.Chain {
	var chain dsp.Chain
	for _, name := range model.EffectOrder {
		v := model.ClampSlider(fx[name])
		if v <= 0 {
			continue
		}
		chain = append(chain, effectStage(sampleRate, name, v)...)
	}
	return chain
}

func effectStage(sampleRate int, name model.EffectName, intensity int) []dsp.Processor {
	v := float64(intensity)
	switch name {
	case model.EffectReverb:
		return []dsp.Processor{NewReverb(sampleRate, intensity, 2, 3)}
	case model.EffectEQVoice:
		return []dsp.Processor{
			dsp.NewHighpass(sampleRate, 100, 0.707),
			dsp.NewPeaking(sampleRate, 2500, 1, v*0.2),
			dsp.NewLowpass(sampleRate, 8000, 0.707),
		}
	case model.EffectBoost:
		return []dsp.Processor{dsp.Gain(1 + v/50), dsp.NewLimiter(sampleRate)}
	case model.EffectWarmth:
		return []dsp.Processor{
			dsp.NewLowShelf(sampleRate, 300, v*0.2),
			dsp.NewHighShelf(sampleRate, 4000, -v*0.1),
		}
	case model.EffectClarity:
		return []dsp.Processor{
			dsp.NewHighShelf(sampleRate, 6000, v*0.15),
			dsp.NewPeaking(sampleRate, 3000, 1, v*0.1),
		}
	}
	return nil
}

// ApplyEffects runs active effects serially. With nothing active the result
// is a plain copy.
func (e *Engine) ApplyEffects(ctx context.Context, buf *model.Buffer, fx model.Effects) (*model.Buffer, error) {
	chain := EffectsChain(buf.SampleRate, fx)
	if len(chain) == 0 {
		return buf.Clone(), nil
	}
	return e.Apply(ctx, buf, chain)
}
