package preview

import (
	"github.com/Skryldev/audioedit/application/pipeline"
	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/pkg/dsp"
)

// The preview chains trade accuracy for speed: fewer stages, shorter reverb,
// and a fixed gain in place of peak normalization for the combined preview.
// They move audio in the same direction as the full chains, nothing more.

func enhanceChain(sr int, e model.Enhancement) dsp.Chain {
	e = e.Clamp()
	return dsp.Chain{
		dsp.NewHighpass(sr, pipeline.VoiceClarityCutoff(e.VoiceClarity), 0.707),
		dsp.NewLowShelf(sr, 200, float64(e.BassTone-50)*0.3),
		dsp.NewHighShelf(sr, 4000, float64(e.TrebleTone-50)*0.25),
		dsp.NewPeaking(sr, 2500, 1.5, float64(e.Presence-50)*0.3),
	}
}

func noiseChain(sr int, n model.NoiseReduction) dsp.Chain {
	n = n.Clamp()
	return dsp.Chain{
		dsp.NewHighpass(sr, 80+float64(n.Sensitivity)*0.5, 0.707),
		dsp.NewLowpass(sr, 10000-float64(n.Strength)*30, 0.707),
		dsp.Compressor{
			SampleRate: sr,
			Threshold:  -50 + float64(n.PreserveVoice)*0.3,
			Knee:       30,
			Ratio:      12,
			Attack:     0.003,
			Release:    0.25,
		},
	}
}

func effectsChain(sr int, fx model.Effects) dsp.Chain {
	var chain dsp.Chain
	for _, name := range model.EffectOrder {
		v := model.ClampSlider(fx[name])
		if v <= 0 {
			continue
		}
		f := float64(v)
		switch name {
		case model.EffectReverb:
			chain = append(chain, pipeline.NewReverb(sr, v, 1, 1))
		case model.EffectEQVoice:
			chain = append(chain, dsp.NewPeaking(sr, 2500, 1, f*0.2))
		case model.EffectBoost:
			chain = append(chain, dsp.Gain(1+f/50), dsp.ProcessorFunc(func(in []float64) []float64 {
				return dsp.HardClip(in, 1)
			}))
		case model.EffectWarmth:
			chain = append(chain, dsp.NewLowShelf(sr, 300, f*0.2))
		case model.EffectClarity:
			chain = append(chain, dsp.NewHighShelf(sr, 6000, f*0.15))
		}
	}
	return chain
}

// combinedChain approximates the whole pipeline on a window
func combinedChain(sr int, p model.EditParameters) dsp.Chain {
	var chain dsp.Chain
	if pipeline.NeedsNoiseReduction(p.NoiseReduction) {
		n := p.NoiseReduction.Clamp()
		chain = append(chain,
			dsp.NewHighpass(sr, 80+float64(n.Sensitivity)*0.5, 0.707),
			dsp.Compressor{SampleRate: sr, Threshold: -50 + float64(n.PreserveVoice)*0.3, Knee: 30, Ratio: 12, Attack: 0.003, Release: 0.25},
		)
	}
	if pipeline.NeedsEnhancement(p.Enhancement) {
		e := p.Enhancement.Clamp()
		chain = append(chain,
			dsp.NewLowShelf(sr, 200, float64(e.BassTone-50)*0.3),
			dsp.NewPeaking(sr, 2500, 1.5, float64(e.Presence-50)*0.3),
		)
	}
	chain = append(chain, effectsChain(sr, p.Effects)...)
	if p.VolumeNormalize > 0 {
		chain = append(chain, dsp.Gain(0.5+float64(model.ClampSlider(p.VolumeNormalize))/200))
	}
	return chain
}
