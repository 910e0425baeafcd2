package dsp

import "math"

// Compressor is a feed-forward compressor with a soft knee and a smoothed
// gain computer. Levels are in dBFS, times in seconds.
type Compressor struct {
	SampleRate int
	Threshold  float64
	Knee       float64
	Ratio      float64
	Attack     float64
	Release    float64
}

// gainReduction returns the static curve output minus input, in dB (<= 0)
func (c Compressor) gainReduction(levelDB float64) float64 {
	ratio := c.Ratio
	if ratio < 1 {
		ratio = 1
	}
	over := levelDB - c.Threshold
	switch {
	case c.Knee > 0 && 2*math.Abs(over) <= c.Knee:
		x := over + c.Knee/2
		return (1/ratio - 1) * x * x / (2 * c.Knee)
	case over > 0:
		return over/ratio - over
	default:
		return 0
	}
}

func timeCoeff(seconds float64, sampleRate int) float64 {
	if seconds <= 0 || sampleRate <= 0 {
		return 0
	}
	return math.Exp(-1 / (seconds * float64(sampleRate)))
}

// Process compresses in with fresh state
func (c Compressor) Process(in []float64) []float64 {
	out := make([]float64, len(in))
	attack := timeCoeff(c.Attack, c.SampleRate)
	release := timeCoeff(c.Release, c.SampleRate)

	var smoothed float64
	for i, x := range in {
		level := GainToDB(math.Abs(x) + 1e-12)
		target := c.gainReduction(level)
		if target < smoothed {
			smoothed = attack*smoothed + (1-attack)*target
		} else {
			smoothed = release*smoothed + (1-release)*target
		}
		out[i] = x * DBToGain(smoothed)
	}
	return out
}

// Limiter is a hard-ratio compressor followed by a ceiling
type Limiter struct {
	Compressor
	Ceiling float64
}

// NewLimiter returns the limiter used after gain stages: -6 dB threshold,
// 10 dB knee, ratio 20, 1 ms attack, 100 ms release, ceiling at full scale
func NewLimiter(sampleRate int) Limiter {
	return Limiter{
		Compressor: Compressor{
			SampleRate: sampleRate,
			Threshold:  -6,
			Knee:       10,
			Ratio:      20,
			Attack:     0.001,
			Release:    0.1,
		},
		Ceiling: 1,
	}
}

func (l Limiter) Process(in []float64) []float64 {
	return HardClip(l.Compressor.Process(in), l.Ceiling)
}

// HardClip clamps every sample into [-ceiling, ceiling]
func HardClip(in []float64, ceiling float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		switch {
		case v > ceiling:
			out[i] = ceiling
		case v < -ceiling:
			out[i] = -ceiling
		default:
			out[i] = v
		}
	}
	return out
}
