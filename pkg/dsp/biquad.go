// Package dsp holds the sample-level building blocks of the editor: second
// order filters, dynamics processors, FFT convolution and level analysis.
//
// Every processor works on a single channel slice and returns a new slice;
// inputs are never modified.
package dsp

import "math"

// MaxFrequencyRatio caps filter frequencies below Nyquist
const MaxFrequencyRatio = 0.45

// Biquad is a normalized second order IIR section (RBJ cookbook)
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// clampFreq keeps f inside (0, 0.45*sampleRate]
func clampFreq(f float64, sampleRate int) float64 {
	limit := float64(sampleRate) * MaxFrequencyRatio
	if f > limit {
		return limit
	}
	if f < 1 {
		return 1
	}
	return f
}

func newBiquad(b0, b1, b2, a0, a1, a2 float64) Biquad {
	return Biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

func omega(f float64, sampleRate int) (sin, cos float64) {
	w0 := 2 * math.Pi * clampFreq(f, sampleRate) / float64(sampleRate)
	return math.Sin(w0), math.Cos(w0)
}

// NewHighpass returns a 12 dB/oct high-pass
func NewHighpass(sampleRate int, freq, q float64) Biquad {
	sin, cos := omega(freq, sampleRate)
	alpha := sin / (2 * q)
	return newBiquad((1+cos)/2, -(1 + cos), (1+cos)/2, 1+alpha, -2*cos, 1-alpha)
}

// NewLowpass returns a 12 dB/oct low-pass
func NewLowpass(sampleRate int, freq, q float64) Biquad {
	sin, cos := omega(freq, sampleRate)
	alpha := sin / (2 * q)
	return newBiquad((1-cos)/2, 1-cos, (1-cos)/2, 1+alpha, -2*cos, 1-alpha)
}

// NewPeaking returns a bell filter. A gain of 0 dB is an exact identity.
func NewPeaking(sampleRate int, freq, q, gainDB float64) Biquad {
	sin, cos := omega(freq, sampleRate)
	a := math.Pow(10, gainDB/40)
	alpha := sin / (2 * q)
	return newBiquad(1+alpha*a, -2*cos, 1-alpha*a, 1+alpha/a, -2*cos, 1-alpha/a)
}

// NewLowShelf returns a shelf with slope 1
func NewLowShelf(sampleRate int, freq, gainDB float64) Biquad {
	sin, cos := omega(freq, sampleRate)
	a := math.Pow(10, gainDB/40)
	alpha := sin / 2 * math.Sqrt2
	sa := 2 * math.Sqrt(a) * alpha
	return newBiquad(
		a*((a+1)-(a-1)*cos+sa),
		2*a*((a-1)-(a+1)*cos),
		a*((a+1)-(a-1)*cos-sa),
		(a+1)+(a-1)*cos+sa,
		-2*((a-1)+(a+1)*cos),
		(a+1)+(a-1)*cos-sa,
	)
}

// NewHighShelf returns a shelf with slope 1
func NewHighShelf(sampleRate int, freq, gainDB float64) Biquad {
	sin, cos := omega(freq, sampleRate)
	a := math.Pow(10, gainDB/40)
	alpha := sin / 2 * math.Sqrt2
	sa := 2 * math.Sqrt(a) * alpha
	return newBiquad(
		a*((a+1)+(a-1)*cos+sa),
		-2*a*((a-1)+(a+1)*cos),
		a*((a+1)+(a-1)*cos-sa),
		(a+1)-(a-1)*cos+sa,
		2*((a-1)-(a+1)*cos),
		(a+1)-(a-1)*cos-sa,
	)
}

// NewNotch returns a narrow cut used for hum removal
func NewNotch(sampleRate int, freq, q, depthDB float64) Biquad {
	return NewPeaking(sampleRate, freq, q, -math.Abs(depthDB))
}

// Process filters in with fresh state (transposed direct form II)
func (b Biquad) Process(in []float64) []float64 {
	out := make([]float64, len(in))
	var z1, z2 float64
	for i, x := range in {
		y := b.b0*x + z1
		z1 = b.b1*x - b.a1*y + z2
		z2 = b.b2*x - b.a2*y
		out[i] = y
	}
	return out
}

// Processor transforms one channel
type Processor interface {
	Process(in []float64) []float64
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(in []float64) []float64

func (f ProcessorFunc) Process(in []float64) []float64 { return f(in) }

// Chain runs processors in order
type Chain []Processor

func (c Chain) Process(in []float64) []float64 {
	out := in
	for _, p := range c {
		out = p.Process(out)
	}
	if len(c) == 0 {
		out = append([]float64(nil), in...)
	}
	return out
}

// Parallel feeds the same input to every branch and sums the results
type Parallel []Processor

func (p Parallel) Process(in []float64) []float64 {
	out := make([]float64, len(in))
	for _, branch := range p {
		for i, v := range branch.Process(in) {
			out[i] += v
		}
	}
	return out
}

// Gain scales every sample
type Gain float64

func (g Gain) Process(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = v * float64(g)
	}
	return out
}

// DBToGain converts decibels to a linear factor
func DBToGain(db float64) float64 { return math.Pow(10, db/20) }

// GainToDB converts a linear factor to decibels
func GainToDB(g float64) float64 {
	if g <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(g)
}
