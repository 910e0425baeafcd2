package dsp

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Convolve returns the linear convolution of signal and kernel truncated to
// len(signal), computed with FFT overlap-add.
func Convolve(signal, kernel []float64) []float64 {
	out := make([]float64, len(signal))
	if len(signal) == 0 || len(kernel) == 0 {
		return out
	}

	block := nextPow2(len(kernel))
	if block < 1024 {
		block = 1024
	}
	n := nextPow2(block + len(kernel) - 1)
	fft := fourier.NewFFT(n)

	padded := make([]float64, n)
	copy(padded, kernel)
	kernelSpec := fft.Coefficients(nil, padded)

	seg := make([]float64, n)
	spec := make([]complex128, len(kernelSpec))
	res := make([]float64, n)
	scale := 1 / float64(n)

	for start := 0; start < len(signal); start += block {
		end := start + block
		if end > len(signal) {
			end = len(signal)
		}
		for i := range seg {
			seg[i] = 0
		}
		copy(seg, signal[start:end])

		spec = fft.Coefficients(spec, seg)
		for i := range spec {
			spec[i] *= kernelSpec[i]
		}
		res = fft.Sequence(res, spec)

		for i, v := range res {
			j := start + i
			if j >= len(out) {
				break
			}
			out[j] += v * scale
		}
	}
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// DecayingNoiseIR builds a synthetic room response: white noise under an
// exponential envelope with time constant length/6, normalized to unit energy.
// The same seed always yields the same response.
func DecayingNoiseIR(length int, seed int64) []float64 {
	if length <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(seed))
	ir := make([]float64, length)
	tau := float64(length) / 6
	var energy float64
	for i := range ir {
		v := (rng.Float64()*2 - 1) * math.Exp(-float64(i)/tau)
		ir[i] = v
		energy += v * v
	}
	if energy > 0 {
		norm := 1 / math.Sqrt(energy)
		for i := range ir {
			ir[i] *= norm
		}
	}
	return ir
}
