package dsp

import "math"

// Peak returns the largest absolute sample
func Peak(in []float64) float64 {
	var p float64
	for _, v := range in {
		if a := math.Abs(v); a > p {
			p = a
		}
	}
	return p
}

// RMS returns the root mean square of in
func RMS(in []float64) float64 {
	if len(in) == 0 {
		return 0
	}
	var sum float64
	for _, v := range in {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(in)))
}

// RMSDiff returns the RMS of a-b over the shorter length
func RMSDiff(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}

// VolumeData reduces channels to n peak bars in [0, 1] for waveform drawing.
// Channels are averaged before bucketing.
func VolumeData(channels [][]float64, n int) []float64 {
	if n <= 0 || len(channels) == 0 || len(channels[0]) == 0 {
		return []float64{}
	}
	length := len(channels[0])
	bars := make([]float64, n)
	bucket := float64(length) / float64(n)
	for b := 0; b < n; b++ {
		start := int(float64(b) * bucket)
		end := int(float64(b+1) * bucket)
		if end > length {
			end = length
		}
		if end <= start {
			end = start + 1
			if end > length {
				break
			}
		}
		var peak float64
		for i := start; i < end; i++ {
			var mix float64
			for _, ch := range channels {
				mix += ch[i]
			}
			mix /= float64(len(channels))
			if a := math.Abs(mix); a > peak {
				peak = a
			}
		}
		bars[b] = math.Min(peak, 1)
	}
	return bars
}
