package audio

import "math"

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. When the rates match, or either is not positive, samples
// is returned unchanged.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	out := make([]int16, n)
	ratio := float64(srcRate) / float64(dstRate)
	last := len(samples) - 1
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac)
	}
	return out
}

// ToFloat32 normalises samples to the range [-1.0, 1.0).
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// RMS returns the root-mean-square level of samples in PCM units
// (0 to 32767). It returns 0 for an empty slice.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
