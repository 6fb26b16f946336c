package agent

import "math"

const normClip = 10

// Normalizer keeps running mean and variance per observation dimension
// (Welford) and maps observations to clipped z-scores.
type Normalizer struct {
	Count float64
	Mean  []float64
	M2    []float64
}

func NewNormalizer(dim int) *Normalizer {
	return &Normalizer{Mean: make([]float64, dim), M2: make([]float64, dim)}
}

func (n *Normalizer) Update(x []float64) {
	n.Count++
	for i, v := range x {
		d := v - n.Mean[i]
		n.Mean[i] += d / n.Count
		n.M2[i] += d * (v - n.Mean[i])
	}
}

// Normalize writes the z-scores of x into dst (allocated when nil).
func (n *Normalizer) Normalize(x, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(x))
	}
	for i, v := range x {
		std := 1.0
		if n.Count > 1 {
			std = math.Sqrt(n.M2[i]/(n.Count-1) + 1e-8)
		}
		z := (v - n.Mean[i]) / std
		dst[i] = math.Max(-normClip, math.Min(normClip, z))
	}
	return dst
}
