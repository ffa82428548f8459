// Package stats provides the robust location/scale statistics used by the
// rolling baselines: median, MAD, noise-floored robust z-scores, dampening,
// and percentile ranking for offline reports.
package stats

import (
	"math"
	"sort"
)

const (
	// madConsistency rescales MAD to the standard deviation of normal data.
	madConsistency = 1.4826

	// zClamp bounds robust z-scores so a single degenerate window cannot
	// dominate downstream scoring.
	zClamp = 20.0
)

// Median returns the middle value of xs, averaging the two central values for
// even-length input. Returns 0 for empty input. xs is not modified.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, xs)
	sort.Float64s(sorted)

	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// MAD returns the median absolute deviation of xs around its own median.
func MAD(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Median(xs)
	devs := make([]float64, len(xs))
	for i, x := range xs {
		devs[i] = math.Abs(x - m)
	}
	return Median(devs)
}

// RobustZ scores v against the history series using median/MAD:
//
//	σ̂ = MAD × 1.4826, floored at noiseFloor
//	z = (v − median) / σ̂, clamped to ±20
//
// Series shorter than 3 carry no usable dispersion information and score 0.
// The noise floor keeps near-constant series from exploding the score.
func RobustZ(v float64, series []float64, noiseFloor float64) float64 {
	if len(series) < 3 {
		return 0
	}

	m := Median(series)
	sigma := MAD(series) * madConsistency
	if sigma < noiseFloor {
		sigma = noiseFloor
	}
	if sigma == 0 {
		return 0
	}

	z := (v - m) / sigma
	if z > zClamp {
		return zClamp
	}
	if z < -zClamp {
		return -zClamp
	}
	return z
}

// Dampen attenuates sub-threshold deviations when composing a weighted score:
// |z| passes through above the floor, otherwise only a tenth of it counts.
func Dampen(z, floor float64) float64 {
	a := math.Abs(z)
	if a > floor {
		return a
	}
	return 0.1 * a
}

// Percentile returns the p-th percentile (0–100) of xs using linear
// interpolation between closest ranks. xs is not modified.
func Percentile(xs []float64, p float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, xs)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
