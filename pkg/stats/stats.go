// Package stats provides the core statistical primitives used to build and
// evaluate rolling performance baselines: mean, sample standard deviation,
// and windowed trend detection. All three are pure and allocation-light so
// they can run once per step, per sample, without measurable overhead.
package stats

import (
	"cmp"
	"math"
)

// Mean returns the arithmetic mean of values.
// Returns 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64

	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// SampleStdDev returns the sample standard deviation (divisor n-1) of values
// around the given mean. Returns 0 when fewer than two values are present,
// since a single observation carries no variance information.
func SampleStdDev(values []float64, mean float64) float64 {
	count := len(values)
	if count < 2 {
		return 0
	}

	var sumSq float64

	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}

	return math.Sqrt(sumSq / float64(count-1))
}

// MeanStdDev returns the arithmetic mean and sample standard deviation of
// values: one pass for the mean, a second for the deviations from it.
func MeanStdDev(values []float64) (mean, stddev float64) {
	mean = Mean(values)

	return mean, SampleStdDev(values, mean)
}

// Trend describes whether a windowed comparison of recent values shows a
// significant directional shift.
type Trend struct {
	// Delta is mean(last window) - mean(preceding window).
	Delta float64
	// Significant is true when |Delta| exceeds the configured threshold.
	Significant bool
}

// TrendOptions configures windowed trend detection.
type TrendOptions struct {
	// Window is the number of trailing values compared against the same
	// number of values immediately preceding them.
	Window int
	// MinSignificance is the minimum absolute delta considered significant.
	MinSignificance float64
}

// ComputeTrend compares the mean of the most recent Window values against
// the mean of the Window values preceding them. It requires at least
// 2*Window values; with fewer, no comparison is possible and the result is
// the zero Trend (not significant).
func ComputeTrend(values []float64, opts TrendOptions) Trend {
	window := opts.Window
	if window < 1 {
		window = 1
	}

	count := len(values)
	if count < 2*window {
		return Trend{}
	}

	recent := values[count-window:]
	preceding := values[count-2*window : count-window]

	delta := Mean(recent) - Mean(preceding)

	return Trend{
		Delta:       delta,
		Significant: math.Abs(delta) > opts.MinSignificance,
	}
}

// Clamp restricts val to the range [lo, hi].
func Clamp[T cmp.Ordered](val, lo, hi T) T {
	return max(lo, min(val, hi))
}

// Sum returns the sum of all elements in values.
// Returns the zero value of T for an empty slice.
func Sum[T cmp.Ordered](values []T) T {
	var result T

	for _, v := range values {
		result += v
	}

	return result
}
