package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    []float64
		expected float64
	}{
		{name: "empty_returns_zero", input: nil, expected: 0},
		{name: "single_element", input: []float64{5.0}, expected: 5.0},
		{name: "two_elements", input: []float64{2.0, 4.0}, expected: 3.0},
		{name: "known_mean", input: []float64{1.0, 2.0, 3.0, 4.0, 5.0}, expected: 3.0},
		{name: "negative_values", input: []float64{-2.0, -4.0}, expected: -3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Mean(tt.input)
			assert.InDelta(t, tt.expected, got, 0.0001)
		})
	}
}

func TestSampleStdDev(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      []float64
		wantStdDev float64
	}{
		{name: "empty_returns_zero", input: nil, wantStdDev: 0},
		{name: "single_element_zero_stddev", input: []float64{5.0}, wantStdDev: 0},
		{name: "uniform_values_zero_stddev", input: []float64{3.0, 3.0, 3.0}, wantStdDev: 0},
		// durations={540,545,542}; mean=542.333; sample stddev (n-1) ~ 2.517
		{name: "login_baseline", input: []float64{540.0, 545.0, 542.0}, wantStdDev: 2.5166},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mean := Mean(tt.input)
			got := SampleStdDev(tt.input, mean)
			assert.InDelta(t, tt.wantStdDev, got, 0.001)
		})
	}
}

func TestMeanStdDev(t *testing.T) {
	t.Parallel()

	mean, stddev := MeanStdDev([]float64{150, 155, 148})
	assert.InDelta(t, 151.0, mean, 0.0001)
	assert.InDelta(t, 3.6056, stddev, 0.001)
}

func TestComputeTrend(t *testing.T) {
	t.Parallel()

	t.Run("insufficient_history_not_significant", func(t *testing.T) {
		t.Parallel()

		got := ComputeTrend([]float64{1, 2, 3}, TrendOptions{Window: 3, MinSignificance: 1})
		assert.False(t, got.Significant)
		assert.InDelta(t, 0, got.Delta, 0.0001)
	})

	t.Run("drift_scenario_S4", func(t *testing.T) {
		t.Parallel()

		// durations=[100,102,104,118,120,122], window=3, min_significance=10.
		got := ComputeTrend([]float64{100, 102, 104, 118, 120, 122}, TrendOptions{Window: 3, MinSignificance: 10})
		assert.True(t, got.Significant)
		assert.Greater(t, got.Delta, 10.0)
	})

	t.Run("small_delta_not_significant", func(t *testing.T) {
		t.Parallel()

		got := ComputeTrend([]float64{100, 101, 100, 101, 100, 101}, TrendOptions{Window: 3, MinSignificance: 10})
		assert.False(t, got.Significant)
	})
}

func TestClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		val, lo, hi float64
		expected    float64
	}{
		{name: "within_range", val: 5.0, lo: 0.0, hi: 10.0, expected: 5.0},
		{name: "below_min", val: -1.0, lo: 0.0, hi: 10.0, expected: 0.0},
		{name: "above_max", val: 15.0, lo: 0.0, hi: 10.0, expected: 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Clamp(tt.val, tt.lo, tt.hi)
			assert.InDelta(t, tt.expected, got, 0.0001)
		})
	}
}

func TestSum(t *testing.T) {
	t.Parallel()

	t.Run("float_elements", func(t *testing.T) {
		t.Parallel()

		got := Sum([]float64{1.0, 2.0, 3.0})
		assert.InDelta(t, 6.0, got, 0.0001)
	})

	t.Run("int_elements", func(t *testing.T) {
		t.Parallel()

		got := Sum([]int{1, 2, 3, 4})
		assert.Equal(t, 10, got)
	})
}
