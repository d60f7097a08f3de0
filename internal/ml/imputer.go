package ml

import (
	"fmt"
	"math"
	"sort"
)

// MedianImputer replaces NaN entries with the per-column median seen during Fit
type MedianImputer struct {
	Statistics []float64
}

// Fit learns one median per column from the non-NaN training values.
// A column with no observed value is filled with 0.
func (m *MedianImputer) Fit(X [][]float64) error {
	width, err := matrixWidth(X)
	if err != nil {
		return err
	}

	stats := make([]float64, width)
	values := make([]float64, 0, len(X))
	for j := 0; j < width; j++ {
		values = values[:0]
		for _, row := range X {
			if !math.IsNaN(row[j]) {
				values = append(values, row[j])
			}
		}
		stats[j] = median(values)
	}

	m.Statistics = stats
	return nil
}

// Transform returns a copy of X with NaN entries replaced
func (m *MedianImputer) Transform(X [][]float64) ([][]float64, error) {
	if m.Statistics == nil {
		return nil, fmt.Errorf("imputer is not fitted")
	}

	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(m.Statistics) {
			return nil, fmt.Errorf("row %d has %d features, imputer was fitted on %d", i, len(row), len(m.Statistics))
		}
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) {
				v = m.Statistics[j]
			}
			out[i][j] = v
		}
	}
	return out, nil
}

// median sorts values in place; an even count averages the two middle values
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sort.Float64s(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

func matrixWidth(X [][]float64) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("empty feature matrix")
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("ragged feature matrix: row %d has %d features, want %d", i, len(row), width)
		}
	}
	return width, nil
}
