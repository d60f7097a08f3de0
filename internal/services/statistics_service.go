package services

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"optimizee/internal/models"
	"optimizee/pkg/logging"
)

// StatisticsService computes the dashboard KPIs and takeaways
type StatisticsService struct {
	logger *logging.StructuredLogger
}

// Summary holds the KPIs of a dashboard view
type Summary struct {
	Rows          int     `json:"rows"`
	Average       float64 `json:"average"`
	Max           float64 `json:"max"`
	PeakHour      int     `json:"peak_hour"`
	PeakDayOfWeek int     `json:"peak_dayofweek"`
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(logger *logging.StructuredLogger) *StatisticsService {
	return &StatisticsService{logger: logger}
}

// Summarize computes row count, mean and max consumption, and the hour and
// day of week with the highest mean consumption. Ties go to the smaller key.
func (s *StatisticsService) Summarize(rows []models.FeatureRow) Summary {
	summary := Summary{Rows: len(rows)}
	if len(rows) == 0 {
		return summary
	}

	values := make([]float64, len(rows))
	for i, row := range rows {
		values[i] = row.Consumption
	}
	summary.Average = stat.Mean(values, nil)
	summary.Max = floats.Max(values)

	summary.PeakHour = peakGroup(rows, func(r models.FeatureRow) int { return r.Hour })
	summary.PeakDayOfWeek = peakGroup(rows, func(r models.FeatureRow) int { return r.DayOfWeek })
	return summary
}

// peakGroup returns the key whose rows have the highest mean consumption
func peakGroup(rows []models.FeatureRow, key func(models.FeatureRow) int) int {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, row := range rows {
		k := key(row)
		sums[k] += row.Consumption
		counts[k]++
	}

	keys := make([]int, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	best := keys[0]
	bestMean := sums[best] / float64(counts[best])
	for _, k := range keys[1:] {
		if mean := sums[k] / float64(counts[k]); mean > bestMean {
			best, bestMean = k, mean
		}
	}
	return best
}
