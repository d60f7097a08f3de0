package services

import (
	"context"
	"fmt"
	"time"

	"optimizee/internal/ml"
	"optimizee/internal/models"
	"optimizee/internal/repository"
	"optimizee/pkg/logging"
)

// Row-window bounds of the dashboard slider
const (
	SliderMin     = 200
	SliderMax     = 2000
	SliderStep    = 100
	SliderDefault = 800
)

// ForecastService serves dashboard views over the persisted dataset and model
type ForecastService struct {
	dataset  models.Dataset
	artifact *ml.ModelArtifact
	stats    *StatisticsService
	logger   *logging.StructuredLogger
}

// PredictionPoint is one dashboard row
type PredictionPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Actual     float64   `json:"actual"`
	Prediction float64   `json:"prediction"`
}

// View is the last N rows with their predictions and KPIs
type View struct {
	Points  []PredictionPoint `json:"points"`
	Summary Summary           `json:"summary"`
}

// SliderBounds describes the allowed row-window values
type SliderBounds struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Step    int `json:"step"`
	Default int `json:"default"`
}

// NewForecastService loads both artifacts once. Either being absent yields
// MissingInputError naming the command that creates it.
func NewForecastService(
	ctx context.Context,
	datasets *repository.DatasetRepository,
	artifacts *repository.ArtifactRepository,
	stats *StatisticsService,
	logger *logging.StructuredLogger,
) (*ForecastService, error) {
	ds, err := datasets.Load(ctx)
	if err != nil {
		return nil, err
	}
	artifact, err := artifacts.Load(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "[FORECAST_LOADED] Dashboard artifacts loaded", logging.Fields{
		"rows":       ds.Len(),
		"run_id":     artifact.Metadata.RunID,
		"trained_at": artifact.Metadata.TrainedAt,
	})

	return &ForecastService{
		dataset:  ds.SortedByTimestamp(),
		artifact: artifact,
		stats:    stats,
		logger:   logger,
	}, nil
}

// Schema returns the schema the model was trained under
func (s *ForecastService) Schema() models.Schema {
	return s.artifact.Schema
}

// Metadata returns the training run metadata
func (s *ForecastService) Metadata() ml.ArtifactMetadata {
	return s.artifact.Metadata
}

// Rows returns the total number of processed rows
func (s *ForecastService) Rows() int {
	return s.dataset.Len()
}

// Slider returns the row-window bounds for the loaded dataset. Datasets
// shorter than the minimum collapse the range to their length.
func (s *ForecastService) Slider() SliderBounds {
	return sliderBounds(s.dataset.Len())
}

func sliderBounds(rows int) SliderBounds {
	b := SliderBounds{
		Min:     SliderMin,
		Max:     min(SliderMax, rows),
		Step:    SliderStep,
		Default: min(SliderDefault, rows),
	}
	if b.Max < b.Min {
		b.Min = b.Max
	}
	return b
}

// ClampRows maps a requested window size into the slider range; n <= 0
// selects the default.
func (s *ForecastService) ClampRows(n int) int {
	b := s.Slider()
	switch {
	case n <= 0:
		return b.Default
	case n < b.Min:
		return b.Min
	case n > b.Max:
		return b.Max
	default:
		return n
	}
}

// View predicts the last n rows (after clamping) and summarizes them
func (s *ForecastService) View(n int) (*View, error) {
	tail := s.dataset.Tail(s.ClampRows(n))

	pred, err := s.artifact.Model.Predict(tail)
	if err != nil {
		return nil, fmt.Errorf("failed to predict: %w", err)
	}

	points := make([]PredictionPoint, tail.Len())
	for i, row := range tail.Rows {
		points[i] = PredictionPoint{
			Timestamp:  row.Timestamp,
			Actual:     row.Consumption,
			Prediction: pred[i],
		}
	}

	return &View{
		Points:  points,
		Summary: s.stats.Summarize(tail.Rows),
	}, nil
}
