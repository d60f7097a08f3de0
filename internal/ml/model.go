package ml

import (
	"context"
	"fmt"
	"math"
	"time"

	"optimizee/internal/models"
)

// EnergyModel predicts consumption from a fixed, ordered list of feature columns
type EnergyModel struct {
	FeatureCols []string
	Pipeline    *Pipeline
}

// NewEnergyModel returns an unbuilt model over featureCols
func NewEnergyModel(featureCols []string) *EnergyModel {
	cols := make([]string, len(featureCols))
	copy(cols, featureCols)
	return &EnergyModel{FeatureCols: cols}
}

// Build constructs a fresh, unfitted pipeline
func (m *EnergyModel) Build() *Pipeline {
	m.Pipeline = NewPipeline()
	return m.Pipeline
}

// OnTreeFitted forwards per-tree fit timings from the forest; Build must run first
func (m *EnergyModel) OnTreeFitted(fn func(time.Duration)) {
	if m.Pipeline != nil && m.Pipeline.Forest != nil {
		m.Pipeline.Forest.OnTreeFitted(fn)
	}
}

// Trained reports whether Predict can succeed
func (m *EnergyModel) Trained() bool {
	return m != nil && m.Pipeline != nil && m.Pipeline.Fitted()
}

// Train fits the pipeline on the feature columns of ds against targetCol.
// NaN features are imputed; infinite features and non-finite targets are rejected.
func (m *EnergyModel) Train(ctx context.Context, ds models.Dataset, targetCol string) error {
	if m.Pipeline == nil {
		m.Build()
	}
	if ds.Len() == 0 {
		return &models.FitError{Reason: "empty training set"}
	}

	X, err := ds.Matrix(m.FeatureCols)
	if err != nil {
		return &models.FitError{Reason: "feature matrix", Err: err}
	}
	y, err := ds.Column(targetCol)
	if err != nil {
		return &models.FitError{Reason: "target column", Err: err}
	}

	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &models.FitError{Reason: fmt.Sprintf("non-finite target at row %d", i)}
		}
	}
	for i, row := range X {
		for j, v := range row {
			if math.IsInf(v, 0) {
				return &models.FitError{Reason: fmt.Sprintf("infinite value in %s at row %d", m.FeatureCols[j], i)}
			}
		}
	}

	if err := m.Pipeline.Fit(ctx, X, y); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &models.FitError{Reason: "pipeline", Err: err}
	}
	return nil
}

// Predict returns one prediction per row of ds, in row order
func (m *EnergyModel) Predict(ds models.Dataset) ([]float64, error) {
	if !m.Trained() {
		return nil, &models.UntrainedModelError{}
	}
	if ds.Len() == 0 {
		return []float64{}, nil
	}

	X, err := ds.Matrix(m.FeatureCols)
	if err != nil {
		return nil, err
	}
	return m.Pipeline.Predict(X)
}
