package ml

import (
	"context"
	"fmt"
)

// Pipeline chains median imputation, standard scaling and the forest
type Pipeline struct {
	Imputer *MedianImputer
	Scaler  *StandardScaler
	Forest  *RandomForestRegressor
}

// NewPipeline builds an unfitted pipeline with the baseline forest
func NewPipeline() *Pipeline {
	return &Pipeline{
		Imputer: &MedianImputer{},
		Scaler:  &StandardScaler{},
		Forest:  NewRandomForestRegressor(),
	}
}

func (p *Pipeline) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if err := p.Imputer.Fit(X); err != nil {
		return fmt.Errorf("imputer: %w", err)
	}
	imputed, err := p.Imputer.Transform(X)
	if err != nil {
		return fmt.Errorf("imputer: %w", err)
	}

	if err := p.Scaler.Fit(imputed); err != nil {
		return fmt.Errorf("scaler: %w", err)
	}
	scaled, err := p.Scaler.Transform(imputed)
	if err != nil {
		return fmt.Errorf("scaler: %w", err)
	}

	if err := p.Forest.Fit(ctx, scaled, y); err != nil {
		return fmt.Errorf("forest: %w", err)
	}
	return nil
}

// Fitted reports whether every step has been fitted
func (p *Pipeline) Fitted() bool {
	return p.Imputer != nil && p.Imputer.Statistics != nil &&
		p.Scaler != nil && p.Scaler.Mean != nil &&
		p.Forest != nil && p.Forest.Fitted()
}

func (p *Pipeline) Predict(X [][]float64) ([]float64, error) {
	imputed, err := p.Imputer.Transform(X)
	if err != nil {
		return nil, err
	}
	scaled, err := p.Scaler.Transform(imputed)
	if err != nil {
		return nil, err
	}
	return p.Forest.Predict(scaled)
}
