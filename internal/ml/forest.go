package ml

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// RandomForestRegressor averages regression trees fitted on bootstrap samples
type RandomForestRegressor struct {
	NEstimators int
	RandomState int64
	// NJobs bounds concurrent tree fits; -1 uses GOMAXPROCS
	NJobs int

	Trees []RegressionTree

	onTreeFitted func(time.Duration)
}

// NewRandomForestRegressor returns a forest with the baseline hyperparameters
func NewRandomForestRegressor() *RandomForestRegressor {
	return &RandomForestRegressor{
		NEstimators: 300,
		RandomState: 42,
		NJobs:       -1,
	}
}

// OnTreeFitted registers a callback invoked with each tree's fit duration
func (f *RandomForestRegressor) OnTreeFitted(fn func(time.Duration)) {
	f.onTreeFitted = fn
}

// Fitted reports whether Fit completed
func (f *RandomForestRegressor) Fitted() bool {
	return len(f.Trees) > 0
}

func (f *RandomForestRegressor) workers() int {
	if f.NJobs <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return f.NJobs
}

// Fit grows NEstimators trees concurrently. Every tree's seed is drawn from
// the master source before any goroutine starts, so the fitted forest does
// not depend on scheduling.
func (f *RandomForestRegressor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if _, err := matrixWidth(X); err != nil {
		return err
	}
	if len(X) != len(y) {
		return fmt.Errorf("feature matrix has %d rows, target has %d", len(X), len(y))
	}
	if f.NEstimators <= 0 {
		return fmt.Errorf("n_estimators must be positive: %d", f.NEstimators)
	}

	master := rand.New(rand.NewSource(f.RandomState))
	seeds := make([]int64, f.NEstimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]RegressionTree, f.NEstimators)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers())

	for i, seed := range seeds {
		i, seed := i, seed
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()

			rng := rand.New(rand.NewSource(seed))
			samples := make([]int, len(X))
			for k := range samples {
				samples[k] = rng.Intn(len(X))
			}
			trees[i].Fit(X, y, samples, rng)

			if f.onTreeFitted != nil {
				f.onTreeFitted(time.Since(start))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	f.Trees = trees
	return nil
}

// Predict returns the mean tree prediction for every row of X
func (f *RandomForestRegressor) Predict(X [][]float64) ([]float64, error) {
	if !f.Fitted() {
		return nil, fmt.Errorf("forest is not fitted")
	}

	out := make([]float64, len(X))
	for i, row := range X {
		var sum float64
		for t := range f.Trees {
			sum += f.Trees[t].Predict(row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}
