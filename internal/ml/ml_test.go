package ml

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optimizee/internal/models"
)

func hourlyDataset(n int) models.Dataset {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]models.FeatureRow, n)
	prev := 1.0
	for i := range rows {
		ts := base.Add(time.Duration(i) * time.Hour)
		y := 1 + math.Sin(float64(ts.Hour())/24*2*math.Pi) + 0.1*float64(i%5)
		row := models.FeatureRow{
			Timestamp:     ts,
			Consumption:   y,
			Hour:          ts.Hour(),
			DayOfWeek:     (int(ts.Weekday()) + 6) % 7,
			Month:         int(ts.Month()),
			Lag1:          prev,
			RollingMean24: y,
		}
		if i >= 24 {
			lag := rows[i-24].Consumption
			row.Lag24 = &lag
		}
		rows[i] = row
		prev = y
	}
	return models.Dataset{Schema: models.DefaultSchema(), Rows: rows}
}

func smallModel() *EnergyModel {
	m := NewEnergyModel(models.FeatureColumns())
	m.Build()
	m.Pipeline.Forest.NEstimators = 20
	return m
}

func TestMedianImputer(t *testing.T) {
	nan := math.NaN()
	X := [][]float64{
		{1, 1, nan},
		{nan, 2, nan},
		{3, 3, nan},
		{2, 4, nan},
	}

	imp := &MedianImputer{}
	require.NoError(t, imp.Fit(X))
	assert.Equal(t, []float64{2, 2.5, 0}, imp.Statistics)

	out, err := imp.Transform([][]float64{{nan, nan, nan}, {7, 8, 9}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 2.5, 0}, {7, 8, 9}}, out)

	// input untouched
	assert.True(t, math.IsNaN(X[1][0]))

	_, err = (&MedianImputer{}).Transform(X)
	assert.Error(t, err)
}

func TestStandardScaler(t *testing.T) {
	X := [][]float64{{1, 5}, {2, 5}, {3, 5}}

	sc := &StandardScaler{}
	require.NoError(t, sc.Fit(X))
	assert.Equal(t, []float64{2, 5}, sc.Mean)
	assert.InDelta(t, math.Sqrt(2.0/3.0), sc.Scale[0], 1e-12)
	assert.Equal(t, 1.0, sc.Scale[1])

	out, err := sc.Transform(X)
	require.NoError(t, err)
	assert.InDelta(t, 0, out[1][0], 1e-12)
	assert.InDelta(t, -out[0][0], out[2][0], 1e-12)
	assert.Equal(t, 0.0, out[0][1])
}

func TestRegressionTree_StepFunction(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {3}}
	y := []float64{0, 0, 10, 10}

	var tree RegressionTree
	tree.Fit(X, y, []int{0, 1, 2, 3}, rand.New(rand.NewSource(1)))

	require.Len(t, tree.Nodes, 3)
	assert.Equal(t, 0, tree.Nodes[0].Feature)
	assert.Equal(t, 1.5, tree.Nodes[0].Threshold)
	assert.Equal(t, 1, tree.Depth())

	tests := []struct {
		x    float64
		want float64
	}{
		{-5, 0}, {1, 0}, {1.5, 0}, {1.6, 10}, {100, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tree.Predict([]float64{tt.x}), "x=%v", tt.x)
	}
}

func TestRegressionTree_PureAndConstantNodesAreLeaves(t *testing.T) {
	var tree RegressionTree

	tree.Fit([][]float64{{0}, {1}, {2}}, []float64{4, 4, 4}, []int{0, 1, 2}, rand.New(rand.NewSource(1)))
	assert.Len(t, tree.Nodes, 1)
	assert.Equal(t, 4.0, tree.Predict([]float64{9}))

	// No feature separates the rows: the leaf is the mean.
	tree.Fit([][]float64{{1}, {1}}, []float64{2, 6}, []int{0, 1}, rand.New(rand.NewSource(1)))
	assert.Len(t, tree.Nodes, 1)
	assert.Equal(t, 4.0, tree.Predict([]float64{1}))
}

func TestRandomForest_DeterministicAcrossWorkers(t *testing.T) {
	ds := hourlyDataset(80)
	X, err := ds.Matrix(models.FeatureColumns())
	require.NoError(t, err)
	for _, row := range X {
		if math.IsNaN(row[5]) {
			row[5] = 0
		}
	}
	y, err := ds.Column(models.DefaultTargetCol)
	require.NoError(t, err)

	serial := &RandomForestRegressor{NEstimators: 12, RandomState: 42, NJobs: 1}
	parallel := &RandomForestRegressor{NEstimators: 12, RandomState: 42, NJobs: -1}

	require.NoError(t, serial.Fit(context.Background(), X, y))
	require.NoError(t, parallel.Fit(context.Background(), X, y))
	assert.Equal(t, serial.Trees, parallel.Trees)

	other := &RandomForestRegressor{NEstimators: 12, RandomState: 7, NJobs: 1}
	require.NoError(t, other.Fit(context.Background(), X, y))
	assert.NotEqual(t, serial.Trees, other.Trees)
}

func TestRandomForest_ReportsTreeTimings(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {3}}
	y := []float64{0, 1, 2, 3}

	f := &RandomForestRegressor{NEstimators: 5, RandomState: 1, NJobs: 1}
	var calls int
	f.OnTreeFitted(func(time.Duration) { calls++ })
	require.NoError(t, f.Fit(context.Background(), X, y))
	assert.Equal(t, 5, calls)
}

func TestRandomForest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewRandomForestRegressor()
	err := f.Fit(ctx, [][]float64{{0}, {1}}, []float64{0, 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.Fitted())
}

func TestEnergyModel_PredictBeforeTrain(t *testing.T) {
	ds := hourlyDataset(30)

	m := NewEnergyModel(models.FeatureColumns())
	_, err := m.Predict(ds)
	var untrained *models.UntrainedModelError
	assert.True(t, errors.As(err, &untrained))

	m.Build()
	_, err = m.Predict(ds)
	assert.True(t, errors.As(err, &untrained))
}

func TestEnergyModel_TrainPredict(t *testing.T) {
	ds := hourlyDataset(72)
	train, test := ds.Slice(0, 60), ds.Slice(60, 72)

	m := smallModel()
	require.NoError(t, m.Train(context.Background(), train, models.DefaultTargetCol))
	assert.True(t, m.Trained())

	pred, err := m.Predict(test)
	require.NoError(t, err)
	require.Len(t, pred, test.Len())
	for _, p := range pred {
		assert.False(t, math.IsNaN(p))
	}

	again := smallModel()
	require.NoError(t, again.Train(context.Background(), train, models.DefaultTargetCol))
	pred2, err := again.Predict(test)
	require.NoError(t, err)
	assert.Equal(t, pred, pred2)
}

func TestEnergyModel_TrainRejects(t *testing.T) {
	inf := math.Inf(1)

	tests := []struct {
		name   string
		ds     models.Dataset
		cols   []string
		target string
	}{
		{"empty", models.Dataset{Schema: models.DefaultSchema()}, models.FeatureColumns(), models.DefaultTargetCol},
		{"unknown feature", hourlyDataset(10), []string{"hour", "temperature"}, models.DefaultTargetCol},
		{"unknown target", hourlyDataset(10), models.FeatureColumns(), "kwh"},
		{"infinite target", func() models.Dataset {
			ds := hourlyDataset(10)
			ds.Rows[3].Consumption = inf
			return ds
		}(), models.FeatureColumns(), models.DefaultTargetCol},
		{"infinite feature", func() models.Dataset {
			ds := hourlyDataset(10)
			ds.Rows[2].Lag1 = inf
			return ds
		}(), models.FeatureColumns(), models.DefaultTargetCol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewEnergyModel(tt.cols)
			err := m.Train(context.Background(), tt.ds, tt.target)
			var fitErr *models.FitError
			assert.True(t, errors.As(err, &fitErr), "got %v", err)
			assert.False(t, m.Trained())
		})
	}
}

func TestEnergyModel_GobRoundTrip(t *testing.T) {
	ds := hourlyDataset(50)
	m := smallModel()
	require.NoError(t, m.Train(context.Background(), ds, models.DefaultTargetCol))

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(m))

	var loaded EnergyModel
	require.NoError(t, gob.NewDecoder(&buf).Decode(&loaded))

	want, err := m.Predict(ds)
	require.NoError(t, err)
	got, err := loaded.Predict(ds)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, m.FeatureCols, loaded.FeatureCols)
}

func TestRegressionMetrics(t *testing.T) {
	yTrue := []float64{1, 2, 3}
	yPred := []float64{2, 2, 5}

	mae, err := MeanAbsoluteError(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mae, 1e-12)

	rmse, err := RootMeanSquaredError(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(5.0/3.0), rmse, 1e-12)

	_, err = MeanAbsoluteError(nil, nil)
	assert.Error(t, err)
	_, err = RootMeanSquaredError([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
}
