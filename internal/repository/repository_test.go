package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optimizee/internal/ml"
	"optimizee/internal/models"
	"optimizee/pkg/logging"
)

func featureRows(n int) []models.FeatureRow {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]models.FeatureRow, n)
	for i := range rows {
		ts := base.Add(time.Duration(i) * time.Hour)
		rows[i] = models.FeatureRow{
			Timestamp:     ts,
			Consumption:   float64(i%24) + 0.5,
			SourceFile:    "a.csv",
			Hour:          ts.Hour(),
			DayOfWeek:     (int(ts.Weekday()) + 6) % 7,
			Month:         int(ts.Month()),
			Lag1:          float64(i),
			RollingMean24: 1.25,
			RollingStd24:  0.5,
		}
		if i >= 24 {
			lag := float64(i - 24)
			rows[i].Lag24 = &lag
		}
	}
	return rows
}

func TestDatasetRepository_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "processed", "processed.parquet")
	repo := NewDatasetRepository(path, logging.NewNopLogger())
	assert.False(t, repo.Exists())

	ds := models.Dataset{
		Schema: models.Schema{DatetimeCol: "Date", TargetCol: "kwh"},
		Rows:   featureRows(30),
	}
	require.NoError(t, repo.Save(context.Background(), ds))
	assert.True(t, repo.Exists())

	loaded, err := repo.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ds.Schema, loaded.Schema)
	require.Equal(t, ds.Len(), loaded.Len())
	for i := range ds.Rows {
		assert.True(t, ds.Rows[i].Timestamp.Equal(loaded.Rows[i].Timestamp), "row %d", i)
		assert.Equal(t, ds.Rows[i].Consumption, loaded.Rows[i].Consumption)
		assert.Equal(t, ds.Rows[i].Hour, loaded.Rows[i].Hour)
		assert.Equal(t, ds.Rows[i].SourceFile, loaded.Rows[i].SourceFile)
		assert.Equal(t, ds.Rows[i].Lag24, loaded.Rows[i].Lag24)
	}
	assert.Nil(t, loaded.Rows[0].Lag24)
	assert.Equal(t, 1.0, *loaded.Rows[25].Lag24)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDatasetRepository_SubMillisecondTimestamps(t *testing.T) {
	repo := NewDatasetRepository(filepath.Join(t.TempDir(), "processed.parquet"), logging.NewNopLogger())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := featureRows(3)
	rows[0].Timestamp = base.Add(100 * time.Microsecond)
	rows[1].Timestamp = base.Add(300 * time.Microsecond)
	rows[2].Timestamp = time.Date(2300, 6, 1, 12, 0, 0, 5000, time.UTC)

	require.NoError(t, repo.Save(context.Background(), models.Dataset{Schema: models.DefaultSchema(), Rows: rows}))
	loaded, err := repo.Load(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, loaded.Len())
	for i := range rows {
		assert.True(t, rows[i].Timestamp.Equal(loaded.Rows[i].Timestamp), "row %d: %s", i, loaded.Rows[i].Timestamp)
	}
	assert.False(t, loaded.Rows[0].Timestamp.Equal(loaded.Rows[1].Timestamp))
}

func TestDatasetRepository_OffsetTimestampsKeepCalendarColumns(t *testing.T) {
	repo := NewDatasetRepository(filepath.Join(t.TempDir(), "processed.parquet"), logging.NewNopLogger())

	rows := featureRows(1)
	rows[0].Timestamp = time.Date(2024, 1, 7, 0, 0, 0, 0, time.FixedZone("", 2*3600))
	rows[0].Hour, rows[0].DayOfWeek, rows[0].IsWeekend = 0, 6, 1

	require.NoError(t, repo.Save(context.Background(), models.Dataset{Schema: models.DefaultSchema(), Rows: rows}))
	loaded, err := repo.Load(context.Background())
	require.NoError(t, err)

	assert.True(t, rows[0].Timestamp.Equal(loaded.Rows[0].Timestamp))
	assert.Equal(t, 0, loaded.Rows[0].Hour)
	assert.Equal(t, 6, loaded.Rows[0].DayOfWeek)
	assert.Equal(t, 1, loaded.Rows[0].IsWeekend)
}

func TestDatasetRepository_Missing(t *testing.T) {
	repo := NewDatasetRepository(filepath.Join(t.TempDir(), "processed.parquet"), logging.NewNopLogger())

	_, err := repo.Load(context.Background())
	var missing *models.MissingInputError
	require.True(t, errors.As(err, &missing))
	assert.Contains(t, err.Error(), "optimizee preprocess")
}

func TestArtifactRepository_RoundTrip(t *testing.T) {
	ds := models.Dataset{Schema: models.DefaultSchema(), Rows: featureRows(40)}

	model := ml.NewEnergyModel(models.FeatureColumns())
	model.Build()
	model.Pipeline.Forest.NEstimators = 10
	require.NoError(t, model.Train(context.Background(), ds, models.DefaultTargetCol))

	artifact := &ml.ModelArtifact{
		Model:  model,
		Schema: ds.Schema,
		Metadata: ml.ArtifactMetadata{
			RunID:       "run-1",
			TrainedAt:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			FeatureCols: models.FeatureColumns(),
			TrainRows:   32,
			TestRows:    8,
			MAE:         0.1,
			RMSE:        0.2,
		},
	}

	path := filepath.Join(t.TempDir(), "models", "model.gob")
	repo := NewArtifactRepository(path, logging.NewNopLogger())
	require.NoError(t, repo.Save(context.Background(), artifact))
	assert.True(t, repo.Exists())

	loaded, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, artifact.Schema, loaded.Schema)
	assert.Equal(t, "run-1", loaded.Metadata.RunID)
	assert.True(t, artifact.Metadata.TrainedAt.Equal(loaded.Metadata.TrainedAt))

	want, err := model.Predict(ds)
	require.NoError(t, err)
	got, err := loaded.Model.Predict(ds)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestArtifactRepository_Missing(t *testing.T) {
	repo := NewArtifactRepository(filepath.Join(t.TempDir(), "model.gob"), logging.NewNopLogger())

	_, err := repo.Load(context.Background())
	var missing *models.MissingInputError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "Run: optimizee train", missing.Hint)
}

func TestArtifactRepository_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, os.WriteFile(path, []byte("not a gob"), 0o644))

	_, err := NewArtifactRepository(path, logging.NewNopLogger()).Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, "internal", models.ErrorKind(err))
}

func TestChunkRows(t *testing.T) {
	rows := featureRows(7)

	tests := []struct {
		name  string
		size  int
		sizes []int
	}{
		{"even split", 7, []int{7}},
		{"remainder", 3, []int{3, 3, 1}},
		{"larger than input", 100, []int{7}},
		{"non-positive means one batch", 0, []int{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := chunkRows(rows, tt.size)
			got := make([]int, len(chunks))
			for i, c := range chunks {
				got[i] = len(c)
			}
			assert.Equal(t, tt.sizes, got)
		})
	}

	assert.Empty(t, chunkRows(nil, 10))
}

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{Resource: "energy_features", ID: "latest"}
	assert.Equal(t, "energy_features not found: latest", err.Error())
	assert.False(t, err.IsTransient())
}
