package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"optimizee/internal/ml"
	"optimizee/internal/models"
	"optimizee/internal/repository"
	"optimizee/pkg/logging"
	"optimizee/pkg/metrics"
)

// TrainFraction is the share of the oldest rows used for fitting
const TrainFraction = 0.8

// TrainingService fits the baseline model and persists the artifact
type TrainingService struct {
	datasets  *repository.DatasetRepository
	artifacts *repository.ArtifactRepository
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector

	// newModel builds the unfitted model; replaced in tests to shrink the forest
	newModel func() *ml.EnergyModel
}

// TrainResult contains the evaluation of one training run
type TrainResult struct {
	RunID     string
	MAE       float64
	RMSE      float64
	ModelPath string
	TrainRows int
	TestRows  int
	Duration  time.Duration
}

// NewTrainingService creates a new training service
func NewTrainingService(
	datasets *repository.DatasetRepository,
	artifacts *repository.ArtifactRepository,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *TrainingService {
	return &TrainingService{
		datasets:  datasets,
		artifacts: artifacts,
		logger:    logger,
		metrics:   metricsCollector,
		newModel: func() *ml.EnergyModel {
			m := ml.NewEnergyModel(models.FeatureColumns())
			m.Build()
			return m
		},
	}
}

// SplitChronological returns the oldest floor(0.8*N) rows as train and the
// rest as test, after a stable sort by timestamp.
func SplitChronological(ds models.Dataset) (train, test models.Dataset) {
	sorted := ds.SortedByTimestamp()
	split := int(float64(sorted.Len()) * TrainFraction)
	return sorted.Slice(0, split), sorted.Slice(split, sorted.Len())
}

// Run loads the processed dataset and trains on it
func (s *TrainingService) Run(ctx context.Context) (*TrainResult, error) {
	ds, err := s.datasets.Load(ctx)
	if err != nil {
		s.metrics.RecordStageError("train", models.ErrorKind(err))
		return nil, err
	}
	return s.Train(ctx, ds)
}

// Train splits ds chronologically, fits, evaluates and saves the artifact
func (s *TrainingService) Train(ctx context.Context, ds models.Dataset) (*TrainResult, error) {
	startTime := time.Now()
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)

	result, err := s.train(ctx, ds, runID)
	if err != nil {
		s.metrics.RecordStageError("train", models.ErrorKind(err))
		s.logger.Error(ctx, "[TRAIN_ERROR] Training failed", logging.Fields{
			"rows":  ds.Len(),
			"kind":  models.ErrorKind(err),
			"stage": "TRAIN",
		}, err)
		return nil, err
	}

	result.Duration = time.Since(startTime)
	s.logger.Info(ctx, "[TRAIN_COMPLETE] Model trained and saved", logging.Fields{
		"model_path":       result.ModelPath,
		"train_rows":       result.TrainRows,
		"test_rows":        result.TestRows,
		"mae":              result.MAE,
		"rmse":             result.RMSE,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})
	return result, nil
}

func (s *TrainingService) train(ctx context.Context, ds models.Dataset, runID string) (*TrainResult, error) {
	defer s.metrics.StageTimer("train").ObserveDuration()

	train, test := SplitChronological(ds)
	if train.Len() == 0 {
		return nil, &models.FitError{Reason: "empty training set"}
	}
	if test.Len() == 0 {
		return nil, &models.FitError{Reason: "empty evaluation set"}
	}

	s.logger.Info(ctx, "[TRAIN_START] Fitting model", logging.Fields{
		"train_rows": train.Len(),
		"test_rows":  test.Len(),
		"features":   models.FeatureColumns(),
	})

	model := s.newModel()
	model.OnTreeFitted(func(d time.Duration) {
		s.metrics.TreeFitDuration.Observe(d.Seconds())
	})

	if err := model.Train(ctx, train, ds.Schema.TargetCol); err != nil {
		return nil, err
	}

	pred, err := model.Predict(test)
	if err != nil {
		return nil, err
	}
	actual, err := test.Column(ds.Schema.TargetCol)
	if err != nil {
		return nil, err
	}

	mae, err := ml.MeanAbsoluteError(actual, pred)
	if err != nil {
		return nil, &models.FitError{Reason: "evaluation", Err: err}
	}
	rmse, err := ml.RootMeanSquaredError(actual, pred)
	if err != nil {
		return nil, &models.FitError{Reason: "evaluation", Err: err}
	}

	artifact := &ml.ModelArtifact{
		Model:  model,
		Schema: ds.Schema,
		Metadata: ml.ArtifactMetadata{
			RunID:       runID,
			TrainedAt:   time.Now().UTC(),
			FeatureCols: model.FeatureCols,
			TrainRows:   train.Len(),
			TestRows:    test.Len(),
			MAE:         mae,
			RMSE:        rmse,
		},
	}
	if err := s.artifacts.Save(ctx, artifact); err != nil {
		return nil, err
	}

	s.metrics.RecordTraining(mae, rmse, train.Len(), test.Len())

	return &TrainResult{
		RunID:     runID,
		MAE:       mae,
		RMSE:      rmse,
		ModelPath: s.artifacts.Path(),
		TrainRows: train.Len(),
		TestRows:  test.Len(),
	}, nil
}
