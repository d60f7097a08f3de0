package ml

import (
	"time"

	"optimizee/internal/models"
)

// ModelArtifact is what train persists and dash loads
type ModelArtifact struct {
	Model    *EnergyModel
	Schema   models.Schema
	Metadata ArtifactMetadata
}

// ArtifactMetadata describes the training run that produced an artifact
type ArtifactMetadata struct {
	RunID       string    `json:"run_id"`
	TrainedAt   time.Time `json:"trained_at"`
	FeatureCols []string  `json:"feature_cols"`
	TrainRows   int       `json:"train_rows"`
	TestRows    int       `json:"test_rows"`
	MAE         float64   `json:"mae"`
	RMSE        float64   `json:"rmse"`
}
