package repository

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"optimizee/internal/ml"
	"optimizee/internal/models"
	"optimizee/pkg/logging"
)

// ArtifactRepository stores the trained model artifact as a gob file
type ArtifactRepository struct {
	path   string
	logger *logging.StructuredLogger
}

// NewArtifactRepository creates a repository for the artifact at path
func NewArtifactRepository(path string, logger *logging.StructuredLogger) *ArtifactRepository {
	return &ArtifactRepository{path: path, logger: logger}
}

func (r *ArtifactRepository) Path() string {
	return r.path
}

// Exists reports whether a model has been trained
func (r *ArtifactRepository) Exists() bool {
	return fileExists(r.path)
}

// Save replaces the artifact file atomically
func (r *ArtifactRepository) Save(ctx context.Context, artifact *ml.ModelArtifact) error {
	err := writeAtomic(r.path, func(tmp string) error {
		f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		if err := gob.NewEncoder(f).Encode(artifact); err != nil {
			f.Close()
			return fmt.Errorf("failed to encode model artifact: %w", err)
		}
		return f.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to write model artifact: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_ARTIFACT_SAVE] Model artifact written", logging.Fields{
		"path":   r.path,
		"run_id": artifact.Metadata.RunID,
	})
	return nil
}

// Load decodes the artifact. A missing file yields MissingInputError.
func (r *ArtifactRepository) Load(ctx context.Context) (*ml.ModelArtifact, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &models.MissingInputError{
				Resource: "model artifact",
				Path:     r.path,
				Hint:     "Run: optimizee train",
			}
		}
		return nil, fmt.Errorf("failed to open model artifact: %w", err)
	}
	defer f.Close()

	var artifact ml.ModelArtifact
	if err := gob.NewDecoder(f).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	if artifact.Model == nil {
		return nil, fmt.Errorf("model artifact %s holds no model", r.path)
	}

	r.logger.Debug(ctx, "[REPO_ARTIFACT_LOAD] Model artifact read", logging.Fields{
		"path":   r.path,
		"run_id": artifact.Metadata.RunID,
	})
	return &artifact, nil
}
