package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"optimizee/internal/models"
	"optimizee/pkg/database"
	"optimizee/pkg/logging"
	"optimizee/pkg/metrics"
)

// FeatureRepository mirrors processed feature rows into the Postgres warehouse
type FeatureRepository interface {
	UpsertFeaturesBatch(ctx context.Context, rows []models.FeatureRow) (int, error)
	CountFeatures(ctx context.Context) (int, error)
	LatestTimestamp(ctx context.Context) (time.Time, error)
	HealthCheck(ctx context.Context) error
}

const upsertFeatureQuery = `
	INSERT INTO energy_features (
		timestamp, consumption, source_file,
		hour, dayofweek, month, is_weekend,
		lag_1, lag_24, rolling_mean_24, rolling_std_24,
		updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (timestamp) DO UPDATE SET
		consumption = EXCLUDED.consumption,
		source_file = EXCLUDED.source_file,
		hour = EXCLUDED.hour,
		dayofweek = EXCLUDED.dayofweek,
		month = EXCLUDED.month,
		is_weekend = EXCLUDED.is_weekend,
		lag_1 = EXCLUDED.lag_1,
		lag_24 = EXCLUDED.lag_24,
		rolling_mean_24 = EXCLUDED.rolling_mean_24,
		rolling_std_24 = EXCLUDED.rolling_std_24,
		updated_at = EXCLUDED.updated_at
`

// featureRepository implements FeatureRepository
type featureRepository struct {
	db        *database.PostgresDB
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
	batchSize int
}

// NewFeatureRepository creates a warehouse repository writing batchSize rows per transaction
func NewFeatureRepository(db *database.PostgresDB, batchSize int, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) FeatureRepository {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &featureRepository{
		db:        db,
		logger:    logger,
		metrics:   metricsCollector,
		batchSize: batchSize,
	}
}

// UpsertFeaturesBatch writes rows keyed by timestamp, one transaction per batch.
// Batches committed before a failure stay committed.
func (r *featureRepository) UpsertFeaturesBatch(ctx context.Context, rows []models.FeatureRow) (int, error) {
	written := 0
	for _, batch := range chunkRows(rows, r.batchSize) {
		if err := r.upsertBatch(ctx, batch); err != nil {
			return written, err
		}
		written += len(batch)
	}
	return written, nil
}

func (r *featureRepository) upsertBatch(ctx context.Context, batch []models.FeatureRow) error {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.WarehouseBatchSize.Observe(float64(len(batch)))
		r.metrics.DBQueryDuration.WithLabelValues("upsert_features").Observe(duration.Seconds())
		r.logger.Debug(ctx, "[REPO_BATCH_UPSERT] Batch upsert completed", logging.Fields{
			"count":       len(batch),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertFeatureQuery)
	if err != nil {
		r.metrics.RecordDBError("prepare_error")
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, row := range batch {
		_, err := stmt.ExecContext(ctx,
			row.Timestamp.UTC(),
			row.Consumption,
			row.SourceFile,
			row.Hour,
			row.DayOfWeek,
			row.Month,
			row.IsWeekend,
			row.Lag1,
			row.Lag24,
			row.RollingMean24,
			row.RollingStd24,
			now,
		)
		if err != nil {
			r.metrics.RecordDBError("exec_error")
			return fmt.Errorf("failed to upsert feature row %s: %w", row.Timestamp.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.metrics.RecordDBError("commit_error")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.WarehouseRowsTotal.Add(float64(len(batch)))
	return nil
}

// CountFeatures returns the number of rows in the warehouse
func (r *featureRepository) CountFeatures(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, "count_features", &count, `SELECT COUNT(*) FROM energy_features`)
	if err != nil {
		return 0, fmt.Errorf("failed to count features: %w", err)
	}
	return count, nil
}

// LatestTimestamp returns the newest warehouse timestamp
func (r *featureRepository) LatestTimestamp(ctx context.Context) (time.Time, error) {
	var latest sql.NullTime
	err := r.db.GetContext(ctx, "latest_feature", &latest, `SELECT MAX(timestamp) FROM energy_features`)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest feature timestamp: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, &NotFoundError{Resource: "energy_features", ID: "latest"}
	}
	return latest.Time.UTC(), nil
}

// HealthCheck performs a repository health check
func (r *featureRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// chunkRows splits rows into consecutive slices of at most size rows
func chunkRows(rows []models.FeatureRow, size int) [][]models.FeatureRow {
	if size <= 0 {
		size = len(rows)
	}
	var chunks [][]models.FeatureRow
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
