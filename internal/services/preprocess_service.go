package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"optimizee/internal/models"
	"optimizee/internal/repository"
	"optimizee/pkg/logging"
	"optimizee/pkg/metrics"
)

// rollingWindow is the trailing row count for lag_24 and the rolling stats
const rollingWindow = 24

// PreprocessService turns raw records into the processed feature dataset
type PreprocessService struct {
	ingestion *IngestionService
	datasets  *repository.DatasetRepository
	warehouse repository.FeatureRepository
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// PreprocessResult summarizes one preprocess run
type PreprocessResult struct {
	Load          *LoadResult
	Rows          int
	Duplicates    int
	Path          string
	WarehouseRows int
	Duration      time.Duration
}

// NewPreprocessService creates a preprocess service. warehouse may be nil,
// in which case processed rows are only written to the dataset file.
func NewPreprocessService(
	ingestion *IngestionService,
	datasets *repository.DatasetRepository,
	warehouse repository.FeatureRepository,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *PreprocessService {
	return &PreprocessService{
		ingestion: ingestion,
		datasets:  datasets,
		warehouse: warehouse,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// Run loads rawDir, derives features, persists the dataset and mirrors it
// into the warehouse when one is configured.
func (s *PreprocessService) Run(ctx context.Context, rawDir string, schema models.Schema) (*PreprocessResult, error) {
	startTime := time.Now()

	load, err := s.ingestion.LoadDirectory(ctx, rawDir, schema)
	if err != nil {
		s.metrics.RecordStageError("load", models.ErrorKind(err))
		return nil, err
	}

	ds, duplicates, err := s.preprocess(ctx, load.Records, schema)
	if err != nil {
		s.metrics.RecordStageError("preprocess", models.ErrorKind(err))
		return nil, err
	}

	result := &PreprocessResult{
		Load:       load,
		Rows:       ds.Len(),
		Duplicates: duplicates,
		Path:       s.datasets.Path(),
	}

	// The warehouse goes first: a failed mirror must not leave a fresh
	// dataset on disk for train to pick up.
	if s.warehouse != nil {
		written, err := s.mirror(ctx, ds.Rows)
		result.WarehouseRows = written
		if err != nil {
			s.metrics.RecordStageError("warehouse", models.ErrorKind(err))
			return nil, fmt.Errorf("failed to mirror features to warehouse: %w", err)
		}
	}

	if err := s.datasets.Save(ctx, ds); err != nil {
		s.metrics.RecordStageError("preprocess", models.ErrorKind(err))
		return nil, err
	}

	result.Duration = time.Since(startTime)

	s.logger.Info(ctx, "[PREPROCESS_COMPLETE] Processed dataset saved", logging.Fields{
		"path":             result.Path,
		"rows":             result.Rows,
		"duplicates":       duplicates,
		"warehouse_rows":   result.WarehouseRows,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return result, nil
}

// mirror upserts rows into the warehouse and logs what it holds afterwards
func (s *PreprocessService) mirror(ctx context.Context, rows []models.FeatureRow) (int, error) {
	log := s.logger.WithFields(logging.Fields{"stage": "WAREHOUSE", "rows": len(rows)})

	if err := s.warehouse.HealthCheck(ctx); err != nil {
		log.Error(ctx, "[WAREHOUSE_UNAVAILABLE] Warehouse health check failed", logging.Fields{}, err)
		return 0, err
	}

	written, err := s.warehouse.UpsertFeaturesBatch(ctx, rows)
	if err != nil {
		return written, err
	}

	total, err := s.warehouse.CountFeatures(ctx)
	if err != nil {
		return written, err
	}
	fields := logging.Fields{
		"written":    written,
		"total_rows": total,
	}
	if latest, err := s.warehouse.LatestTimestamp(ctx); err == nil {
		fields["latest"] = latest.Format(time.RFC3339)
	}
	log.Info(ctx, "[WAREHOUSE_SYNCED] Features mirrored to warehouse", fields)

	return written, nil
}

// Preprocess derives the feature dataset from raw records. The input slice is
// not modified.
func (s *PreprocessService) Preprocess(ctx context.Context, records []models.EnergyRecord, schema models.Schema) (models.Dataset, error) {
	ds, _, err := s.preprocess(ctx, records, schema)
	return ds, err
}

func (s *PreprocessService) preprocess(ctx context.Context, records []models.EnergyRecord, schema models.Schema) (models.Dataset, int, error) {
	defer s.metrics.StageTimer("preprocess").ObserveDuration()

	if err := ctx.Err(); err != nil {
		return models.Dataset{}, 0, err
	}

	unique := dedupeByTimestamp(records)
	duplicates := len(records) - len(unique)
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Timestamp.Before(unique[j].Timestamp)
	})

	rows := buildFeatureRows(unique)
	// lag_1 is undefined for the first row only
	if len(rows) > 0 {
		rows = rows[1:]
	}

	s.metrics.RecordDroppedRows("duplicate_timestamp", duplicates)
	s.metrics.RecordDroppedRows("missing_lag", len(unique)-len(rows))

	s.logger.Debug(ctx, "[PREPROCESS_FEATURES] Features derived", logging.Fields{
		"input_records": len(records),
		"duplicates":    duplicates,
		"rows":          len(rows),
	})

	return models.Dataset{Schema: schema, Rows: rows}, duplicates, nil
}

// dedupeByTimestamp keeps the first record seen for every instant at stored
// precision; the same instant written with different offsets is a duplicate.
func dedupeByTimestamp(records []models.EnergyRecord) []models.EnergyRecord {
	seen := make(map[time.Time]struct{}, len(records))
	out := make([]models.EnergyRecord, 0, len(records))
	for _, rec := range records {
		key := rec.Timestamp.UTC().Truncate(models.TimestampPrecision)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// buildFeatureRows computes calendar, lag and rolling features over
// timestamp-sorted records. Calendar fields read each timestamp in its own
// location. Row 0 carries a zero lag_1.
func buildFeatureRows(sorted []models.EnergyRecord) []models.FeatureRow {
	rows := make([]models.FeatureRow, len(sorted))
	y := make([]float64, len(sorted))
	for i, rec := range sorted {
		y[i] = rec.Consumption
	}

	for i, rec := range sorted {
		ts := rec.Timestamp
		dow := (int(ts.Weekday()) + 6) % 7

		row := models.FeatureRow{
			Timestamp:   ts,
			Consumption: rec.Consumption,
			SourceFile:  rec.SourceFile,
			Hour:        ts.Hour(),
			DayOfWeek:   dow,
			Month:       int(ts.Month()),
		}
		if dow >= 5 {
			row.IsWeekend = 1
		}
		if i >= 1 {
			row.Lag1 = y[i-1]
		}
		if i >= rollingWindow {
			lag := y[i-rollingWindow]
			row.Lag24 = &lag
		}

		window := y[max(0, i-rollingWindow+1) : i+1]
		if len(window) < 2 {
			row.RollingMean24 = window[0]
		} else {
			row.RollingMean24, row.RollingStd24 = stat.MeanStdDev(window, nil)
		}

		rows[i] = row
	}
	return rows
}
