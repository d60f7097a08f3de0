package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"optimizee/internal/models"
	"optimizee/pkg/logging"
)

// Parquet key/value metadata keys
const (
	metaDatetimeCol = "optimizee.datetime_col"
	metaTargetCol   = "optimizee.target_col"
	metaRows        = "optimizee.rows"
)

// featureRecord is the on-disk row layout of the processed dataset.
// Column names are fixed; the schema's own names travel in file metadata.
type featureRecord struct {
	TimestampUs   int64    `parquet:"timestamp,timestamp(microsecond)"`
	Consumption   float64  `parquet:"consumption_kwh"`
	SourceFile    string   `parquet:"source_file,dict"`
	Hour          int32    `parquet:"hour"`
	DayOfWeek     int32    `parquet:"dayofweek"`
	Month         int32    `parquet:"month"`
	IsWeekend     int32    `parquet:"is_weekend"`
	Lag1          float64  `parquet:"lag_1"`
	Lag24         *float64 `parquet:"lag_24,optional"`
	RollingMean24 float64  `parquet:"rolling_mean_24"`
	RollingStd24  float64  `parquet:"rolling_std_24"`
}

func toRecord(row models.FeatureRow) featureRecord {
	rec := featureRecord{
		TimestampUs:   row.Timestamp.UnixMicro(),
		Consumption:   row.Consumption,
		SourceFile:    row.SourceFile,
		Hour:          int32(row.Hour),
		DayOfWeek:     int32(row.DayOfWeek),
		Month:         int32(row.Month),
		IsWeekend:     int32(row.IsWeekend),
		Lag1:          row.Lag1,
		RollingMean24: row.RollingMean24,
		RollingStd24:  row.RollingStd24,
	}
	if row.Lag24 != nil {
		lag := *row.Lag24
		rec.Lag24 = &lag
	}
	return rec
}

func (rec featureRecord) toRow() models.FeatureRow {
	return models.FeatureRow{
		Timestamp:     time.UnixMicro(rec.TimestampUs).UTC(),
		Consumption:   rec.Consumption,
		SourceFile:    rec.SourceFile,
		Hour:          int(rec.Hour),
		DayOfWeek:     int(rec.DayOfWeek),
		Month:         int(rec.Month),
		IsWeekend:     int(rec.IsWeekend),
		Lag1:          rec.Lag1,
		Lag24:         rec.Lag24,
		RollingMean24: rec.RollingMean24,
		RollingStd24:  rec.RollingStd24,
	}
}

// DatasetRepository stores the processed dataset as a single parquet file
type DatasetRepository struct {
	path   string
	logger *logging.StructuredLogger
}

// NewDatasetRepository creates a repository for the parquet file at path
func NewDatasetRepository(path string, logger *logging.StructuredLogger) *DatasetRepository {
	return &DatasetRepository{path: path, logger: logger}
}

// Path returns the parquet file location
func (r *DatasetRepository) Path() string {
	return r.path
}

// Exists reports whether a processed dataset has been written
func (r *DatasetRepository) Exists() bool {
	return fileExists(r.path)
}

// Save replaces the dataset file atomically
func (r *DatasetRepository) Save(ctx context.Context, ds models.Dataset) error {
	records := make([]featureRecord, len(ds.Rows))
	for i, row := range ds.Rows {
		records[i] = toRecord(row)
	}

	err := writeAtomic(r.path, func(tmp string) error {
		return parquet.WriteFile(tmp, records,
			parquet.KeyValueMetadata(metaDatetimeCol, ds.Schema.DatetimeCol),
			parquet.KeyValueMetadata(metaTargetCol, ds.Schema.TargetCol),
			parquet.KeyValueMetadata(metaRows, strconv.Itoa(len(records))),
		)
	})
	if err != nil {
		return fmt.Errorf("failed to write processed dataset: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_DATASET_SAVE] Processed dataset written", logging.Fields{
		"path": r.path,
		"rows": len(records),
	})
	return nil
}

// Load reads the dataset back. A missing file yields MissingInputError.
func (r *DatasetRepository) Load(ctx context.Context) (models.Dataset, error) {
	schema, err := r.readSchema()
	if err != nil {
		return models.Dataset{}, err
	}

	records, err := parquet.ReadFile[featureRecord](r.path)
	if err != nil {
		return models.Dataset{}, fmt.Errorf("failed to read processed dataset: %w", err)
	}

	rows := make([]models.FeatureRow, len(records))
	for i, rec := range records {
		rows[i] = rec.toRow()
	}

	r.logger.Debug(ctx, "[REPO_DATASET_LOAD] Processed dataset read", logging.Fields{
		"path": r.path,
		"rows": len(rows),
	})
	return models.Dataset{Schema: schema, Rows: rows}, nil
}

// readSchema recovers the column names recorded at save time, falling back
// to the defaults for files written without them.
func (r *DatasetRepository) readSchema() (models.Schema, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Schema{}, &models.MissingInputError{
				Resource: "processed dataset",
				Path:     r.path,
				Hint:     "Run: optimizee preprocess",
			}
		}
		return models.Schema{}, fmt.Errorf("failed to open processed dataset: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.Schema{}, fmt.Errorf("failed to stat processed dataset: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return models.Schema{}, fmt.Errorf("failed to open processed dataset: %w", err)
	}

	schema := models.DefaultSchema()
	if v, ok := pf.Lookup(metaDatetimeCol); ok && v != "" {
		schema.DatetimeCol = v
	}
	if v, ok := pf.Lookup(metaTargetCol); ok && v != "" {
		schema.TargetCol = v
	}
	return schema, nil
}
