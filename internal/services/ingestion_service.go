package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"optimizee/internal/models"
	"optimizee/pkg/logging"
	"optimizee/pkg/metrics"
)

// naTokens are the cell values read as missing
var naTokens = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "<nil>", "N/A", "NA", "NULL", "NaN", "None",
	"n/a", "nan", "null",
}

// Column names tried, in order, when the schema's names are absent
var (
	datetimeCandidates = []string{"timestamp", "datetime", "date", "time", "Date", "Datetime", "Timestamp"}
	targetCandidates   = []string{
		"consumption_kwh", "kwh", "consumption", "energy", "Energy", "Load", "load",
		"power", "Power", "usage", "Usage",
	}
)

// Drop reasons used for the rows_dropped metric
const (
	dropInvalidTimestamp = "invalid_timestamp"
	dropInvalidTarget    = "invalid_target"
)

// IngestionService loads raw CSV energy readings
type IngestionService struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// LoadResult contains the coerced records and what was inferred to get them
type LoadResult struct {
	Records       []models.EnergyRecord
	SourceFiles   []string
	Columns       []string
	Schema        models.Schema
	ColumnMapping map[string]string
	DroppedRows   int
	Duration      time.Duration
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		logger:  logger,
		metrics: metricsCollector,
	}
}

type rawFrame struct {
	name string
	df   dataframe.DataFrame
}

// LoadDirectory reads every *.csv in dir, in name order, and returns one
// record per row with a parseable timestamp and numeric target.
func (s *IngestionService) LoadDirectory(ctx context.Context, dir string, schema models.Schema) (*LoadResult, error) {
	startTime := time.Now()
	defer s.metrics.StageTimer("load").ObserveDuration()

	s.logger.Info(ctx, "[LOAD_START] Starting raw data load", logging.Fields{
		"data_dir": dir,
		"stage":    "INITIALIZATION",
	})

	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	if len(files) == 0 {
		return nil, &models.MissingInputError{
			Resource: "raw CSV files",
			Path:     dir,
			Hint:     "Put your raw dataset(s) there",
		}
	}
	sort.Strings(files)

	frames := make([]rawFrame, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fileLog := s.logger.WithFields(logging.Fields{
			"file_path": path,
			"stage":     "FILE_PROCESSING",
		})

		df, err := readFrame(path)
		if err != nil {
			fileLog.Error(ctx, "[LOAD_FILE_ERROR] File read failed", logging.Fields{}, err)
			return nil, err
		}
		frames = append(frames, rawFrame{name: filepath.Base(path), df: df})
		s.metrics.LoaderFilesTotal.Inc()

		if df.Nrow() == 0 {
			fileLog.Warn(ctx, "[LOAD_FILE_EMPTY] File has a header but no rows", logging.Fields{
				"columns": df.Names(),
			})
			continue
		}
		fileLog.Debug(ctx, "[LOAD_FILE] File read", logging.Fields{
			"rows":    df.Nrow(),
			"columns": df.Ncol(),
		})
	}

	columns, numeric := columnUnion(frames)
	if len(columns) == 0 {
		return nil, &models.SchemaInferenceError{}
	}

	dtCol := schema.DatetimeCol
	if !slices.Contains(columns, dtCol) {
		dtCol = pickDatetimeColumn(columns)
	}
	yCol := schema.TargetCol
	if !slices.Contains(columns, yCol) {
		yCol, err = pickTargetColumn(columns, numeric)
		if err != nil {
			return nil, err
		}
	}

	mapping := make(map[string]string)
	if dtCol != schema.DatetimeCol {
		mapping[dtCol] = schema.DatetimeCol
	}
	if yCol != schema.TargetCol {
		mapping[yCol] = schema.TargetCol
	}

	s.logger.Info(ctx, "[LOAD_SCHEMA] Columns inferred", logging.Fields{
		"datetime_col": dtCol,
		"target_col":   yCol,
		"columns":      columns,
		"renamed":      mapping,
	})

	result := &LoadResult{
		SourceFiles:   files,
		Columns:       columns,
		Schema:        schema,
		ColumnMapping: mapping,
	}

	droppedTimestamp, droppedTarget := 0, 0
	for _, frame := range frames {
		timestamps := frameTimestamps(frame.df, dtCol)
		values := frameValues(frame.df, yCol)

		for i := 0; i < frame.df.Nrow(); i++ {
			switch {
			case timestamps[i].IsZero():
				droppedTimestamp++
			case math.IsNaN(values[i]):
				droppedTarget++
			default:
				result.Records = append(result.Records, models.EnergyRecord{
					Timestamp:   timestamps[i],
					Consumption: values[i],
					SourceFile:  frame.name,
				})
			}
		}
	}

	result.DroppedRows = droppedTimestamp + droppedTarget
	result.Duration = time.Since(startTime)

	s.metrics.LoaderRecordsTotal.Add(float64(len(result.Records)))
	s.metrics.RecordDroppedRows(dropInvalidTimestamp, droppedTimestamp)
	s.metrics.RecordDroppedRows(dropInvalidTarget, droppedTarget)

	s.logger.Info(ctx, "[LOAD_COMPLETE] Raw data load completed", logging.Fields{
		"total_files":       len(files),
		"records":           len(result.Records),
		"dropped_timestamp": droppedTimestamp,
		"dropped_target":    droppedTarget,
		"duration_seconds":  result.Duration.Seconds(),
		"stage":             "COMPLETE",
	})

	return result, nil
}

// readFrame parses one CSV with a header row and per-column type detection
func readFrame(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to read file: %w", err)
	}

	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(naTokens),
	)
	if df.Err != nil {
		if header, ok := headerOnly(data); ok {
			return emptyFrame(header), nil
		}
		return dataframe.DataFrame{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), df.Err)
	}
	return df, nil
}

// headerOnly reports whether data holds a header row and nothing else
func headerOnly(data []byte) ([]string, bool) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil || len(records) != 1 {
		return nil, false
	}
	return records[0], true
}

// emptyFrame is a zero-row frame that still carries its column names
func emptyFrame(header []string) dataframe.DataFrame {
	cols := make([]series.Series, len(header))
	for i, name := range header {
		cols[i] = series.New([]string{}, series.String, name)
	}
	return dataframe.New(cols...)
}

// columnUnion returns all column names in order of first appearance, and
// whether each was typed numeric by every file that has rows for it.
// Header-only files contribute names but no types.
func columnUnion(frames []rawFrame) ([]string, map[string]bool) {
	var columns []string
	numeric := make(map[string]bool)
	typed := make(map[string]bool)

	for _, frame := range frames {
		empty := frame.df.Nrow() == 0
		types := frame.df.Types()
		for i, name := range frame.df.Names() {
			if _, seen := numeric[name]; !seen {
				columns = append(columns, name)
				numeric[name] = false
			}
			if empty {
				continue
			}

			isNum := types[i] == series.Int || types[i] == series.Float
			if !typed[name] {
				numeric[name] = isNum
				typed[name] = true
				continue
			}
			numeric[name] = numeric[name] && isNum
		}
	}
	return columns, numeric
}

func pickDatetimeColumn(columns []string) string {
	for _, c := range datetimeCandidates {
		if slices.Contains(columns, c) {
			return c
		}
	}
	return columns[0]
}

func pickTargetColumn(columns []string, numeric map[string]bool) (string, error) {
	for _, c := range targetCandidates {
		if slices.Contains(columns, c) {
			return c, nil
		}
	}
	for i := len(columns) - 1; i >= 0; i-- {
		if numeric[columns[i]] {
			return columns[i], nil
		}
	}
	return "", &models.SchemaInferenceError{Columns: columns}
}

// frameTimestamps parses col permissively. Values with an offset keep it so
// calendar features use the local wall clock; naive values are taken as UTC.
// Times are truncated to the microsecond precision the dataset stores.
// Unparseable or missing cells come back as the zero time.
func frameTimestamps(df dataframe.DataFrame, col string) []time.Time {
	out := make([]time.Time, df.Nrow())
	if !slices.Contains(df.Names(), col) {
		return out
	}

	s := df.Col(col)
	missing := s.IsNaN()
	for i, raw := range s.Records() {
		if missing[i] {
			continue
		}
		ts, err := dateparse.ParseIn(raw, time.UTC)
		if err != nil {
			continue
		}
		out[i] = ts.Truncate(models.TimestampPrecision)
	}
	return out
}

// frameValues coerces col to float64; anything unparseable is NaN
func frameValues(df dataframe.DataFrame, col string) []float64 {
	out := make([]float64, df.Nrow())
	if !slices.Contains(df.Names(), col) {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	s := df.Col(col)
	if s.Type() == series.Int || s.Type() == series.Float || s.Type() == series.String {
		return s.Float()
	}
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
