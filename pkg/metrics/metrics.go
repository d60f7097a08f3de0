package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides pipeline and dashboard metrics
type Collector struct {
	// Loader
	LoaderFilesTotal   prometheus.Counter
	LoaderRecordsTotal prometheus.Counter
	RowsDroppedTotal   *prometheus.CounterVec

	// Pipeline stages
	StageDuration *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec

	// Training
	TrainingMAE     prometheus.Gauge
	TrainingRMSE    prometheus.Gauge
	TrainingRows    *prometheus.GaugeVec
	TreeFitDuration prometheus.Histogram

	// Dashboard API
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Warehouse
	WarehouseRowsTotal prometheus.Counter
	WarehouseBatchSize prometheus.Histogram
	DBQueryDuration    *prometheus.HistogramVec
	DBConnectionPool   *prometheus.GaugeVec
	DBErrorsTotal      *prometheus.CounterVec
}

// NewCollector registers all metrics on reg under namespace.
// Pass prometheus.DefaultRegisterer to expose them through promhttp.Handler.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		LoaderFilesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loader_files_total",
				Help:      "Total number of raw CSV files read",
			},
		),

		LoaderRecordsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loader_records_total",
				Help:      "Total number of raw rows kept after type coercion",
			},
		),

		RowsDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_dropped_total",
				Help:      "Rows dropped by the pipeline, by reason",
			},
			[]string{"reason"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),

		StageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_errors_total",
				Help:      "Pipeline stage failures by stage and error kind",
			},
			[]string{"stage", "kind"},
		),

		TrainingMAE: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "training_mae",
				Help:      "Mean absolute error of the last trained model on the evaluation split",
			},
		),

		TrainingRMSE: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "training_rmse",
				Help:      "Root mean squared error of the last trained model on the evaluation split",
			},
		),

		TrainingRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "training_rows",
				Help:      "Rows in the last chronological split",
			},
			[]string{"partition"}, // "train", "test"
		),

		TreeFitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tree_fit_duration_seconds",
				Help:      "Duration of fitting a single regression tree",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),

		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of dashboard requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Dashboard request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of dashboard errors by type",
			},
			[]string{"error_type", "endpoint"},
		),

		WarehouseRowsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warehouse_rows_written_total",
				Help:      "Processed rows upserted into the feature warehouse",
			},
		),

		WarehouseBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "warehouse_batch_size",
				Help:      "Number of rows per warehouse transaction",
				Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000},
			},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),
	}
}

// NewNopCollector registers on a private registry nobody scrapes
func NewNopCollector() *Collector {
	return NewCollector("optimizee", prometheus.NewRegistry())
}

// Timer measures one operation
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer starts a timer that reports into histogram
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// StageTimer starts a timer for a named pipeline stage
func (c *Collector) StageTimer(stage string) *Timer {
	return c.NewTimer(c.StageDuration.WithLabelValues(stage))
}

// RecordStageError counts a failed stage
func (c *Collector) RecordStageError(stage, kind string) {
	c.StageErrors.WithLabelValues(stage, kind).Inc()
}

// RecordDroppedRows counts rows removed for reason
func (c *Collector) RecordDroppedRows(reason string, n int) {
	if n > 0 {
		c.RowsDroppedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordTraining publishes the metrics of a finished training run
func (c *Collector) RecordTraining(mae, rmse float64, trainRows, testRows int) {
	c.TrainingMAE.Set(mae)
	c.TrainingRMSE.Set(rmse)
	c.TrainingRows.WithLabelValues("train").Set(float64(trainRows))
	c.TrainingRows.WithLabelValues("test").Set(float64(testRows))
}

// RecordAPIRequest increments API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}

// WriteTextfile dumps everything gathered by g in the node-exporter textfile format
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, g)
}
