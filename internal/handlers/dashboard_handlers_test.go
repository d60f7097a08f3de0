package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"optimizee/internal/ml"
	"optimizee/internal/models"
	"optimizee/internal/repository"
	"optimizee/internal/services"
	"optimizee/pkg/logging"
	"optimizee/pkg/metrics"
)

const fixtureRows = 300

func newTestRouter(t *testing.T) (*mux.Router, *metrics.Collector) {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	logger := logging.NewNopLogger()

	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]models.FeatureRow, fixtureRows)
	for i := range rows {
		ts := base.Add(time.Duration(i) * time.Hour)
		rows[i] = models.FeatureRow{
			Timestamp:   ts,
			Consumption: 1 + float64(ts.Hour())/10,
			SourceFile:  "a.csv",
			Hour:        ts.Hour(),
			DayOfWeek:   (int(ts.Weekday()) + 6) % 7,
			Month:       int(ts.Month()),
		}
		if i > 0 {
			rows[i].Lag1 = rows[i-1].Consumption
		}
	}
	ds := models.Dataset{Schema: models.DefaultSchema(), Rows: rows}

	datasets := repository.NewDatasetRepository(filepath.Join(root, "processed.parquet"), logger)
	require.NoError(t, datasets.Save(ctx, ds))

	model := ml.NewEnergyModel(models.FeatureColumns())
	model.Build()
	model.Pipeline.Forest.NEstimators = 10
	require.NoError(t, model.Train(ctx, ds, models.DefaultTargetCol))

	artifacts := repository.NewArtifactRepository(filepath.Join(root, "model.gob"), logger)
	require.NoError(t, artifacts.Save(ctx, &ml.ModelArtifact{
		Model:    model,
		Schema:   ds.Schema,
		Metadata: ml.ArtifactMetadata{RunID: "test-run", FeatureCols: model.FeatureCols},
	}))

	forecast, err := services.NewForecastService(ctx, datasets, artifacts, services.NewStatisticsService(logger), logger)
	require.NoError(t, err)

	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	router := mux.NewRouter()
	NewDashboardHandler(forecast, logger, collector).RegisterRoutes(router)
	return router, collector
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDashboardRoutes(t *testing.T) {
	router, collector := newTestRouter(t)

	tests := []struct {
		name        string
		target      string
		wantStatus  int
		contentType string
		check       func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:        "health",
			target:      "/health",
			wantStatus:  http.StatusOK,
			contentType: "application/json",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "healthy", body["status"])
			},
		},
		{
			name:        "summary window",
			target:      "/api/summary?n=250",
			wantStatus:  http.StatusOK,
			contentType: "application/json",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var body SummaryResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, 250, body.Summary.Rows)
				assert.Equal(t, fixtureRows, body.TotalRows)
				assert.Equal(t, services.SliderBounds{Min: 200, Max: 300, Step: 100, Default: 300}, body.Slider)
				assert.Equal(t, "test-run", body.Model.RunID)
				assert.Equal(t, 23, body.Summary.PeakHour)
			},
		},
		{
			name:        "predictions default window",
			target:      "/api/predictions",
			wantStatus:  http.StatusOK,
			contentType: "application/json",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var points []services.PredictionPoint
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
				require.Len(t, points, fixtureRows)
				for i := 1; i < len(points); i++ {
					assert.True(t, points[i-1].Timestamp.Before(points[i].Timestamp))
				}
			},
		},
		{
			name:        "predictions clamped to slider minimum",
			target:      "/api/predictions?n=10",
			wantStatus:  http.StatusOK,
			contentType: "application/json",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var points []services.PredictionPoint
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
				assert.Len(t, points, 200)
			},
		},
		{
			name:        "bad window",
			target:      "/api/predictions?n=lots",
			wantStatus:  http.StatusBadRequest,
			contentType: "application/json",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var body ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, http.StatusBadRequest, body.Code)
			},
		},
		{
			name:        "index",
			target:      "/?n=200",
			wantStatus:  http.StatusOK,
			contentType: "text/html",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				body := rec.Body.String()
				assert.Contains(t, body, "Rows: 200 | Avg: ")
				assert.Contains(t, body, "Peak hour (avg consumption): 23:00")
				assert.Contains(t, body, "Highest day-of-week (0=Mon): ")
				assert.Contains(t, body, `src="/charts?n=200"`)
				assert.Contains(t, body, `max="300"`)
			},
		},
		{
			name:        "charts",
			target:      "/charts?n=200",
			wantStatus:  http.StatusOK,
			contentType: "text/html",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				body := rec.Body.String()
				assert.Contains(t, body, "echarts")
				assert.Contains(t, body, "Consumption trend")
				assert.Contains(t, body, "Model prediction (baseline)")
			},
		},
		{
			name:        "openapi",
			target:      "/api/docs/openapi.json",
			wantStatus:  http.StatusOK,
			contentType: "application/json",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var doc map[string]interface{}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
				paths := doc["paths"].(map[string]interface{})
				assert.Contains(t, paths, "/api/summary")
				assert.Contains(t, paths, "/api/predictions")
			},
		},
		{
			name:        "swagger ui",
			target:      "/api/docs",
			wantStatus:  http.StatusOK,
			contentType: "text/html",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Contains(t, rec.Body.String(), "/api/docs/openapi.json")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(router, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), tt.contentType)
			tt.check(t, rec)
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.APIRequestsTotal.WithLabelValues("/health", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.APIRequestsTotal.WithLabelValues("/api/predictions", "GET", "400")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.APIErrorsTotal.WithLabelValues("bad_request", "/api/predictions")))
}

func TestExportXLSX(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(router, "/api/export.xlsx?n=220")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "optimizee_last_220.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(predictionsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 221)
	assert.Equal(t, []string{"timestamp", "consumption_kwh", "prediction"}, rows[0])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"rows", "220"}, summary[0])
}

func TestKPILine(t *testing.T) {
	got := KPILine(services.Summary{Rows: 47, Average: 1.234, Max: 9.876})
	assert.Equal(t, "Rows: 47 | Avg: 1.23 | Max: 9.88", got)
}
