package handlers

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"optimizee/internal/ml"
	"optimizee/internal/services"
	"optimizee/pkg/logging"
	"optimizee/pkg/metrics"
)

// DashboardHandler serves the dashboard UI and its JSON API
type DashboardHandler struct {
	forecast *services.ForecastService
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(
	forecast *services.ForecastService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *DashboardHandler {
	return &DashboardHandler{
		forecast: forecast,
		logger:   logger,
		metrics:  metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SummaryResponse is the body of GET /api/summary
type SummaryResponse struct {
	Summary   services.Summary      `json:"summary"`
	TotalRows int                   `json:"total_rows"`
	Slider    services.SliderBounds `json:"slider"`
	Model     ml.ArtifactMetadata   `json:"model"`
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Optimizee</title>
    <style>
        body { max-width: 1100px; margin: 30px auto; font-family: system-ui, sans-serif; }
        .subtitle { opacity: 0.7; margin-bottom: 20px; }
        .controls { display: flex; gap: 16px; align-items: center; }
        .kpi { margin-left: auto; font-weight: 600; }
        iframe { width: 100%; height: 820px; border: 0; margin-top: 20px; }
    </style>
</head>
<body>
    <h1 style="margin-bottom: 0">Optimizee</h1>
    <div class="subtitle">Electricity insights + baseline ML forecast</div>

    <form class="controls" method="get" action="/">
        <label for="rows_slider">Show last N rows:</label>
        <input type="range" id="rows_slider" name="n" min="{{.Slider.Min}}" max="{{.Slider.Max}}" step="{{.Slider.Step}}" value="{{.N}}"
               oninput="this.nextElementSibling.value = this.value" onchange="this.form.submit()">
        <output>{{.N}}</output>
        <div class="kpi" id="kpi">{{.KPI}}</div>
    </form>

    <iframe src="/charts?n={{.N}}" title="charts"></iframe>

    <h3 style="margin-top: 30px">Quick takeaways</h3>
    <ul id="insights">
        <li>Peak hour (avg consumption): {{.Summary.PeakHour}}:00</li>
        <li>Highest day-of-week (0=Mon): {{.Summary.PeakDayOfWeek}}</li>
        <li>Baseline model (RandomForest). Improve with weather, spot price, and appliance-level signals.</li>
    </ul>
    <p style="opacity: 0.6"><a href="/api/export.xlsx?n={{.N}}">Download rows (xlsx)</a> · <a href="/api/docs">API</a></p>
</body>
</html>`))

type indexData struct {
	N       int
	Slider  services.SliderBounds
	KPI     string
	Summary services.Summary
}

// KPILine formats the headline numbers of a view
func KPILine(s services.Summary) string {
	return fmt.Sprintf("Rows: %d | Avg: %.2f | Max: %.2f", s.Rows, s.Average, s.Max)
}

// Index handles GET /
func (h *DashboardHandler) Index(w http.ResponseWriter, r *http.Request) {
	view, n, ok := h.view(w, r)
	if !ok {
		return
	}

	data := indexData{
		N:       n,
		Slider:  h.forecast.Slider(),
		KPI:     KPILine(view.Summary),
		Summary: view.Summary,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		h.logger.Error(r.Context(), "[API_INDEX_ERROR] Failed to render dashboard", logging.Fields{}, err)
	}
}

// Charts handles GET /charts
func (h *DashboardHandler) Charts(w http.ResponseWriter, r *http.Request) {
	view, _, ok := h.view(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderCharts(w, view, h.forecast.Schema()); err != nil {
		h.logger.Error(r.Context(), "[API_CHARTS_ERROR] Failed to render charts", logging.Fields{}, err)
	}
}

// GetSummary handles GET /api/summary
func (h *DashboardHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	view, _, ok := h.view(w, r)
	if !ok {
		return
	}

	h.sendJSON(w, SummaryResponse{
		Summary:   view.Summary,
		TotalRows: h.forecast.Rows(),
		Slider:    h.forecast.Slider(),
		Model:     h.forecast.Metadata(),
	}, http.StatusOK)
}

// GetPredictions handles GET /api/predictions
func (h *DashboardHandler) GetPredictions(w http.ResponseWriter, r *http.Request) {
	view, _, ok := h.view(w, r)
	if !ok {
		return
	}
	h.sendJSON(w, view.Points, http.StatusOK)
}

// ExportXLSX handles GET /api/export.xlsx
func (h *DashboardHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	view, n, ok := h.view(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="optimizee_last_%d.xlsx"`, n))
	if err := writeWorkbook(w, view, h.forecast.Schema()); err != nil {
		h.logger.Error(r.Context(), "[API_EXPORT_ERROR] Failed to write workbook", logging.Fields{
			"rows": n,
		}, err)
	}
}

// HealthCheck handles GET /health
func (h *DashboardHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	h.logger.Debug(r.Context(), "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

// view parses ?n= and computes the view; on failure it writes the error
// response and returns ok=false.
func (h *DashboardHandler) view(w http.ResponseWriter, r *http.Request) (*services.View, int, bool) {
	requested := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.metrics.RecordAPIError("bad_request", routeName(r))
			h.sendError(w, "invalid n, expected an integer row count", http.StatusBadRequest)
			return nil, 0, false
		}
		requested = n
	}

	n := h.forecast.ClampRows(requested)
	view, err := h.forecast.View(n)
	if err != nil {
		h.logger.Error(r.Context(), "[API_VIEW_ERROR] Failed to build view", logging.Fields{
			"rows": n,
		}, err)
		h.metrics.RecordAPIError("internal_error", routeName(r))
		h.sendError(w, "failed to compute predictions", http.StatusInternalServerError)
		return nil, 0, false
	}
	return view, n, true
}

// sendJSON sends a JSON response
func (h *DashboardHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *DashboardHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.sendJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// RegisterRoutes registers all dashboard routes
func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	router.Use(h.instrument)

	router.HandleFunc("/", h.Index).Methods("GET")
	router.HandleFunc("/charts", h.Charts).Methods("GET")
	router.HandleFunc("/api/summary", h.GetSummary).Methods("GET")
	router.HandleFunc("/api/predictions", h.GetPredictions).Methods("GET")
	router.HandleFunc("/api/export.xlsx", h.ExportXLSX).Methods("GET")
	router.HandleFunc(openAPIPath, OpenAPISpec).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency per route template
func (h *DashboardHandler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := routeName(r)
		h.metrics.APIRequestDuration.WithLabelValues(route).Observe(time.Since(startTime).Seconds())
		h.metrics.RecordAPIRequest(route, r.Method, strconv.Itoa(rec.status))
	})
}

// routeName returns the matched route template, or the raw path
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}
