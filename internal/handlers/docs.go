package handlers

import (
	"encoding/json"
	"html/template"
	"net/http"
)

const (
	docsTitle      = "Optimizee Dashboard API"
	openAPIPath    = "/api/docs/openapi.json"
	swaggerVersion = "5.10.0"
)

// rowsParam documents the shared ?n= window parameter
var rowsParam = map[string]interface{}{
	"name":        "n",
	"in":          "query",
	"description": "Show the last N rows; clamped to the slider range (default: min(800, rows))",
	"required":    false,
	"schema":      map[string]interface{}{"type": "integer", "minimum": 0},
}

func jsonResponse(description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": schema,
			},
		},
	}
}

var summarySchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"rows":           map[string]string{"type": "integer"},
		"average":        map[string]string{"type": "number"},
		"max":            map[string]string{"type": "number"},
		"peak_hour":      map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 23},
		"peak_dayofweek": map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 6, "description": "0=Monday"},
	},
}

var errorSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"error":   map[string]string{"type": "string"},
		"message": map[string]string{"type": "string"},
		"code":    map[string]string{"type": "integer"},
	},
}

// OpenAPISpec returns the OpenAPI 3.0 document of the dashboard API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	doc := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       docsTitle,
			"description": "Energy consumption insights and baseline forecast over the processed dataset and trained model",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://127.0.0.1:8050", "description": "Local dashboard"},
		},
		"paths": map[string]interface{}{
			"/api/summary": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Dashboard KPIs",
					"description": "Row count, average and max consumption, peak hour and day of week for the last N rows, plus slider bounds and training metadata",
					"parameters":  []map[string]interface{}{rowsParam},
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"summary":    summarySchema,
								"total_rows": map[string]string{"type": "integer"},
								"slider": map[string]interface{}{
									"type": "object",
									"properties": map[string]interface{}{
										"min":     map[string]string{"type": "integer"},
										"max":     map[string]string{"type": "integer"},
										"step":    map[string]string{"type": "integer"},
										"default": map[string]string{"type": "integer"},
									},
								},
								"model": map[string]interface{}{
									"type": "object",
									"properties": map[string]interface{}{
										"run_id":       map[string]string{"type": "string", "format": "uuid"},
										"trained_at":   map[string]string{"type": "string", "format": "date-time"},
										"feature_cols": map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
										"train_rows":   map[string]string{"type": "integer"},
										"test_rows":    map[string]string{"type": "integer"},
										"mae":          map[string]string{"type": "number"},
										"rmse":         map[string]string{"type": "number"},
									},
								},
							},
						}),
						"400": jsonResponse("Invalid n", errorSchema),
					},
				},
			},
			"/api/predictions": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Actual and predicted consumption",
					"description": "The last N processed rows in time order with the model prediction for each",
					"parameters":  []map[string]interface{}{rowsParam},
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", map[string]interface{}{
							"type": "array",
							"items": map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"timestamp":  map[string]string{"type": "string", "format": "date-time"},
									"actual":     map[string]string{"type": "number"},
									"prediction": map[string]string{"type": "number"},
								},
							},
						}),
						"400": jsonResponse("Invalid n", errorSchema),
					},
				},
			},
			"/api/export.xlsx": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Export rows as a workbook",
					"description": "Same rows as /api/predictions plus a summary sheet",
					"parameters":  []map[string]interface{}{rowsParam},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "xlsx workbook",
							"content": map[string]interface{}{
								"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": map[string]interface{}{
									"schema": map[string]string{"type": "string", "format": "binary"},
								},
							},
						},
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Check if the dashboard is running",
					"responses": map[string]interface{}{
						"200": jsonResponse("Dashboard is healthy", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"status": map[string]string{"type": "string"},
							},
						}),
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

var swaggerTemplate = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@{{.Version}}/swagger-ui.css">
</head>
<body style="margin: 0">
    <div id="swagger-ui" data-spec-url="{{.SpecURL}}"></div>
    <script src="https://unpkg.com/swagger-ui-dist@{{.Version}}/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            const root = document.getElementById("swagger-ui");
            window.ui = SwaggerUIBundle({
                url: root.dataset.specUrl,
                dom_id: "#swagger-ui",
                tryItOutEnabled: true,
                supportedSubmitMethods: ["get"]
            });
        };
    </script>
</body>
</html>`))

// SwaggerUI serves an interactive page over the OpenAPI document
func SwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	swaggerTemplate.Execute(w, struct {
		Title   string
		Version string
		SpecURL string
	}{docsTitle, swaggerVersion, openAPIPath})
}
