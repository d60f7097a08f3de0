package handlers

import (
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"optimizee/internal/models"
	"optimizee/internal/services"
)

const chartTimeLayout = "2006-01-02 15:04"

// renderCharts writes the trend and prediction line charts as one HTML page
func renderCharts(w io.Writer, view *services.View, schema models.Schema) error {
	xs := make([]string, len(view.Points))
	actual := make([]opts.LineData, len(view.Points))
	predicted := make([]opts.LineData, len(view.Points))
	for i, p := range view.Points {
		xs[i] = p.Timestamp.Format(chartTimeLayout)
		actual[i] = opts.LineData{Value: p.Actual}
		predicted[i] = opts.LineData{Value: p.Prediction}
	}

	trend := newLineChart("Consumption trend", schema)
	trend.SetXAxis(xs).AddSeries(schema.TargetCol, actual)

	pred := newLineChart("Model prediction (baseline)", schema)
	pred.SetXAxis(xs).AddSeries("prediction", predicted)

	page := components.NewPage()
	page.PageTitle = "Optimizee charts"
	page.AddCharts(trend, pred)
	return page.Render(w)
}

func newLineChart(title string, schema models.Schema) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1050px", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: schema.DatetimeCol}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	return line
}
