package handlers

import (
	"io"

	"github.com/xuri/excelize/v2"

	"optimizee/internal/models"
	"optimizee/internal/services"
)

const (
	predictionsSheet = "predictions"
	summarySheet     = "summary"
)

// writeWorkbook writes the view's rows and KPIs as an xlsx workbook
func writeWorkbook(w io.Writer, view *services.View, schema models.Schema) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", predictionsSheet); err != nil {
		return err
	}
	header := []interface{}{schema.DatetimeCol, schema.TargetCol, "prediction"}
	if err := f.SetSheetRow(predictionsSheet, "A1", &header); err != nil {
		return err
	}

	for i, p := range view.Points {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{p.Timestamp, p.Actual, p.Prediction}
		if err := f.SetSheetRow(predictionsSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(predictionsSheet, "A", "A", 20); err != nil {
		return err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	summary := [][]interface{}{
		{"rows", view.Summary.Rows},
		{"average", view.Summary.Average},
		{"max", view.Summary.Max},
		{"peak_hour", view.Summary.PeakHour},
		{"peak_dayofweek", view.Summary.PeakDayOfWeek},
	}
	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}

	return f.Write(w)
}
