package models

import (
	"math"
	"sort"
	"time"
)

// EnergyRecord is one raw reading after column inference and type coercion.
// Both canonical fields are always present.
type EnergyRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Consumption float64   `json:"consumption"`
	SourceFile  string    `json:"source_file"`
}

// FeatureRow is an EnergyRecord plus the derived calendar and lag features.
// Lag24 is nil for the first 24 rows of a series.
type FeatureRow struct {
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	Consumption   float64   `json:"consumption" db:"consumption"`
	SourceFile    string    `json:"source_file" db:"source_file"`
	Hour          int       `json:"hour" db:"hour"`
	DayOfWeek     int       `json:"dayofweek" db:"dayofweek"`
	Month         int       `json:"month" db:"month"`
	IsWeekend     int       `json:"is_weekend" db:"is_weekend"`
	Lag1          float64   `json:"lag_1" db:"lag_1"`
	Lag24         *float64  `json:"lag_24,omitempty" db:"lag_24"`
	RollingMean24 float64   `json:"rolling_mean_24" db:"rolling_mean_24"`
	RollingStd24  float64   `json:"rolling_std_24" db:"rolling_std_24"`
}

// feature returns a derived column by name; null lag_24 reads as NaN
func (r FeatureRow) feature(name string) (float64, bool) {
	switch name {
	case ColHour:
		return float64(r.Hour), true
	case ColDayOfWeek:
		return float64(r.DayOfWeek), true
	case ColMonth:
		return float64(r.Month), true
	case ColIsWeekend:
		return float64(r.IsWeekend), true
	case ColLag1:
		return r.Lag1, true
	case ColLag24:
		if r.Lag24 == nil {
			return math.NaN(), true
		}
		return *r.Lag24, true
	case ColRollingMean24:
		return r.RollingMean24, true
	case ColRollingStd24:
		return r.RollingStd24, true
	default:
		return 0, false
	}
}

// Dataset is the processed record set together with the schema it was built under
type Dataset struct {
	Schema Schema
	Rows   []FeatureRow
}

// Len returns the number of rows
func (d Dataset) Len() int {
	return len(d.Rows)
}

// Slice returns rows [i, j) sharing the underlying array
func (d Dataset) Slice(i, j int) Dataset {
	return Dataset{Schema: d.Schema, Rows: d.Rows[i:j]}
}

// Tail returns the last n rows, or all rows when n exceeds the length
func (d Dataset) Tail(n int) Dataset {
	if n < 0 || n >= len(d.Rows) {
		return d
	}
	return d.Slice(len(d.Rows)-n, len(d.Rows))
}

// HasColumn reports whether Column would succeed for name
func (d Dataset) HasColumn(name string) bool {
	if name == d.Schema.TargetCol {
		return true
	}
	_, ok := FeatureRow{}.feature(name)
	return ok
}

// Column extracts a numeric column. The schema's target column name maps to
// Consumption; every other name must be a derived feature.
func (d Dataset) Column(name string) ([]float64, error) {
	if !d.HasColumn(name) {
		return nil, &ColumnNotFoundError{Column: name}
	}

	out := make([]float64, len(d.Rows))
	for i, row := range d.Rows {
		if name == d.Schema.TargetCol {
			out[i] = row.Consumption
			continue
		}
		out[i], _ = row.feature(name)
	}
	return out, nil
}

// Matrix extracts the named columns row-major, in the given order
func (d Dataset) Matrix(names []string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for j, name := range names {
		col, err := d.Column(name)
		if err != nil {
			return nil, err
		}
		cols[j] = col
	}

	X := make([][]float64, len(d.Rows))
	for i := range d.Rows {
		X[i] = make([]float64, len(names))
		for j := range names {
			X[i][j] = cols[j][i]
		}
	}
	return X, nil
}

// SortedByTimestamp returns a copy ordered by timestamp; equal timestamps keep input order
func (d Dataset) SortedByTimestamp() Dataset {
	rows := make([]FeatureRow, len(d.Rows))
	copy(rows, d.Rows)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
	return Dataset{Schema: d.Schema, Rows: rows}
}
