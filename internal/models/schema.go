package models

import "time"

// Schema names the two canonical columns every pipeline stage agrees on.
// It is a plain value: stages receive a copy and never modify it.
type Schema struct {
	DatetimeCol string `json:"datetime_col" yaml:"datetime_col" split_words:"true"`
	TargetCol   string `json:"target_col" yaml:"target_col" split_words:"true"`
}

const (
	DefaultDatetimeCol = "timestamp"
	DefaultTargetCol   = "consumption_kwh"
)

// DefaultSchema returns the column conventions used when nothing is configured
func DefaultSchema() Schema {
	return Schema{
		DatetimeCol: DefaultDatetimeCol,
		TargetCol:   DefaultTargetCol,
	}
}

// TimestampPrecision is the resolution timestamps are kept and stored at
const TimestampPrecision = time.Microsecond

// Feature column names produced by preprocessing
const (
	ColHour          = "hour"
	ColDayOfWeek     = "dayofweek"
	ColMonth         = "month"
	ColIsWeekend     = "is_weekend"
	ColLag1          = "lag_1"
	ColLag24         = "lag_24"
	ColRollingMean24 = "rolling_mean_24"
	ColRollingStd24  = "rolling_std_24"
)

// FeatureColumns is the fixed, ordered feature list the model trains on
func FeatureColumns() []string {
	return []string{
		ColHour,
		ColDayOfWeek,
		ColMonth,
		ColIsWeekend,
		ColLag1,
		ColLag24,
		ColRollingMean24,
		ColRollingStd24,
	}
}
