package models

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline errors. None of them is transient: rerunning the same command on
// the same inputs fails the same way, so callers surface them and stop.

// MissingInputError is returned when raw files or a persisted artifact are absent
type MissingInputError struct {
	Resource string
	Path     string
	Hint     string
}

func (e *MissingInputError) Error() string {
	msg := fmt.Sprintf("%s not found: %s", e.Resource, e.Path)
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

// IsTransient returns false
func (e *MissingInputError) IsTransient() bool {
	return false
}

// SchemaInferenceError is returned when no numeric target column can be picked
type SchemaInferenceError struct {
	Columns []string
}

func (e *SchemaInferenceError) Error() string {
	return fmt.Sprintf("could not infer target column (no known names and no numeric columns among [%s])",
		strings.Join(e.Columns, ", "))
}

// IsTransient returns false
func (e *SchemaInferenceError) IsTransient() bool {
	return false
}

// UntrainedModelError is returned by Predict before the model was fitted or loaded
type UntrainedModelError struct{}

func (e *UntrainedModelError) Error() string {
	return "model not trained/loaded: train first or load from disk"
}

// IsTransient returns false
func (e *UntrainedModelError) IsTransient() bool {
	return false
}

// FitError is returned when the estimator rejects its training data
type FitError struct {
	Reason string
	Err    error
}

func (e *FitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fit failed: %s: %v", e.Reason, e.Err)
	}
	return "fit failed: " + e.Reason
}

func (e *FitError) Unwrap() error {
	return e.Err
}

// IsTransient returns false
func (e *FitError) IsTransient() bool {
	return false
}

// ColumnNotFoundError is returned when a dataset has no column of that name
type ColumnNotFoundError struct {
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column not found: %s", e.Column)
}

// IsTransient returns false
func (e *ColumnNotFoundError) IsTransient() bool {
	return false
}

// ErrorKind names the error class for metrics labels and CLI output
func ErrorKind(err error) string {
	var (
		missing   *MissingInputError
		schema    *SchemaInferenceError
		untrained *UntrainedModelError
		fit       *FitError
		column    *ColumnNotFoundError
	)
	switch {
	case errors.As(err, &missing):
		return "missing_input"
	case errors.As(err, &schema):
		return "schema_inference"
	case errors.As(err, &untrained):
		return "untrained_model"
	case errors.As(err, &fit):
		return "fit_failure"
	case errors.As(err, &column):
		return "column_not_found"
	default:
		return "internal"
	}
}
