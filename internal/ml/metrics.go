package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// MeanAbsoluteError returns mean(|yTrue - yPred|)
func MeanAbsoluteError(yTrue, yPred []float64) (float64, error) {
	if err := checkPair(yTrue, yPred); err != nil {
		return 0, err
	}
	return floats.Distance(yTrue, yPred, 1) / float64(len(yTrue)), nil
}

// RootMeanSquaredError returns sqrt(mean((yTrue - yPred)^2))
func RootMeanSquaredError(yTrue, yPred []float64) (float64, error) {
	if err := checkPair(yTrue, yPred); err != nil {
		return 0, err
	}
	return floats.Distance(yTrue, yPred, 2) / math.Sqrt(float64(len(yTrue))), nil
}

func checkPair(yTrue, yPred []float64) error {
	if len(yTrue) == 0 {
		return fmt.Errorf("cannot score an empty set")
	}
	if len(yTrue) != len(yPred) {
		return fmt.Errorf("length mismatch: %d targets, %d predictions", len(yTrue), len(yPred))
	}
	return nil
}
