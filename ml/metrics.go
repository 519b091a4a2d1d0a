package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

var errLengthMismatch = errors.New("predictions and targets length mismatch")

// RSquared is the coefficient of determination. When the targets are
// constant it is 1 for a perfect fit and 0 otherwise.
func RSquared(pred, actual []float64) (float64, error) {
	if len(pred) != len(actual) || len(pred) == 0 {
		return 0, errLengthMismatch
	}
	if stat.Variance(actual, nil) == 0 || len(actual) == 1 {
		for i := range pred {
			if pred[i] != actual[i] {
				return 0, nil
			}
		}
		return 1, nil
	}
	return stat.RSquaredFrom(pred, actual, nil), nil
}

func MeanAbsoluteError(pred, actual []float64) (float64, error) {
	if len(pred) != len(actual) || len(pred) == 0 {
		return 0, errLengthMismatch
	}
	diffs := make([]float64, len(pred))
	for i := range pred {
		diffs[i] = math.Abs(pred[i] - actual[i])
	}
	return stat.Mean(diffs, nil), nil
}

func RootMeanSquaredError(pred, actual []float64) (float64, error) {
	if len(pred) != len(actual) || len(pred) == 0 {
		return 0, errLengthMismatch
	}
	sq := make([]float64, len(pred))
	for i := range pred {
		d := pred[i] - actual[i]
		sq[i] = d * d
	}
	return math.Sqrt(stat.Mean(sq, nil)), nil
}
