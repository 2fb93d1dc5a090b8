// Package metrics holds the regression scores reported after training.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scores is the evaluation of one model on one split
type Scores struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// Evaluate scores predictions against actual values
func Evaluate(predicted, actual []float64) Scores {
	if len(predicted) == 0 || len(predicted) != len(actual) {
		return Scores{MAE: math.NaN(), RMSE: math.NaN(), R2: math.NaN()}
	}
	return Scores{
		MAE:  MAE(predicted, actual),
		RMSE: RMSE(predicted, actual),
		R2:   R2(predicted, actual),
	}
}

// MAE is the mean absolute error
func MAE(predicted, actual []float64) float64 {
	var s float64
	for i := range predicted {
		s += math.Abs(predicted[i] - actual[i])
	}
	return s / float64(len(predicted))
}

// RMSE is the root mean squared error
func RMSE(predicted, actual []float64) float64 {
	var s float64
	for i := range predicted {
		d := predicted[i] - actual[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(predicted)))
}

// R2 is the coefficient of determination
func R2(predicted, actual []float64) float64 {
	return stat.RSquaredFrom(predicted, actual, nil)
}
