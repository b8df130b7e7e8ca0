package nn

import "math"

// RMSE is the root of the mean squared error, ignoring regularization.
func RMSE(pred, target []float64) float64 {
	if len(pred) == 0 || len(pred) != len(target) {
		return math.NaN()
	}
	sum := 0.0
	for i := range pred {
		d := pred[i] - target[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(pred)))
}
