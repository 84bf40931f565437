// Package analysis computes held-out metrics, correlation snapshots and
// permutation feature importance for trained regressors.
package analysis

import (
	"math"

	"oil-forecaster/core/models"

	"gonum.org/v1/gonum/stat"
)

// Evaluate compares predictions against actual targets.
// R2 is zero when the targets have no variance.
func Evaluate(actual, predicted []float64) models.EvaluationMetrics {
	n := len(actual)
	if n == 0 || n != len(predicted) {
		return models.EvaluationMetrics{}
	}

	var absSum, sqSum float64
	for i := range actual {
		d := predicted[i] - actual[i]
		absSum += math.Abs(d)
		sqSum += d * d
	}
	mse := sqSum / float64(n)

	r2 := 0.0
	if stat.Variance(actual, nil) > 0 {
		r2 = stat.RSquaredFrom(predicted, actual, nil)
	}

	return models.EvaluationMetrics{
		R2:   models.Finite(r2),
		MAE:  models.Finite(absSum / float64(n)),
		MSE:  models.Finite(mse),
		RMSE: models.Finite(math.Sqrt(mse)),
	}
}
