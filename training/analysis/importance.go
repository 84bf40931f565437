package analysis

import (
	"math/rand/v2"

	"oil-forecaster/core/models"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Regressor predicts one value per row of x
type Regressor interface {
	PredictBatch(x *mat.Dense) []float64
}

// PermutationImportance measures how much the mean squared error grows when a
// single feature column is shuffled, averaged over repeats. It returns nil when
// there are fewer than two rows, since nothing can be permuted.
func PermutationImportance(model Regressor, x *mat.Dense, y []float64, featureNames []string, repeats int, seed uint64) map[string]models.ImportanceScore {
	rows, cols := x.Dims()
	if rows < 2 || cols != len(featureNames) || repeats <= 0 {
		return nil
	}

	baseline := Evaluate(y, model.PredictBatch(x)).MSE
	rng := rand.New(rand.NewPCG(seed, seed+1))
	work := mat.DenseCopyOf(x)
	column := make([]float64, rows)
	out := make(map[string]models.ImportanceScore, cols)

	for c, name := range featureNames {
		mat.Col(column, c, x)
		deltas := make([]float64, repeats)
		for r := 0; r < repeats; r++ {
			perm := rng.Perm(rows)
			for i, p := range perm {
				work.Set(i, c, column[p])
			}
			deltas[r] = Evaluate(y, model.PredictBatch(work)).MSE - baseline
		}
		work.SetCol(c, column)

		mean, std := stat.PopMeanStdDev(deltas, nil)
		out[name] = models.ImportanceScore{Mean: models.Finite(mean), Std: models.Finite(std)}
	}
	return out
}
