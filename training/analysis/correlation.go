package analysis

import (
	"oil-forecaster/core/models"

	"gonum.org/v1/gonum/stat"
)

// Correlate builds the Pearson correlation snapshot over the feature columns of
// rows plus the target. Undefined correlations (constant columns) are reported as 0.
func Correlate(featureNames []string, targetName string, rows [][]float64, target []float64) *models.CorrelationSnapshot {
	k := len(featureNames)
	columns := make([][]float64, k+1)
	for c := 0; c < k; c++ {
		columns[c] = make([]float64, len(rows))
		for r, row := range rows {
			columns[c][r] = row[c]
		}
	}
	columns[k] = target

	names := append(append([]string(nil), featureNames...), targetName)
	matrix := make([][]float64, k+1)
	for i := range matrix {
		matrix[i] = make([]float64, k+1)
	}
	for i := 0; i <= k; i++ {
		matrix[i][i] = 1
		for j := i + 1; j <= k; j++ {
			r := 0.0
			if len(target) > 1 {
				r = models.Finite(stat.Correlation(columns[i], columns[j], nil))
			}
			matrix[i][j] = r
			matrix[j][i] = r
		}
	}

	targetCorr := make(map[string]float64, k)
	for c, name := range featureNames {
		targetCorr[name] = matrix[c][k]
	}

	return &models.CorrelationSnapshot{
		Columns:           names,
		Matrix:            matrix,
		TargetCorrelation: targetCorr,
		Rows:              len(rows),
	}
}
