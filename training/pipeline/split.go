package pipeline

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Partition holds the row indices of a train/test split
type Partition struct {
	Train []int
	Test  []int
}

// Split shuffles n row indices with a fixed seed and holds out testFraction of
// them, rounded up, for testing. The same n, fraction and seed always yield the
// same partition.
func Split(n int, testFraction float64, seed uint64) (Partition, error) {
	if testFraction <= 0 || testFraction >= 1 {
		return Partition{}, fmt.Errorf("test fraction %.3f outside (0, 1)", testFraction)
	}
	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest < 1 || n-nTest < 1 {
		return Partition{}, fmt.Errorf("cannot split %d rows with test fraction %.2f", n, testFraction)
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)
	return Partition{Train: perm[nTest:], Test: perm[:nTest]}, nil
}

// Rows selects the given row indices of x and y
func Rows(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	outX := make([][]float64, len(idx))
	outY := make([]float64, len(idx))
	for i, r := range idx {
		outX[i] = x[r]
		outY[i] = y[r]
	}
	return outX, outY
}
