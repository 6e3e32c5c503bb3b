// Package model_selection splits datasets for holdout evaluation and cross-validation.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartpredict/pkg/errors"
)

// DefaultTestSize is the holdout fraction used when none is configured.
const DefaultTestSize = 0.2

// Split holds the two partitions produced by TrainTestSplit.
// Rows appear in the order of the permutation that produced them.
type Split struct {
	XTrain, XTest *mat.Dense
	YTrain, YTest *mat.VecDense
	// TrainIndices and TestIndices are the source rows of each partition.
	TrainIndices, TestIndices []int
}

// NewRand returns a PCG-backed generator. A nil seed draws one from the runtime source,
// so every call yields a different stream.
func NewRand(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, *seed))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// TestCount returns ceil(testSize * n), the scikit-learn rounding for a fractional test size.
func TestCount(n int, testSize float64) int {
	return int(math.Ceil(testSize * float64(n)))
}

// TrainTestSplit shuffles the row indices with rng and takes the first ceil(testSize*n)
// as the test partition, the rest as the training partition.
func TrainTestSplit(X, y mat.Matrix, testSize float64, rng *rand.Rand) (*Split, error) {
	if !(testSize > 0 && testSize < 1) {
		return nil, errors.NewValidationError("test_size", "must be in the open interval (0, 1)", testSize)
	}
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if yRows != nSamples {
		return nil, errors.NewDimensionError("TrainTestSplit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return nil, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("y must be a column vector: got shape (%d, %d)", yRows, yCols))
	}

	nTest := TestCount(nSamples, testSize)
	nTrain := nSamples - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("with n_samples=%d and test_size=%v one partition would be empty", nSamples, testSize))
	}
	if rng == nil {
		rng = NewRand(nil)
	}

	perm := rng.Perm(nSamples)
	s := &Split{
		TestIndices:  perm[:nTest],
		TrainIndices: perm[nTest:],
	}
	s.XTest, s.YTest = take(X, y, s.TestIndices, nFeatures)
	s.XTrain, s.YTrain = take(X, y, s.TrainIndices, nFeatures)
	return s, nil
}

// take copies the given rows of X and y into fresh storage.
func take(X, y mat.Matrix, rows []int, nFeatures int) (*mat.Dense, *mat.VecDense) {
	xs := mat.NewDense(len(rows), nFeatures, nil)
	ys := mat.NewVecDense(len(rows), nil)
	for i, r := range rows {
		for j := 0; j < nFeatures; j++ {
			xs.Set(i, j, X.At(r, j))
		}
		ys.SetVec(i, y.At(r, 0))
	}
	return xs, ys
}
