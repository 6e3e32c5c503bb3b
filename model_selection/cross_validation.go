package model_selection

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/heartpredict/core/model"
	"github.com/YuminosukeSato/heartpredict/core/parallel"
	"github.com/YuminosukeSato/heartpredict/metrics"
	"github.com/YuminosukeSato/heartpredict/pkg/errors"
)

// Splitter produces cross-validation folds.
type Splitter interface {
	Split(X, y mat.Matrix) ([]Fold, error)
	NSplits() int
}

// Fold is one train/test partition of row indices.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold splits rows into k consecutive folds; the first n%k folds get one extra row.
type KFold struct {
	k       int
	shuffle bool
	seed    *uint64
}

// NewKFold creates a k-fold splitter. With shuffle, rows are permuted first using seed
// (nil seeds are drawn at random).
func NewKFold(k int, shuffle bool, seed *uint64) *KFold {
	return &KFold{k: k, shuffle: shuffle, seed: seed}
}

// NSplits returns k.
func (kf *KFold) NSplits() int { return kf.k }

// Split generates the folds.
func (kf *KFold) Split(X, _ mat.Matrix) ([]Fold, error) {
	nSamples, _ := X.Dims()
	if err := checkSplits(kf.k, nSamples); err != nil {
		return nil, err
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.shuffle {
		NewRand(kf.seed).Shuffle(nSamples, func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]Fold, kf.k)
	foldSize, remainder := nSamples/kf.k, nSamples%kf.k
	start := 0
	for i := range folds {
		size := foldSize
		if i < remainder {
			size++
		}
		folds[i] = buildFold(indices[start:start+size], nSamples)
		start += size
	}
	return folds, nil
}

// StratifiedKFold keeps each class's share roughly equal across folds.
type StratifiedKFold struct {
	k       int
	shuffle bool
	seed    *uint64
}

// NewStratifiedKFold creates a stratified k-fold splitter.
func NewStratifiedKFold(k int, shuffle bool, seed *uint64) *StratifiedKFold {
	return &StratifiedKFold{k: k, shuffle: shuffle, seed: seed}
}

// NSplits returns k.
func (skf *StratifiedKFold) NSplits() int { return skf.k }

// Split deals each class's rows round-robin over the folds.
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]Fold, error) {
	nSamples, _ := X.Dims()
	if err := checkSplits(skf.k, nSamples); err != nil {
		return nil, err
	}

	byClass := map[int][]int{}
	for i := 0; i < nSamples; i++ {
		label := int(y.At(i, 0))
		byClass[label] = append(byClass[label], i)
	}
	labels := make([]int, 0, len(byClass))
	for label := range byClass {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	rng := NewRand(skf.seed)
	tests := make([][]int, skf.k)
	next := 0
	for _, label := range labels {
		rows := byClass[label]
		if skf.shuffle {
			rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		}
		for _, r := range rows {
			tests[next] = append(tests[next], r)
			next = (next + 1) % skf.k
		}
	}

	folds := make([]Fold, skf.k)
	for i, test := range tests {
		folds[i] = buildFold(test, nSamples)
	}
	return folds, nil
}

func checkSplits(k, nSamples int) error {
	if k < 2 {
		return errors.NewValidationError("n_splits", "must be at least 2", k)
	}
	if k > nSamples {
		return errors.NewValidationError("n_splits", "cannot exceed the number of samples", k)
	}
	return nil
}

func buildFold(test []int, nSamples int) Fold {
	inTest := make([]bool, nSamples)
	for _, r := range test {
		inTest[r] = true
	}
	train := make([]int, 0, nSamples-len(test))
	for r := 0; r < nSamples; r++ {
		if !inTest[r] {
			train = append(train, r)
		}
	}
	return Fold{TrainIndices: train, TestIndices: append([]int(nil), test...)}
}

// CVResult holds per-fold holdout accuracies.
type CVResult struct {
	TestScores []float64
}

// Mean returns the mean fold accuracy.
func (r *CVResult) Mean() float64 {
	if len(r.TestScores) == 0 {
		return 0
	}
	return stat.Mean(r.TestScores, nil)
}

// Std returns the sample standard deviation of the fold accuracies.
func (r *CVResult) Std() float64 {
	if len(r.TestScores) <= 1 {
		return 0
	}
	return math.Sqrt(stat.Variance(r.TestScores, nil))
}

// CrossValScore fits a fresh classifier from newClassifier on every fold concurrently
// and records its accuracy on the held-out rows.
func CrossValScore(ctx context.Context, newClassifier func() (model.Classifier, error), X, y mat.Matrix, splitter Splitter) (*CVResult, error) {
	folds, err := splitter.Split(X, y)
	if err != nil {
		return nil, err
	}
	_, nFeatures := X.Dims()

	scores := make([]float64, len(folds))
	err = parallel.Jobs(ctx, len(folds), 0, func(_, idx int) error {
		fold := folds[idx]
		xTrain, yTrain := take(X, y, fold.TrainIndices, nFeatures)
		xTest, yTest := take(X, y, fold.TestIndices, nFeatures)

		clf, err := newClassifier()
		if err != nil {
			return err
		}
		if err := clf.Fit(xTrain, yTrain); err != nil {
			return errors.Wrapf(err, "fold %d fit", idx)
		}
		pred, err := clf.Predict(xTest)
		if err != nil {
			return errors.Wrapf(err, "fold %d predict", idx)
		}
		if scores[idx], err = metrics.AccuracyScore(yTest, pred); err != nil {
			return errors.Wrapf(err, "fold %d score", idx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &CVResult{TestScores: scores}, nil
}
