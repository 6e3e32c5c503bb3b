// Package neighbors implements nearest-neighbour classification.
package neighbors

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartpredict/core/model"
	"github.com/YuminosukeSato/heartpredict/core/parallel"
	"github.com/YuminosukeSato/heartpredict/pkg/errors"
)

// parallelThreshold 以下の行数では逐次で予測する
const parallelThreshold = 64

// KNeighborsClassifier is a brute-force k-nearest-neighbours classifier,
// compatible with scikit-learn's KNeighborsClassifier(algorithm="brute").
type KNeighborsClassifier struct {
	state *model.StateManager

	// Hyperparameters
	nNeighbors int
	weights    string // "uniform" or "distance"
	metric     string // "euclidean" or "manhattan"

	// Fitted attributes
	X          *mat.Dense
	labels     []int // index into classes_ for each training row
	classes_   []int
	effectiveK int
}

// Option configures a KNeighborsClassifier.
type Option func(*KNeighborsClassifier)

// NewKNeighborsClassifier creates a classifier with scikit-learn defaults (k=5, uniform, euclidean).
func NewKNeighborsClassifier(opts ...Option) *KNeighborsClassifier {
	knn := &KNeighborsClassifier{
		state:      model.NewStateManager(),
		nNeighbors: 5,
		weights:    "uniform",
		metric:     "euclidean",
	}
	for _, opt := range opts {
		opt(knn)
	}
	return knn
}

// WithNNeighbors sets k.
func WithNNeighbors(k int) Option {
	return func(knn *KNeighborsClassifier) { knn.nNeighbors = k }
}

// WithWeights sets the vote weighting ("uniform" or "distance").
func WithWeights(weights string) Option {
	return func(knn *KNeighborsClassifier) { knn.weights = weights }
}

// WithMetric sets the distance metric ("euclidean" or "manhattan").
func WithMetric(metric string) Option {
	return func(knn *KNeighborsClassifier) { knn.metric = metric }
}

func (knn *KNeighborsClassifier) validateParams() error {
	switch {
	case knn.nNeighbors < 1:
		return errors.NewValidationError("n_neighbors", "must be at least 1", knn.nNeighbors)
	case knn.weights != "uniform" && knn.weights != "distance":
		return errors.NewValidationError("weights", "must be 'uniform' or 'distance'", knn.weights)
	case knn.metric != "euclidean" && knn.metric != "manhattan":
		return errors.NewValidationError("metric", "must be 'euclidean' or 'manhattan'", knn.metric)
	}
	return nil
}

// Fit stores the training data.
// When fewer rows than n_neighbors are given, every row is used as a neighbour.
func (knn *KNeighborsClassifier) Fit(X, y mat.Matrix) error {
	if err := knn.validateParams(); err != nil {
		return err
	}

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("KNeighborsClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != nSamples {
		return errors.NewDimensionError("KNeighborsClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("KNeighborsClassifier.Fit",
			fmt.Sprintf("y must be a column vector: got shape (%d, %d)", yRows, yCols))
	}
	if err := errors.CheckMatrix("KNeighborsClassifier.Fit", X, nSamples, nFeatures); err != nil {
		return err
	}

	knn.state.Reset()
	knn.X = mat.DenseCopyOf(X)
	knn.classes_ = model.ExtractClasses(y)
	index := model.ClassIndex(knn.classes_)
	knn.labels = make([]int, nSamples)
	for i := 0; i < nSamples; i++ {
		knn.labels[i] = index[int(y.At(i, 0))]
	}
	knn.effectiveK = min(knn.nNeighbors, nSamples)

	knn.state.SetDimensions(nFeatures, nSamples)
	knn.state.SetFitted()
	return nil
}

type neighbor struct {
	dist  float64
	index int
}

// kNeighbors returns the k closest training rows to x, nearest first.
// Equal distances are ordered by training row.
func (knn *KNeighborsClassifier) kNeighbors(x []float64) []neighbor {
	nTrain, _ := knn.X.Dims()
	all := make([]neighbor, nTrain)
	for j := 0; j < nTrain; j++ {
		all[j] = neighbor{dist: knn.distance(x, knn.X.RawRowView(j)), index: j}
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].dist != all[b].dist {
			return all[a].dist < all[b].dist
		}
		return all[a].index < all[b].index
	})
	return all[:knn.effectiveK]
}

func (knn *KNeighborsClassifier) distance(a, b []float64) float64 {
	if knn.metric == "manhattan" {
		return floats.Distance(a, b, 1)
	}
	return floats.Distance(a, b, 2)
}

// vote fills proba with the (weighted) class shares of the neighbours of x.
func (knn *KNeighborsClassifier) vote(x []float64, proba []float64) {
	for k := range proba {
		proba[k] = 0
	}
	nbrs := knn.kNeighbors(x)

	if knn.weights == "distance" {
		// 距離 0 の近傍があればそれらだけで投票する
		exact := false
		for _, n := range nbrs {
			if n.dist == 0 {
				exact = true
				proba[knn.labels[n.index]]++
			}
		}
		if !exact {
			for _, n := range nbrs {
				proba[knn.labels[n.index]] += 1 / n.dist
			}
		}
	} else {
		for _, n := range nbrs {
			proba[knn.labels[n.index]]++
		}
	}

	total := floats.Sum(proba)
	if total > 0 && !math.IsInf(total, 0) {
		floats.Scale(1/total, proba)
	}
}

// PredictProba returns the neighbour vote share of each class, columns ordered as Classes.
func (knn *KNeighborsClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := knn.state.RequireFitted("KNeighborsClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	if err := knn.state.RequireFeatures("KNeighborsClassifier.PredictProba", X); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	probas := mat.NewDense(nSamples, len(knn.classes_), nil)
	parallel.ParallelizeWithThreshold(nSamples, parallelThreshold, func(start, end int) {
		x := make([]float64, nFeatures)
		for i := start; i < end; i++ {
			mat.Row(x, i, X)
			knn.vote(x, probas.RawRowView(i))
		}
	})
	return probas, nil
}

// Predict returns the majority class among the k nearest neighbours.
// Ties resolve to the smallest class label.
func (knn *KNeighborsClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := knn.PredictProba(X)
	if err != nil {
		return nil, err
	}
	nSamples, _ := probas.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		predictions.Set(i, 0, float64(knn.classes_[model.ArgMaxRow(probas, i)]))
	}
	return predictions, nil
}

// KNeighbors returns the training-row indices and distances of the nearest neighbours of each row.
func (knn *KNeighborsClassifier) KNeighbors(X mat.Matrix) (indices [][]int, distances [][]float64, err error) {
	if err := knn.state.RequireFitted("KNeighborsClassifier", "KNeighbors"); err != nil {
		return nil, nil, err
	}
	if err := knn.state.RequireFeatures("KNeighborsClassifier.KNeighbors", X); err != nil {
		return nil, nil, err
	}

	nSamples, nFeatures := X.Dims()
	indices = make([][]int, nSamples)
	distances = make([][]float64, nSamples)
	x := make([]float64, nFeatures)
	for i := 0; i < nSamples; i++ {
		mat.Row(x, i, X)
		for _, n := range knn.kNeighbors(x) {
			indices[i] = append(indices[i], n.index)
			distances[i] = append(distances[i], n.dist)
		}
	}
	return indices, distances, nil
}

// Classes returns the sorted class labels.
func (knn *KNeighborsClassifier) Classes() []int {
	return append([]int(nil), knn.classes_...)
}

// EffectiveNeighbors returns the k used for prediction: n_neighbors capped at the training size.
func (knn *KNeighborsClassifier) EffectiveNeighbors() int {
	return knn.effectiveK
}

// Score returns the mean accuracy on the given test data and labels
func (knn *KNeighborsClassifier) Score(X, y mat.Matrix) float64 {
	predictions, err := knn.Predict(X)
	if err != nil {
		return 0.0
	}
	nSamples, _ := X.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples)
}

// GetParams returns the model hyperparameters
func (knn *KNeighborsClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_neighbors": knn.nNeighbors,
		"weights":     knn.weights,
		"metric":      knn.metric,
	}
}

// SetParams sets the model hyperparameters
func (knn *KNeighborsClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "n_neighbors":
			ok = model.SetParam(&knn.nNeighbors, value)
		case "weights":
			ok = model.SetParam(&knn.weights, value)
		case "metric":
			ok = model.SetParam(&knn.metric, value)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("unexpected type %T", value), value)
		}
	}
	return nil
}
