// Package ensemble provides tree ensembles built on sklearn/tree.
package ensemble

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartpredict/core/model"
	"github.com/YuminosukeSato/heartpredict/core/parallel"
	"github.com/YuminosukeSato/heartpredict/pkg/errors"
	"github.com/YuminosukeSato/heartpredict/sklearn/tree"
)

// RandomForestClassifier is a bagged ensemble of CART trees, compatible with
// scikit-learn's RandomForestClassifier. Trees are grown on bootstrap samples
// with a random feature subset per split, and predictions average the tree
// probabilities (soft voting).
type RandomForestClassifier struct {
	state *model.StateManager

	// Hyperparameters
	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string // "sqrt", "log2" or "all"
	bootstrap       bool
	nJobs           int
	seed            *uint64

	// Fitted attributes
	estimators_         []*tree.DecisionTreeClassifier
	classes_            []int
	nFeatures_          int
	featureImportances_ []float64
}

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// NewRandomForestClassifier creates a forest with scikit-learn defaults:
// 100 trees, gini, unlimited depth, sqrt(n_features) features per split, bootstrap.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithCriterion sets the split criterion of every tree ("gini" or "entropy").
func WithCriterion(criterion string) Option {
	return func(rf *RandomForestClassifier) { rf.criterion = criterion }
}

// WithMaxDepth limits tree depth; -1 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum weighted rows needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum rows per leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the per-split feature subset rule ("sqrt", "log2" or "all").
func WithMaxFeatures(rule string) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = rule }
}

// WithBootstrap toggles bootstrap resampling. Without it every tree sees the full training set.
func WithBootstrap(bootstrap bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = bootstrap }
}

// WithNJobs sets how many trees are grown concurrently; <= 0 uses every CPU.
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// WithRandomState makes fitting reproducible.
func WithRandomState(seed uint64) Option {
	return func(rf *RandomForestClassifier) { rf.seed = &seed }
}

func (rf *RandomForestClassifier) validateParams() error {
	switch {
	case rf.nEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be at least 1", rf.nEstimators)
	case rf.maxFeatures != "sqrt" && rf.maxFeatures != "log2" && rf.maxFeatures != "all":
		return errors.NewValidationError("max_features", "must be 'sqrt', 'log2' or 'all'", rf.maxFeatures)
	}
	return nil
}

// featuresPerSplit resolves the max_features rule for p features.
func (rf *RandomForestClassifier) featuresPerSplit(p int) int {
	switch rf.maxFeatures {
	case "sqrt":
		return max(1, int(math.Sqrt(float64(p))))
	case "log2":
		return max(1, int(math.Log2(float64(p))))
	default:
		return p
	}
}

// Fit grows the forest. It is FitContext with a background context.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	return rf.FitContext(context.Background(), X, y)
}

// FitContext grows the trees concurrently. Cancelling ctx abandons the fit and
// leaves the forest unfitted.
func (rf *RandomForestClassifier) FitContext(ctx context.Context, X, y mat.Matrix) error {
	if err := rf.validateParams(); err != nil {
		return err
	}

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != nSamples {
		return errors.NewDimensionError("RandomForestClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("RandomForestClassifier.Fit",
			fmt.Sprintf("y must be a column vector: got shape (%d, %d)", yRows, yCols))
	}
	if err := errors.CheckMatrix("RandomForestClassifier.Fit", X, nSamples, nFeatures); err != nil {
		return err
	}

	rf.state.Reset()
	classes := model.ExtractClasses(y)
	mtry := rf.featuresPerSplit(nFeatures)

	// 木ごとのシードは逐次に引くので、ワーカー数に関係なく結果は同じ
	master := newRand(rf.seed)
	seeds := make([]uint64, rf.nEstimators)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	estimators := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	err := parallel.Jobs(ctx, rf.nEstimators, rf.nJobs, func(_, idx int) error {
		dt := tree.NewDecisionTreeClassifier(
			tree.WithCriterion(rf.criterion),
			tree.WithMaxDepth(rf.maxDepth),
			tree.WithMinSamplesSplit(rf.minSamplesSplit),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithMaxFeatures(mtry),
			tree.WithClasses(classes),
			tree.WithRandomState(seeds[idx]),
		)
		var weights []float64
		if rf.bootstrap {
			weights = bootstrapWeights(seeds[idx], nSamples)
		}
		if err := dt.FitWeighted(X, y, weights); err != nil {
			return errors.Wrapf(err, "tree %d", idx)
		}
		estimators[idx] = dt
		return nil
	})
	if err != nil {
		return err
	}

	rf.estimators_ = estimators
	rf.classes_ = classes
	rf.nFeatures_ = nFeatures
	rf.featureImportances_ = make([]float64, nFeatures)
	for _, dt := range estimators {
		floats.Add(rf.featureImportances_, dt.GetFeatureImportances())
	}
	if total := floats.Sum(rf.featureImportances_); total > 0 {
		floats.Scale(1/total, rf.featureImportances_)
	}

	rf.state.SetDimensions(nFeatures, nSamples)
	rf.state.SetFitted()
	return nil
}

// bootstrapWeights draws n rows with replacement and returns how often each was drawn.
func bootstrapWeights(seed uint64, n int) []float64 {
	rng := rand.New(rand.NewPCG(seed, ^seed))
	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		weights[rng.IntN(n)]++
	}
	return weights
}

func newRand(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, *seed))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// PredictProba averages the class probabilities of all trees.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	if err := rf.state.RequireFeatures("RandomForestClassifier.PredictProba", X); err != nil {
		return nil, err
	}

	nSamples, _ := X.Dims()
	sum := mat.NewDense(nSamples, len(rf.classes_), nil)
	for _, dt := range rf.estimators_ {
		proba, err := dt.PredictProba(X)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, proba)
	}
	sum.Scale(1/float64(len(rf.estimators_)), sum)
	return sum, nil
}

// Predict returns the class with the highest averaged probability.
// Ties resolve to the smallest class label.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	nSamples, _ := probas.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		predictions.Set(i, 0, float64(rf.classes_[model.ArgMaxRow(probas, i)]))
	}
	return predictions, nil
}

// Score returns the mean accuracy on the given test data and labels
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	predictions, err := rf.Predict(X)
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

// Classes returns the sorted class labels.
func (rf *RandomForestClassifier) Classes() []int {
	return append([]int(nil), rf.classes_...)
}

// Estimators returns the fitted trees.
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	return append([]*tree.DecisionTreeClassifier(nil), rf.estimators_...)
}

// GetFeatureImportances returns the mean impurity decrease per feature, normalized to sum to 1.
func (rf *RandomForestClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), rf.featureImportances_...)
}

// GetParams returns the model hyperparameters
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	params := map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"n_jobs":            rf.nJobs,
	}
	if rf.seed != nil {
		params["random_state"] = *rf.seed
	}
	return params
}

// SetParams sets the model hyperparameters
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "n_estimators":
			ok = model.SetParam(&rf.nEstimators, value)
		case "criterion":
			ok = model.SetParam(&rf.criterion, value)
		case "max_depth":
			ok = model.SetParam(&rf.maxDepth, value)
		case "min_samples_split":
			ok = model.SetParam(&rf.minSamplesSplit, value)
		case "min_samples_leaf":
			ok = model.SetParam(&rf.minSamplesLeaf, value)
		case "max_features":
			ok = model.SetParam(&rf.maxFeatures, value)
		case "bootstrap":
			ok = model.SetParam(&rf.bootstrap, value)
		case "n_jobs":
			ok = model.SetParam(&rf.nJobs, value)
		case "random_state":
			var seed uint64
			if seed, ok = value.(uint64); ok {
				rf.seed = &seed
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("unexpected type %T", value), value)
		}
	}
	return nil
}
