// Package tree implements CART decision trees compatible with scikit-learn's
// DecisionTreeClassifier. The tree is the base learner of ensemble.RandomForestClassifier.
package tree

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartpredict/core/model"
	"github.com/YuminosukeSato/heartpredict/pkg/errors"
)

// pureEps 以下の不純度のノードは葉にする
const pureEps = 1e-7

// node is one tree node. Leaves have left == nil.
type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node

	// value はノード内のクラス確率（classes_ の順）
	value    []float64
	impurity float64
	nSamples int
}

func (n *node) isLeaf() bool {
	return n.left == nil
}

// DecisionTreeClassifier is a CART classification tree.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string // "gini" or "entropy"
	maxDepth        int    // <= 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // features examined per split, <= 0 means all
	seed            *uint64
	fixedClasses    []int

	// Fitted attributes
	root                *node
	classes_            []int
	nClasses_           int
	nFeatures_          int
	featureImportances_ []float64
	depth_              int
	nLeaves_            int
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier creates a tree with scikit-learn defaults.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithCriterion sets the impurity measure ("gini" or "entropy").
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth limits the depth of the tree.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum samples needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum samples in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many randomly chosen features are examined per split.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = n }
}

// WithRandomState fixes the seed used for feature sampling.
func WithRandomState(seed uint64) Option {
	return func(dt *DecisionTreeClassifier) { dt.seed = &seed }
}

// WithClasses fixes the class set and the column order of PredictProba.
// Ensembles use it so trees fitted on bootstrap samples agree on columns.
func WithClasses(classes []int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.fixedClasses = append([]int(nil), classes...)
		sort.Ints(dt.fixedClasses)
	}
}

func (dt *DecisionTreeClassifier) validateParams() error {
	switch {
	case dt.criterion != "gini" && dt.criterion != "entropy":
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", dt.criterion)
	case dt.minSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	case dt.minSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.minSamplesLeaf)
	}
	return nil
}

// Fit builds the tree from the training data.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	return dt.FitWeighted(X, y, nil)
}

// FitWeighted builds the tree with per-sample weights. Rows with zero weight are
// ignored; a weight of k counts the row k times, which is how bootstrap
// resampling is expressed. A nil slice means uniform weights.
func (dt *DecisionTreeClassifier) FitWeighted(X, y mat.Matrix, sampleWeight []float64) error {
	if err := dt.validateParams(); err != nil {
		return err
	}

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("DecisionTreeClassifier.Fit",
			fmt.Sprintf("y must be a column vector: got shape (%d, %d)", yRows, yCols))
	}
	if sampleWeight != nil && len(sampleWeight) != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, len(sampleWeight), 0)
	}
	if err := errors.CheckMatrix("DecisionTreeClassifier.Fit", X, nSamples, nFeatures); err != nil {
		return err
	}

	dt.state.Reset()
	if dt.fixedClasses != nil {
		dt.classes_ = append([]int(nil), dt.fixedClasses...)
	} else {
		dt.classes_ = model.ExtractClasses(y)
	}
	dt.nClasses_ = len(dt.classes_)
	dt.nFeatures_ = nFeatures
	classIndex := model.ClassIndex(dt.classes_)

	b := &builder{
		dt:      dt,
		X:       X,
		labels:  make([]int, nSamples),
		weights: make([]float64, nSamples),
		gains:   make([]float64, nFeatures),
	}
	if dt.maxFeatures > 0 && dt.maxFeatures < nFeatures {
		b.rng = newRand(dt.seed)
	}

	indices := make([]int, 0, nSamples)
	for i := 0; i < nSamples; i++ {
		idx, ok := classIndex[int(y.At(i, 0))]
		if !ok {
			return errors.NewValueError("DecisionTreeClassifier.Fit",
				fmt.Sprintf("label %v is not one of the fixed classes %v", y.At(i, 0), dt.classes_))
		}
		b.labels[i] = idx
		b.weights[i] = 1
		if sampleWeight != nil {
			b.weights[i] = sampleWeight[i]
		}
		if b.weights[i] > 0 {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		return errors.NewValueError("DecisionTreeClassifier.Fit", "all sample weights are zero")
	}

	dt.depth_ = 0
	dt.nLeaves_ = 0
	dt.root = b.grow(indices, 0)

	dt.featureImportances_ = b.gains
	total := 0.0
	for _, g := range b.gains {
		total += g
	}
	if total > 0 {
		for j := range dt.featureImportances_ {
			dt.featureImportances_[j] /= total
		}
	}

	dt.state.SetDimensions(nFeatures, nSamples)
	dt.state.SetFitted()
	return nil
}

func newRand(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, *seed))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// builder holds the per-fit scratch state of the recursive CART construction.
type builder struct {
	dt      *DecisionTreeClassifier
	X       mat.Matrix
	labels  []int
	weights []float64
	gains   []float64
	rng     *rand.Rand
}

func (b *builder) distribution(indices []int) (counts []float64, total float64) {
	counts = make([]float64, b.dt.nClasses_)
	for _, i := range indices {
		counts[b.labels[i]] += b.weights[i]
		total += b.weights[i]
	}
	return counts, total
}

func (b *builder) grow(indices []int, depth int) *node {
	dt := b.dt
	counts, total := b.distribution(indices)
	n := &node{
		impurity: impurity(dt.criterion, counts, total),
		nSamples: len(indices),
		value:    make([]float64, len(counts)),
	}
	for k, c := range counts {
		n.value[k] = c / total
	}

	canSplit := (dt.maxDepth <= 0 || depth < dt.maxDepth) &&
		len(indices) >= dt.minSamplesSplit &&
		len(indices) >= 2*dt.minSamplesLeaf &&
		n.impurity > pureEps
	if canSplit {
		if s, ok := b.bestSplit(indices, counts, total); ok {
			n.feature = s.feature
			n.threshold = s.threshold
			b.gains[s.feature] += total*n.impurity - s.weightedChildImpurity

			left := make([]int, 0, s.nLeft)
			right := make([]int, 0, len(indices)-s.nLeft)
			for _, i := range indices {
				if b.X.At(i, s.feature) <= s.threshold {
					left = append(left, i)
				} else {
					right = append(right, i)
				}
			}
			n.left = b.grow(left, depth+1)
			n.right = b.grow(right, depth+1)
			return n
		}
	}

	dt.nLeaves_++
	dt.depth_ = max(dt.depth_, depth)
	return n
}

type split struct {
	feature   int
	threshold float64
	nLeft     int
	// weightedChildImpurity is wL·impurity(L) + wR·impurity(R)
	weightedChildImpurity float64
}

func (b *builder) featureOrder() []int {
	if b.rng != nil {
		return b.rng.Perm(b.dt.nFeatures_)
	}
	order := make([]int, b.dt.nFeatures_)
	for j := range order {
		order[j] = j
	}
	return order
}

func (b *builder) bestSplit(indices []int, counts []float64, total float64) (split, bool) {
	dt := b.dt
	best := split{weightedChildImpurity: math.Inf(1)}
	found := false

	limit := dt.nFeatures_
	if b.rng != nil {
		limit = dt.maxFeatures
	}

	sorted := make([]int, len(indices))
	leftCounts := make([]float64, len(counts))
	rightCounts := make([]float64, len(counts))
	visited := 0

	for _, f := range b.featureOrder() {
		if visited >= limit && found {
			break
		}

		copy(sorted, indices)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.X.At(sorted[a], f) < b.X.At(sorted[c], f)
		})
		lo, hi := b.X.At(sorted[0], f), b.X.At(sorted[len(sorted)-1], f)
		if hi-lo <= pureEps {
			// 定数特徴量は max_features の枠を消費しない
			continue
		}
		visited++

		for k := range leftCounts {
			leftCounts[k] = 0
		}
		copy(rightCounts, counts)
		wLeft, wRight := 0.0, total

		for pos := 0; pos < len(sorted)-1; pos++ {
			i := sorted[pos]
			leftCounts[b.labels[i]] += b.weights[i]
			rightCounts[b.labels[i]] -= b.weights[i]
			wLeft += b.weights[i]
			wRight -= b.weights[i]

			nLeft := pos + 1
			if nLeft < dt.minSamplesLeaf || len(sorted)-nLeft < dt.minSamplesLeaf {
				continue
			}
			xi, xNext := b.X.At(i, f), b.X.At(sorted[pos+1], f)
			if xNext-xi <= pureEps {
				continue
			}

			child := wLeft*impurity(dt.criterion, leftCounts, wLeft) +
				wRight*impurity(dt.criterion, rightCounts, wRight)
			if child < best.weightedChildImpurity {
				threshold := xi/2 + xNext/2
				if threshold >= xNext {
					threshold = xi
				}
				best = split{feature: f, threshold: threshold, nLeft: nLeft, weightedChildImpurity: child}
				found = true
			}
		}
	}
	return best, found
}

func impurity(criterion string, counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	switch criterion {
	case "entropy":
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / total
				h -= p * math.Log2(p)
			}
		}
		return h
	default:
		g := 1.0
		for _, c := range counts {
			p := c / total
			g -= p * p
		}
		return g
	}
}

func (dt *DecisionTreeClassifier) leaf(X mat.Matrix, i int) *node {
	n := dt.root
	for !n.isLeaf() {
		if X.At(i, n.feature) <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n
}

// PredictProba returns the class distribution of the leaf each row falls into.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	if err := dt.state.RequireFeatures("DecisionTreeClassifier.PredictProba", X); err != nil {
		return nil, err
	}

	nSamples, _ := X.Dims()
	probas := mat.NewDense(nSamples, dt.nClasses_, nil)
	for i := 0; i < nSamples; i++ {
		probas.SetRow(i, dt.leaf(X, i).value)
	}
	return probas, nil
}

// Predict returns the most probable class for each row.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	nSamples, _ := probas.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		predictions.Set(i, 0, float64(dt.classes_[model.ArgMaxRow(probas, i)]))
	}
	return predictions, nil
}

// Score returns the mean accuracy on the given test data and labels
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	predictions, err := dt.Predict(X)
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
func (dt *DecisionTreeClassifier) Classes() []int {
	return append([]int(nil), dt.classes_...)
}

// GetFeatureImportances returns the normalised total impurity decrease per feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.featureImportances_...)
}

// GetDepth returns the depth of the deepest leaf (root is depth 0).
func (dt *DecisionTreeClassifier) GetDepth() int {
	return dt.depth_
}

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return dt.nLeaves_
}

// GetParams returns the model hyperparameters
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
	}
}

// SetParams sets the model hyperparameters
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "criterion":
			ok = model.SetParam(&dt.criterion, value)
		case "max_depth":
			ok = model.SetParam(&dt.maxDepth, value)
		case "min_samples_split":
			ok = model.SetParam(&dt.minSamplesSplit, value)
		case "min_samples_leaf":
			ok = model.SetParam(&dt.minSamplesLeaf, value)
		case "max_features":
			ok = model.SetParam(&dt.maxFeatures, value)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("unexpected type %T", value), value)
		}
	}
	return nil
}
