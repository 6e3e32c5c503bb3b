package linear_model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartpredict/core/model"
	"github.com/YuminosukeSato/heartpredict/pkg/errors"
)

// LogisticRegression implements logistic regression for classification
// Compatible with scikit-learn's LogisticRegression (binary or one-vs-rest)
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l2", "none"
	C            float64 // Inverse regularization strength (1/alpha)
	fitIntercept bool    // Whether to fit intercept
	maxIter      int     // Maximum iterations
	tol          float64 // Tolerance for stopping
	learningRate float64 // Initial step size, decayed as lr/(1+0.1*iter)

	// Model parameters
	coef_      [][]float64 // Coefficients (n_classes x n_features or 1 x n_features for binary)
	intercept_ []float64   // Intercept terms
	classes_   []int       // Unique class labels
	nClasses_  int         // Number of classes
	nFeatures_ int         // Number of features
	nIter_     []int       // Actual iterations per class
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		maxIter:      100,
		tol:          1e-4,
		learningRate: 1.0,
	}

	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRLearningRate sets the initial gradient step
func WithLRLearningRate(rate float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.learningRate = rate
	}
}

func (lr *LogisticRegression) validateParams() error {
	switch {
	case lr.penalty != "l2" && lr.penalty != "none":
		return errors.NewValidationError("penalty", "must be 'l2' or 'none'", lr.penalty)
	case lr.C <= 0:
		return errors.NewValidationError("C", "must be positive", lr.C)
	case lr.maxIter <= 0:
		return errors.NewValidationError("max_iter", "must be positive", lr.maxIter)
	case lr.tol <= 0:
		return errors.NewValidationError("tol", "must be positive", lr.tol)
	case lr.learningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be positive", lr.learningRate)
	}
	return nil
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	if err := lr.validateParams(); err != nil {
		return err
	}

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("LogisticRegression.Fit",
			fmt.Sprintf("y must be a column vector: got shape (%d, %d)", yRows, yCols))
	}
	if err := errors.CheckMatrix("LogisticRegression.Fit", X, nSamples, nFeatures); err != nil {
		return err
	}

	lr.state.Reset()
	lr.classes_ = model.ExtractClasses(y)
	lr.nClasses_ = len(lr.classes_)
	lr.nFeatures_ = nFeatures
	if lr.nClasses_ < 2 {
		return errors.Wrapf(errors.ErrSingleClass, "LogisticRegression.Fit: got class %v", lr.classes_)
	}

	// 二値分類は1組の重み、多クラスは one-vs-rest でクラスごとに1組
	nModels := lr.nClasses_
	if nModels == 2 {
		nModels = 1
	}
	lr.coef_ = make([][]float64, nModels)
	lr.intercept_ = make([]float64, nModels)
	lr.nIter_ = make([]int, nModels)

	for k := 0; k < nModels; k++ {
		positive := lr.classes_[k]
		if nModels == 1 {
			positive = lr.classes_[1]
		}
		target := make([]float64, nSamples)
		for i := 0; i < nSamples; i++ {
			if int(y.At(i, 0)) == positive {
				target[i] = 1
			}
		}
		if err := lr.fitBinary(X, target, k); err != nil {
			return errors.Wrapf(err, "LogisticRegression.Fit: class %d", positive)
		}
	}

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()
	return nil
}

// fitBinary fits one sigmoid model with full-batch gradient descent.
// The objective matches scikit-learn: mean log-loss + ||w||² / (2·C·n).
func (lr *LogisticRegression) fitBinary(X mat.Matrix, target []float64, k int) error {
	nSamples, nFeatures := X.Dims()
	weights := make([]float64, nFeatures)
	intercept := 0.0

	lambda := 0.0
	if lr.penalty == "l2" {
		lambda = 1.0 / (lr.C * float64(nSamples))
	}

	w := mat.NewVecDense(nFeatures, weights)
	z := mat.NewVecDense(nSamples, nil)
	residual := mat.NewVecDense(nSamples, nil)
	grad := mat.NewVecDense(nFeatures, nil)

	converged := false
	iter := 0
	for iter < lr.maxIter {
		z.MulVec(X, w)
		gradIntercept := 0.0
		for i := 0; i < nSamples; i++ {
			r := sigmoid(z.AtVec(i)+intercept) - target[i]
			residual.SetVec(i, r)
			gradIntercept += r
		}
		gradIntercept /= float64(nSamples)

		grad.MulVec(X.T(), residual)
		grad.ScaleVec(1/float64(nSamples), grad)
		if lambda > 0 {
			grad.AddScaledVec(grad, lambda, w)
		}

		step := lr.learningRate / (1.0 + 0.1*float64(iter))
		w.AddScaledVec(w, -step, grad)
		if lr.fitIntercept {
			intercept -= step * gradIntercept
		}
		iter++

		if err := errors.CheckNumericalStability("LogisticRegression.gradient_update", weights, iter); err != nil {
			return err
		}

		maxGrad := math.Abs(gradIntercept)
		if !lr.fitIntercept {
			maxGrad = 0
		}
		maxGrad = math.Max(maxGrad, floats.Norm(grad.RawVector().Data, math.Inf(1)))
		if maxGrad < lr.tol {
			converged = true
			break
		}
	}

	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", iter,
			"gradient descent did not reach tol; increase max_iter or scale the data"))
	}

	lr.coef_[k] = weights
	lr.intercept_[k] = intercept
	lr.nIter_[k] = iter
	return nil
}

// DecisionFunction returns the linear scores, one column per fitted weight vector.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "DecisionFunction"); err != nil {
		return nil, err
	}
	if err := lr.state.RequireFeatures("LogisticRegression.DecisionFunction", X); err != nil {
		return nil, err
	}

	nSamples, _ := X.Dims()
	scores := mat.NewDense(nSamples, len(lr.coef_), nil)
	for k, coef := range lr.coef_ {
		col := mat.NewVecDense(nSamples, nil)
		col.MulVec(X, mat.NewVecDense(lr.nFeatures_, coef))
		for i := 0; i < nSamples; i++ {
			scores.Set(i, k, col.AtVec(i)+lr.intercept_[k])
		}
	}
	return scores, nil
}

// PredictProba returns probability estimates for each class.
// One-vs-rest sigmoids are normalised per row, as scikit-learn does.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}

	nSamples, _ := scores.Dims()
	probas := mat.NewDense(nSamples, lr.nClasses_, nil)
	for i := 0; i < nSamples; i++ {
		if lr.nClasses_ == 2 {
			p1 := sigmoid(scores.At(i, 0))
			probas.Set(i, 0, 1-p1)
			probas.Set(i, 1, p1)
			continue
		}
		sum := 0.0
		for k := 0; k < lr.nClasses_; k++ {
			p := sigmoid(scores.At(i, k))
			probas.Set(i, k, p)
			sum += p
		}
		for k := 0; k < lr.nClasses_; k++ {
			probas.Set(i, k, probas.At(i, k)/sum)
		}
	}
	return probas, nil
}

// Predict makes predictions for input data
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}

	nSamples, _ := probas.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		predictions.Set(i, 0, float64(lr.classes_[model.ArgMaxRow(probas, i)]))
	}
	return predictions, nil
}

// Classes returns the sorted class labels seen during Fit.
func (lr *LogisticRegression) Classes() []int {
	return append([]int(nil), lr.classes_...)
}

// Coef returns a copy of the fitted coefficients.
func (lr *LogisticRegression) Coef() [][]float64 {
	out := make([][]float64, len(lr.coef_))
	for k := range lr.coef_ {
		out[k] = append([]float64(nil), lr.coef_[k]...)
	}
	return out
}

// Intercept returns a copy of the fitted intercepts.
func (lr *LogisticRegression) Intercept() []float64 {
	return append([]float64(nil), lr.intercept_...)
}

// NIter returns the number of iterations run for each weight vector.
func (lr *LogisticRegression) NIter() []int {
	return append([]int(nil), lr.nIter_...)
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	predictions, err := lr.Predict(X)
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
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
		"learning_rate": lr.learningRate,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "penalty":
			ok = model.SetParam(&lr.penalty, value)
		case "C":
			ok = model.SetParam(&lr.C, value)
		case "fit_intercept":
			ok = model.SetParam(&lr.fitIntercept, value)
		case "max_iter":
			ok = model.SetParam(&lr.maxIter, value)
		case "tol":
			ok = model.SetParam(&lr.tol, value)
		case "learning_rate":
			ok = model.SetParam(&lr.learningRate, value)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("unexpected type %T", value), value)
		}
	}
	return nil
}

// sigmoid computes the sigmoid function
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1.0 / (1.0 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1.0 + e)
}
