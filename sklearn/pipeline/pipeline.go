// Package pipeline chains a preprocessing step in front of a classifier.
package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartpredict/core/model"
	"github.com/YuminosukeSato/heartpredict/pkg/errors"
)

// Pipeline fits its transformer on the training data, then fits the classifier on the
// transformed data. Prediction applies the same fitted transform first.
// A nil transformer makes the pipeline a pass-through to the classifier.
type Pipeline struct {
	transformer model.Transformer
	classifier  model.Classifier
	fitted      bool
}

// NewPipeline creates a pipeline. The classifier is required.
func NewPipeline(transformer model.Transformer, classifier model.Classifier) *Pipeline {
	return &Pipeline{transformer: transformer, classifier: classifier}
}

// Fit fits the transformer and then the classifier.
func (p *Pipeline) Fit(X, y mat.Matrix) error {
	if p.classifier == nil {
		return errors.NewValueError("Pipeline.Fit", "classifier is nil")
	}
	p.fitted = false

	Xt := X
	if p.transformer != nil {
		var err error
		if Xt, err = p.transformer.FitTransform(X); err != nil {
			return errors.Wrap(err, "pipeline transform")
		}
	}
	if err := p.classifier.Fit(Xt, y); err != nil {
		return err
	}
	p.fitted = true
	return nil
}

func (p *Pipeline) transform(op string, X mat.Matrix) (mat.Matrix, error) {
	if !p.fitted {
		return nil, errors.NewNotFittedError("Pipeline", op)
	}
	if p.transformer == nil {
		return X, nil
	}
	return p.transformer.Transform(X)
}

// Predict transforms X and predicts with the classifier.
func (p *Pipeline) Predict(X mat.Matrix) (mat.Matrix, error) {
	Xt, err := p.transform("Predict", X)
	if err != nil {
		return nil, err
	}
	return p.classifier.Predict(Xt)
}

// PredictProba transforms X and returns the classifier's probabilities.
func (p *Pipeline) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	Xt, err := p.transform("PredictProba", X)
	if err != nil {
		return nil, err
	}
	return p.classifier.PredictProba(Xt)
}

// Classes returns the classifier's classes.
func (p *Pipeline) Classes() []int {
	return p.classifier.Classes()
}

// Steps returns the transformer and the classifier.
func (p *Pipeline) Steps() (model.Transformer, model.Classifier) {
	return p.transformer, p.classifier
}

// GetParams returns the classifier parameters prefixed with "classifier__",
// following the scikit-learn step__param convention.
func (p *Pipeline) GetParams() map[string]interface{} {
	params := map[string]interface{}{}
	if getter, ok := p.classifier.(model.ParameterGetter); ok {
		for k, v := range getter.GetParams() {
			params["classifier__"+k] = v
		}
	}
	if getter, ok := p.transformer.(model.ParameterGetter); ok {
		for k, v := range getter.GetParams() {
			params["transformer__"+k] = v
		}
	}
	return params
}

// String returns a short description of the steps.
func (p *Pipeline) String() string {
	return fmt.Sprintf("Pipeline(%T, %T)", p.transformer, p.classifier)
}
