// Package model provides the interfaces shared by every estimator in heartpredict.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Classifier combines interfaces for classification models.
//
// Fit mutates the receiver once. Predict, PredictProba and Classes must be safe for
// concurrent use after Fit returns.
type Classifier interface {
	Estimator

	// PredictProba returns probability estimates for each class, columns ordered as Classes.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the sorted unique classes seen during fitting.
	Classes() []int
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]interface{}) error
}
