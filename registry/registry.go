// Package registry maps classifier names to factories that build unfitted classifiers.
package registry

import (
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/YuminosukeSato/heartpredict/core/model"
	"github.com/YuminosukeSato/heartpredict/pkg/errors"
	"github.com/YuminosukeSato/heartpredict/preprocessing"
	"github.com/YuminosukeSato/heartpredict/sklearn/ensemble"
	"github.com/YuminosukeSato/heartpredict/sklearn/linear_model"
	"github.com/YuminosukeSato/heartpredict/sklearn/neighbors"
	"github.com/YuminosukeSato/heartpredict/sklearn/pipeline"
)

// Names of the built-in classifiers.
const (
	LogisticRegression = "Logistic Regression"
	KNN                = "KNN"
	RandomForest       = "Random Forest Classifier"
)

// Params are the hyperparameters a factory may read. Zero values select the defaults.
type Params struct {
	// Seed fixes the randomness of stochastic classifiers. nil leaves them unseeded.
	Seed        *uint64
	NEstimators int
	NNeighbors  int
	MaxIter     int
	// Scaler names the preprocessing step placed in front of logistic regression.
	Scaler string
	// NJobs bounds the concurrency of classifiers that fit in parallel.
	NJobs int
}

// Factory builds a fresh, unfitted classifier.
type Factory func(Params) (model.Classifier, error)

// Registry is an ordered set of named factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	names     []string
	factories map[string]Factory
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry holding the three built-in classifiers in training order.
func Default() *Registry {
	r := New()
	lo.Must0(r.Register(LogisticRegression, newLogisticRegression))
	lo.Must0(r.Register(KNN, newKNN))
	lo.Must0(r.Register(RandomForest, newRandomForest))
	return r
}

// Register adds a factory. Names must be unique.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return errors.NewValueError("Registry.Register", "name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return errors.NewValueError("Registry.Register", fmt.Sprintf("classifier %q is already registered", name))
	}
	r.names = append(r.names, name)
	r.factories[name] = factory
	return nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Contains(r.names, name)
}

// Build creates a new classifier by name.
func (r *Registry) Build(name string, params Params) (model.Classifier, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewValidationError("classifier", fmt.Sprintf("must be one of %q", r.Names()), name)
	}
	clf, err := factory(params)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s", name)
	}
	return clf, nil
}

func newLogisticRegression(p Params) (model.Classifier, error) {
	scaler, err := preprocessing.NewScaler(p.Scaler)
	if err != nil {
		return nil, err
	}
	var opts []linear_model.LogisticRegressionOption
	if p.MaxIter > 0 {
		opts = append(opts, linear_model.WithLRMaxIter(p.MaxIter))
	}
	return pipeline.NewPipeline(scaler, linear_model.NewLogisticRegression(opts...)), nil
}

func newKNN(p Params) (model.Classifier, error) {
	var opts []neighbors.Option
	if p.NNeighbors > 0 {
		opts = append(opts, neighbors.WithNNeighbors(p.NNeighbors))
	}
	return neighbors.NewKNeighborsClassifier(opts...), nil
}

func newRandomForest(p Params) (model.Classifier, error) {
	opts := []ensemble.Option{ensemble.WithNJobs(p.NJobs)}
	if p.NEstimators > 0 {
		opts = append(opts, ensemble.WithNEstimators(p.NEstimators))
	}
	if p.Seed != nil {
		opts = append(opts, ensemble.WithRandomState(*p.Seed))
	}
	return ensemble.NewRandomForestClassifier(opts...), nil
}
