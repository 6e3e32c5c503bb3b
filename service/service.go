// Package service trains the classifiers once at startup and answers predictions from
// the resulting read-only state.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/YuminosukeSato/heartpredict/config"
	"github.com/YuminosukeSato/heartpredict/dataset"
	"github.com/YuminosukeSato/heartpredict/model_selection"
	"github.com/YuminosukeSato/heartpredict/pkg/errors"
	"github.com/YuminosukeSato/heartpredict/pkg/log"
	"github.com/YuminosukeSato/heartpredict/registry"
)

// Prediction is the answer to one feature vector.
type Prediction struct {
	Prediction int     `json:"prediction"`
	Accuracy   float64 `json:"accuracy"`
}

// Service holds the schema and the trained models. It has no mutators: once New returns,
// every method is safe for concurrent use.
type Service struct {
	schema  dataset.Schema
	entries []ModelEntry
	byName  map[string]int
	serving int
	nTrain  int
	nTest   int
}

// New loads the dataset named by cfg, splits it, trains every registered classifier and
// selects cfg.Server.Model for serving.
func New(ctx context.Context, cfg *config.Config, logger log.Logger) (*Service, error) {
	start := time.Now()
	ds, err := dataset.LoadCSV(cfg.Dataset.Path, cfg.Dataset.Label)
	if err != nil {
		return nil, err
	}
	logger.Info("Dataset loaded",
		log.OperationKey, log.OperationLoad,
		log.DataPathKey, cfg.Dataset.Path,
		log.SamplesKey, ds.NSamples(),
		log.FeaturesKey, ds.NFeatures(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return NewFromDataset(ctx, ds, registry.Default(), cfg, logger)
}

// NewFromDataset is New for an already loaded dataset and a caller-supplied registry.
func NewFromDataset(ctx context.Context, ds *dataset.Dataset, reg *registry.Registry, cfg *config.Config, logger log.Logger) (*Service, error) {
	if !reg.Has(cfg.Server.Model) {
		return nil, errors.NewValidationError("server.model",
			fmt.Sprintf("must be one of %q", reg.Names()), cfg.Server.Model)
	}

	split, err := model_selection.TrainTestSplit(ds.X, ds.Y, cfg.Training.TestSize, model_selection.NewRand(cfg.Training.Seed))
	if err != nil {
		return nil, errors.Wrap(err, "split dataset")
	}
	splitFields := []any{
		log.OperationKey, log.OperationSplit,
		"data.train_samples", len(split.TrainIndices),
		"data.test_samples", len(split.TestIndices),
	}
	if cfg.Training.Seed != nil {
		splitFields = append(splitFields, log.RandomSeedKey, *cfg.Training.Seed)
	}
	logger.Info("Dataset split", splitFields...)

	entries, err := Train(ctx, split, reg, Params(cfg), logger)
	if err != nil {
		return nil, err
	}

	s := &Service{
		schema:  ds.Schema,
		entries: entries,
		byName:  make(map[string]int, len(entries)),
		nTrain:  len(split.TrainIndices),
		nTest:   len(split.TestIndices),
	}
	for i, e := range entries {
		s.byName[e.Name] = i
	}
	s.serving = s.byName[cfg.Server.Model]
	return s, nil
}

// Params maps the training section of cfg onto registry parameters.
func Params(cfg *config.Config) registry.Params {
	return registry.Params{
		Seed:        cfg.Training.Seed,
		NEstimators: cfg.Training.NEstimators,
		NNeighbors:  cfg.Training.NNeighbors,
		MaxIter:     cfg.Training.MaxIter,
		Scaler:      cfg.Training.Scaler,
		NJobs:       cfg.Training.NJobs,
	}
}

// Predict classifies one feature vector with the serving model and returns the label
// together with that model's holdout accuracy. A panic in the model layer is returned
// as an errors.PanicError.
func (s *Service) Predict(features map[string]any) (p Prediction, err error) {
	defer errors.Recover(&err, "Service.Predict")

	x, err := s.schema.Vector(features)
	if err != nil {
		return Prediction{}, err
	}
	entry := s.entries[s.serving]
	pred, err := entry.Classifier.Predict(x)
	if err != nil {
		return Prediction{}, errors.Wrapf(err, "predict with %s", entry.Name)
	}
	return Prediction{Prediction: int(pred.At(0, 0)), Accuracy: entry.Accuracy}, nil
}

// Accuracy returns the holdout accuracy stored for name.
func (s *Service) Accuracy(name string) (float64, bool) {
	i, ok := s.byName[name]
	if !ok {
		return 0, false
	}
	return s.entries[i].Accuracy, true
}

// Models returns the trained entries in training order.
func (s *Service) Models() []ModelEntry {
	return append([]ModelEntry(nil), s.entries...)
}

// ServingModel returns the name of the model that answers Predict.
func (s *Service) ServingModel() string {
	return s.entries[s.serving].Name
}

// Schema returns the feature schema requests must match.
func (s *Service) Schema() dataset.Schema {
	return s.schema
}

// SplitSizes returns the number of training and test rows.
func (s *Service) SplitSizes() (train, test int) {
	return s.nTrain, s.nTest
}
