package service

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartpredict/core/model"
	"github.com/YuminosukeSato/heartpredict/metrics"
	"github.com/YuminosukeSato/heartpredict/model_selection"
	"github.com/YuminosukeSato/heartpredict/pkg/errors"
	"github.com/YuminosukeSato/heartpredict/pkg/log"
	"github.com/YuminosukeSato/heartpredict/registry"
)

// ModelEntry is a trained classifier and its holdout scores.
// Precision, Recall and F1 are computed for the larger label of a binary target and are
// zero otherwise.
type ModelEntry struct {
	Name       string
	Classifier model.Classifier
	Accuracy   float64
	Precision  float64
	Recall     float64
	F1         float64
	FitTime    time.Duration
}

// contextFitter is implemented by classifiers whose fit can be cancelled.
type contextFitter interface {
	FitContext(ctx context.Context, X, y mat.Matrix) error
}

// Train fits every registered classifier on the training partition, in registry order,
// and scores it on the test partition. The first failure aborts training.
func Train(ctx context.Context, split *model_selection.Split, reg *registry.Registry, params registry.Params, logger log.Logger) ([]ModelEntry, error) {
	entries := make([]ModelEntry, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := trainOne(ctx, name, split, reg, params)
		if err != nil {
			return nil, errors.Wrapf(err, "train %s", name)
		}
		logger.Info("Model trained",
			log.ModelNameKey, name,
			log.OperationKey, log.OperationFit,
			log.AccuracyKey, entry.Accuracy,
			"metrics.precision", entry.Precision,
			"metrics.recall", entry.Recall,
			"metrics.f1", entry.F1,
			log.DurationMsKey, entry.FitTime.Milliseconds(),
		)
		entries = append(entries, entry)
	}
	return entries, nil
}

func trainOne(ctx context.Context, name string, split *model_selection.Split, reg *registry.Registry, params registry.Params) (_ ModelEntry, err error) {
	defer errors.Recover(&err, "train "+name)

	clf, err := reg.Build(name, params)
	if err != nil {
		return ModelEntry{}, err
	}

	start := time.Now()
	if cf, ok := clf.(contextFitter); ok {
		err = cf.FitContext(ctx, split.XTrain, split.YTrain)
	} else {
		err = clf.Fit(split.XTrain, split.YTrain)
	}
	if err != nil {
		return ModelEntry{}, errors.Wrap(err, "fit")
	}
	fitTime := time.Since(start)

	pred, err := clf.Predict(split.XTest)
	if err != nil {
		return ModelEntry{}, errors.Wrap(err, "predict holdout")
	}
	entry := ModelEntry{Name: name, Classifier: clf, FitTime: fitTime}
	if entry.Accuracy, err = metrics.AccuracyScore(split.YTest, pred); err != nil {
		return ModelEntry{}, errors.Wrap(err, "score holdout")
	}

	if classes := clf.Classes(); len(classes) == 2 {
		yPred := mat.NewVecDense(split.YTest.Len(), mat.Col(nil, 0, pred))
		pos := classes[1]
		if entry.Precision, err = metrics.PrecisionScore(split.YTest, yPred, pos); err != nil {
			return ModelEntry{}, err
		}
		if entry.Recall, err = metrics.RecallScore(split.YTest, yPred, pos); err != nil {
			return ModelEntry{}, err
		}
		if entry.F1, err = metrics.F1Score(split.YTest, yPred, pos); err != nil {
			return ModelEntry{}, err
		}
	}
	return entry, nil
}
