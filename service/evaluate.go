package service

import (
	"context"

	"github.com/YuminosukeSato/heartpredict/core/model"
	"github.com/YuminosukeSato/heartpredict/dataset"
	"github.com/YuminosukeSato/heartpredict/model_selection"
	"github.com/YuminosukeSato/heartpredict/pkg/errors"
	"github.com/YuminosukeSato/heartpredict/registry"
)

// CVScore is the k-fold accuracy of one registered classifier.
type CVScore struct {
	Name   string
	Result *model_selection.CVResult
}

// CrossValidate runs stratified k-fold cross-validation over the whole dataset for every
// registered classifier, in registry order. It complements the single holdout accuracy
// reported by the evaluate command.
func CrossValidate(ctx context.Context, ds *dataset.Dataset, reg *registry.Registry, params registry.Params, k int) ([]CVScore, error) {
	splitter := model_selection.NewStratifiedKFold(k, true, params.Seed)
	scores := make([]CVScore, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		result, err := model_selection.CrossValScore(ctx, func() (model.Classifier, error) {
			return reg.Build(name, params)
		}, ds.X, ds.Y, splitter)
		if err != nil {
			return nil, errors.Wrapf(err, "cross-validate %s", name)
		}
		scores = append(scores, CVScore{Name: name, Result: result})
	}
	return scores, nil
}
