package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartpredict/config"
	"github.com/YuminosukeSato/heartpredict/core/model"
	"github.com/YuminosukeSato/heartpredict/dataset"
	"github.com/YuminosukeSato/heartpredict/pkg/errors"
	"github.com/YuminosukeSato/heartpredict/pkg/log"
	"github.com/YuminosukeSato/heartpredict/registry"
	"github.com/YuminosukeSato/heartpredict/sklearn/neighbors"
)

const tinyCSV = `age,chol,target
50,200,1
40,180,0
60,250,1
45,190,0
`

// syntheticCSV returns 2n rows: healthy rows are young with low cholesterol, the others
// old with high cholesterol.
func syntheticCSV(n int) string {
	var b strings.Builder
	b.WriteString("age,chol,thalach,target\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,%d,%d,0\n", 35+i%10, 180+i%20, 150+i%15)
		fmt.Fprintf(&b, "%d,%d,%d,1\n", 60+i%10, 260+i%20, 150+i%15)
	}
	return b.String()
}

func testConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Training.NEstimators = 10
	return cfg
}

func readCSV(t *testing.T, text string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.ReadCSV(strings.NewReader(text), dataset.DefaultLabel)
	require.NoError(t, err)
	return ds
}

func TestService_TinyDataset(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelInfo)
	s, err := NewFromDataset(context.Background(), readCSV(t, tinyCSV), registry.Default(), testConfig(), logger)
	require.NoError(t, err)

	train, test := s.SplitSizes()
	assert.Equal(t, 3, train)
	assert.Equal(t, 1, test)

	first, err := s.Predict(map[string]any{"age": 50, "chol": 200})
	require.NoError(t, err)
	assert.Contains(t, []int{0, 1}, first.Prediction)
	assert.GreaterOrEqual(t, first.Accuracy, 0.0)
	assert.LessOrEqual(t, first.Accuracy, 1.0)

	for i := 0; i < 5; i++ {
		again, err := s.Predict(map[string]any{"age": 50, "chol": 200})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestService_ModelsAndLogging(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelInfo)
	s, err := NewFromDataset(context.Background(), readCSV(t, syntheticCSV(30)), registry.Default(), testConfig(), logger)
	require.NoError(t, err)

	models := s.Models()
	require.Len(t, models, 3)
	assert.Equal(t, registry.LogisticRegression, models[0].Name)
	assert.Equal(t, registry.KNN, models[1].Name)
	assert.Equal(t, registry.RandomForest, models[2].Name)
	for _, m := range models {
		assert.GreaterOrEqual(t, m.Accuracy, 0.9, m.Name)
		acc, ok := s.Accuracy(m.Name)
		assert.True(t, ok)
		assert.Equal(t, m.Accuracy, acc)
		assert.Greater(t, m.F1, 0.0, m.Name)
	}
	_, ok := s.Accuracy("SVM")
	assert.False(t, ok)

	assert.Equal(t, registry.RandomForest, s.ServingModel())
	assert.Equal(t, []string{"age", "chol", "thalach"}, s.Schema().Features)
	assert.True(t, logger.ContainsMessage("Dataset split"))
	assert.True(t, logger.ContainsField(log.ModelNameKey, registry.RandomForest))
}

func TestService_SeededIsReproducible(t *testing.T) {
	ds := readCSV(t, syntheticCSV(40))
	cfg := testConfig()
	seed := uint64(42)
	cfg.Training.Seed = &seed

	build := func() *Service {
		logger, _ := log.NewTestLogger(log.LevelWarn)
		s, err := NewFromDataset(context.Background(), ds, registry.Default(), cfg, logger)
		require.NoError(t, err)
		return s
	}
	a, b := build(), build()

	for i, m := range a.Models() {
		assert.Equal(t, m.Accuracy, b.Models()[i].Accuracy, m.Name)
	}
	for i := 0; i < ds.NSamples(); i++ {
		features := map[string]any{}
		for j, name := range ds.Schema.Features {
			features[name] = ds.X.At(i, j)
		}
		pa, err := a.Predict(features)
		require.NoError(t, err)
		pb, err := b.Predict(features)
		require.NoError(t, err)
		assert.Equal(t, pa, pb, "row %d", i)
	}
}

// TestService_SeededSnapshot pins the whole startup on the four-patient dataset with
// seed 42: the split holds out row 3 (45,190,0), the forest gets that row right and
// the other two models do not.
func TestService_SeededSnapshot(t *testing.T) {
	cfg := config.GetDefaultConfig()
	seed := uint64(42)
	cfg.Training.Seed = &seed
	logger, _ := log.NewTestLogger(log.LevelWarn)
	s, err := NewFromDataset(context.Background(), readCSV(t, tinyCSV), registry.Default(), cfg, logger)
	require.NoError(t, err)

	wantAccuracy := map[string]float64{
		registry.LogisticRegression: 0,
		registry.KNN:                0,
		registry.RandomForest:       1,
	}
	for _, m := range s.Models() {
		assert.Equal(t, wantAccuracy[m.Name], m.Accuracy, m.Name)
	}

	tests := []struct {
		name     string
		features map[string]any
		want     Prediction
	}{
		{"request", map[string]any{"age": 50, "chol": 200}, Prediction{Prediction: 1, Accuracy: 1}},
		{"healthy training row", map[string]any{"age": 40, "chol": 180}, Prediction{Prediction: 0, Accuracy: 1}},
		{"sick training row", map[string]any{"age": 60, "chol": 250}, Prediction{Prediction: 1, Accuracy: 1}},
		{"held out row", map[string]any{"age": 45, "chol": 190}, Prediction{Prediction: 0, Accuracy: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Predict(tt.features)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	forest := s.Models()[2].Classifier
	proba, err := forest.PredictProba(mat.NewDense(3, 2, []float64{50, 200, 40, 180, 60, 250}))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.19, 0.81}, mat.Row(nil, 0, proba), 1e-9)
	assert.InDeltaSlice(t, []float64{0.64, 0.36}, mat.Row(nil, 1, proba), 1e-9)
	assert.InDeltaSlice(t, []float64{0.04, 0.96}, mat.Row(nil, 2, proba), 1e-9)
}

func TestService_ServingModel(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Model = registry.KNN
	logger, _ := log.NewTestLogger(log.LevelWarn)
	s, err := NewFromDataset(context.Background(), readCSV(t, syntheticCSV(20)), registry.Default(), cfg, logger)
	require.NoError(t, err)

	assert.Equal(t, registry.KNN, s.ServingModel())
	p, err := s.Predict(map[string]any{"age": 65, "chol": 270, "thalach": 155})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Prediction)
	acc, _ := s.Accuracy(registry.KNN)
	assert.Equal(t, acc, p.Accuracy)
}

func TestService_UnknownServingModel(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Model = "SVM"
	logger, _ := log.NewTestLogger(log.LevelWarn)
	_, err := NewFromDataset(context.Background(), readCSV(t, tinyCSV), registry.Default(), cfg, logger)
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestService_BadRequests(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelWarn)
	s, err := NewFromDataset(context.Background(), readCSV(t, tinyCSV), registry.Default(), testConfig(), logger)
	require.NoError(t, err)

	for _, features := range []map[string]any{
		{"age": 50},
		{"age": 50, "chol": 200, "sex": 1},
		{"age": "fifty", "chol": 200},
		{},
	} {
		_, err := s.Predict(features)
		require.Error(t, err, "%v", features)
		assert.True(t, errors.IsBadInput(err), "%v", err)
	}
}

type panicky struct {
	*neighbors.KNeighborsClassifier
}

func (panicky) Predict(mat.Matrix) (mat.Matrix, error) { panic("corrupt model") }

func TestService_PredictRecoversPanic(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("panicky", func(registry.Params) (model.Classifier, error) {
		return panicky{neighbors.NewKNeighborsClassifier()}, nil
	}))
	cfg := testConfig()
	cfg.Server.Model = "panicky"
	logger, _ := log.NewTestLogger(log.LevelWarn)

	// 学習時のホールドアウト予測で panic する
	_, err := NewFromDataset(context.Background(), readCSV(t, tinyCSV), reg, cfg, logger)
	var pe *errors.PanicError
	require.True(t, errors.As(err, &pe))

	s := &Service{
		schema:  readCSV(t, tinyCSV).Schema,
		entries: []ModelEntry{{Name: "panicky", Classifier: panicky{neighbors.NewKNeighborsClassifier()}}},
		byName:  map[string]int{"panicky": 0},
	}
	_, err = s.Predict(map[string]any{"age": 50, "chol": 200})
	require.True(t, errors.As(err, &pe))
	assert.False(t, errors.IsBadInput(err))
}

func TestService_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger, _ := log.NewTestLogger(log.LevelWarn)
	_, err := NewFromDataset(ctx, readCSV(t, syntheticCSV(10)), registry.Default(), testConfig(), logger)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heart.csv")
	require.NoError(t, os.WriteFile(path, []byte(syntheticCSV(10)), 0o644))

	cfg := testConfig()
	cfg.Dataset.Path = path
	logger, _ := log.NewTestLogger(log.LevelInfo)
	s, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.Len(t, s.Models(), 3)
	assert.True(t, logger.ContainsField(log.DataPathKey, path))
	assert.True(t, logger.ContainsField(log.SamplesKey, 20.0))

	cfg.Dataset.Path = filepath.Join(t.TempDir(), "missing.csv")
	_, err = New(context.Background(), cfg, logger)
	assert.Error(t, err)
}

func TestCrossValidate(t *testing.T) {
	ds := readCSV(t, syntheticCSV(15))
	seed := uint64(3)
	scores, err := CrossValidate(context.Background(), ds, registry.Default(), registry.Params{Seed: &seed, NEstimators: 5}, 3)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	for _, s := range scores {
		assert.Len(t, s.Result.TestScores, 3)
		assert.GreaterOrEqual(t, s.Result.Mean(), 0.9, s.Name)
	}
}
