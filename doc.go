// Package heartpredict trains heart-disease classifiers on a tabular dataset at startup
// and serves predictions over HTTP.
//
// On start the service reads a CSV file whose "target" column is the label, holds out
// 20% of the rows, fits three classifiers on the rest and keeps each model's holdout
// accuracy. POST /predict then answers with the random forest's prediction and that
// accuracy.
//
// # Quick Start
//
//	heartpredict serve --dataset ./heart.csv
//
//	curl -X POST localhost:5000/predict \
//	    -H 'Content-Type: application/json' \
//	    -d '{"age": 52, "sex": 1, "cp": 0, "trestbps": 125, "chol": 212, "fbs": 0,
//	         "restecg": 1, "thalach": 168, "exang": 0, "oldpeak": 1.0, "slope": 2,
//	         "ca": 2, "thal": 3}'
//	{"prediction": 0, "accuracy": 0.8360655737704918}
//
// The evaluate command trains the same models once and prints their scores:
//
//	heartpredict evaluate --dataset ./heart.csv --seed 42 --cv 5 --plot accuracy.png
//
// The openapi command prints a Swagger 2.0 description of the HTTP API.
//
// # Packages
//
//   - dataset: CSV loading and the feature schema requests are checked against
//   - model_selection: holdout split and k-fold cross-validation
//   - sklearn/linear_model, sklearn/neighbors, sklearn/tree, sklearn/ensemble: classifiers
//   - sklearn/pipeline, preprocessing: scaling in front of logistic regression
//   - metrics: accuracy, precision, recall, F1
//   - registry: classifiers by name
//   - service: training at startup and the read-only prediction state
//   - server: the go-restful HTTP API
//   - config: viper configuration (file, HEARTPREDICT_* environment, flags)
//   - report: result table and accuracy chart
//   - core/model, core/parallel: shared interfaces and worker helpers
//   - pkg/errors, pkg/log: error types and zerolog-backed structured logging
//
// # Configuration
//
// Every setting has a default and can be overridden by a config file, an environment
// variable or a flag, in that order of priority:
//
//	training:
//	  test_size: 0.2
//	  seed: 42          # omit for a fresh split on every start
//	  n_estimators: 100
//	server:
//	  port: 5000
//	  model: Random Forest Classifier
package heartpredict
