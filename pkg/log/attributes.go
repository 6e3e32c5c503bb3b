// Standard attribute keys for heartpredict logs.
//
// The keys follow a hierarchical naming convention ("model.name",
// "data.samples") so that logs can be filtered by category.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the classifier, e.g. "Random Forest Classifier".
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// DataPathKey is the location the dataset was read from.
	DataPathKey = "data.path"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records holdout accuracy in [0.0, 1.0].
	AccuracyKey = "metrics.accuracy"

	// IterationKey records the current iteration number during iterative processes.
	IterationKey = "training.iteration"
)

// HTTP request context
const (
	MethodKey     = "http.method"
	PathKey       = "http.path"
	StatusKey     = "http.status"
	RemoteAddrKey = "http.remote_addr"
)

// Configuration
const (
	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// AddrKey is the listen address of the HTTP server.
	AddrKey = "config.addr"
)

// Standard attribute values.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationScore   = "score"
	OperationSplit   = "split"
	OperationLoad    = "load"
)
