package log

// Standard attribute keys. Keys are hierarchical ("model.name",
// "data.samples") so log pipelines can filter on prefixes.

// Model and operation context.
const (
	ModelNameKey  = "model.name"
	ModelTypeKey  = "model.type"
	BundleNameKey = "model.bundle"
	BundleIDKey   = "model.bundle_id"
	OperationKey  = "ml.operation"
	ComponentKey  = "ml.component"
	PhaseKey      = "ml.phase"
	SectionKey    = "explain.section"
)

// Data shape and characteristics.
const (
	DatasetKey  = "data.dataset"
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ColumnKey   = "data.column"
	ColumnsKey  = "data.columns"
	TargetKey   = "data.target"
	MissingKey  = "data.missing"
	ImputedKey  = "data.imputed"
	PathKey     = "fs.path"
)

// Performance and metrics.
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	LossKey       = "metrics.loss"
	IterationKey  = "training.iteration"
	RandomSeedKey = "config.random_seed"
	PredsKey      = "preds.count"
)

// HTTP request context.
const (
	HTTPMethodKey = "http.method"
	HTTPPathKey   = "http.path"
	HTTPStatusKey = "http.status"
	RequestIDKey  = "http.request_id"
)

// Error context.
const (
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationClean     = "clean"
	OperationExplain   = "explain"
	OperationSave      = "save"
	OperationLoad      = "load"

	PhaseTraining      = "training"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
	PhaseExplanation   = "explanation"
)
