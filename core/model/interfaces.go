// Package model defines the contracts shared by every classifier and
// transformer in InsightML, plus the fitted-state bookkeeping and gob helpers
// they build on.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。y は (n, 1) のクラスコード。
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict returns an (n, 1) matrix of predicted class codes.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Classifier is the model contract the trainer, predictor and explainer rely
// on. PredictProba columns follow the order of Classes.
type Classifier interface {
	Fitter
	Predictor

	// PredictProba returns an (n, len(Classes())) matrix of class probabilities.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the sorted class codes seen during fitting.
	Classes() []int

	// Score returns mean accuracy on the given data.
	Score(X, y mat.Matrix) float64

	// NFeatures returns the number of features seen during fitting.
	NFeatures() int
}

// FeatureImporter is implemented by models exposing impurity-based feature
// importances. The slice is aligned with the training columns and sums to 1
// when any split was made.
type FeatureImporter interface {
	GetFeatureImportances() []float64
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

// Transformer はデータ変換のインターフェース
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}
