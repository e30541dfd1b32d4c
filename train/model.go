// Package train fits classifiers on cleaned datasets and packages them as bundles.
package train

import (
	"github.com/YuminosukeSato/insightml/bundle"
	"github.com/YuminosukeSato/insightml/core/model"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/sklearn/ensemble"
	"github.com/YuminosukeSato/insightml/sklearn/linear_model"
	"github.com/YuminosukeSato/insightml/sklearn/tree"
)

// NewModel constructs an unfitted classifier of the given type. seed becomes
// the model's random_state; params override it and any other default.
func NewModel(modelType string, params map[string]interface{}, seed int64) (model.Classifier, error) {
	var m interface {
		model.Classifier
		model.ParameterSetter
	}
	switch modelType {
	case bundle.TypeDecisionTree:
		m = tree.NewDecisionTreeClassifier(tree.WithRandomState(seed))
	case bundle.TypeRandomForest:
		m = ensemble.NewRandomForestClassifier(ensemble.WithRandomState(seed))
	case bundle.TypeLogisticRegression:
		m = linear_model.NewLogisticRegression(linear_model.WithLRRandomState(seed), linear_model.WithLRMaxIter(1000))
	default:
		return nil, errors.NewValidationError("model", "must be one of decision_tree, random_forest, logistic_regression", modelType)
	}
	if len(params) > 0 {
		if err := m.SetParams(params); err != nil {
			return nil, errors.Wrapf(err, "%s params", modelType)
		}
	}
	return m, nil
}

// NeedsScaling reports whether a model type is trained on standardised features.
func NeedsScaling(modelType string) bool {
	return modelType == bundle.TypeLogisticRegression
}
