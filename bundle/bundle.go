// Package bundle persists trained models together with everything needed to
// prepare new data for them.
package bundle

import (
	"encoding/gob"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/insightml/core/model"
	"github.com/YuminosukeSato/insightml/dataset"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/preprocessing"
	"github.com/YuminosukeSato/insightml/sklearn/ensemble"
	"github.com/YuminosukeSato/insightml/sklearn/linear_model"
	"github.com/YuminosukeSato/insightml/sklearn/tree"
)

// Extension is the file extension of saved bundles.
const Extension = ".bundle"

// Model types a bundle can carry.
const (
	TypeDecisionTree       = "decision_tree"
	TypeRandomForest       = "random_forest"
	TypeLogisticRegression = "logistic_regression"
)

// ModelTypes lists the supported model types in display order.
func ModelTypes() []string {
	return []string{TypeDecisionTree, TypeRandomForest, TypeLogisticRegression}
}

func init() {
	gob.Register(&tree.DecisionTreeClassifier{})
	gob.Register(&ensemble.RandomForestClassifier{})
	gob.Register(&linear_model.LogisticRegression{})
}

// Metrics are holdout metrics recorded at training time.
type Metrics struct {
	Accuracy     float64
	AUC          float64
	HasAUC       bool
	LogLoss      float64 // binary cross-entropy, set together with AUC
	TrainSamples int
	TestSamples  int
	Report       string
}

// Bundle is a trained model plus the schema and encodings it was trained with.
type Bundle struct {
	ID                  string
	Name                string
	Model               model.Classifier
	FeatureNames        []string
	TargetColumn        string
	CategoricalFeatures []string
	SlashColumns        []string
	Schema              map[string]dataset.Kind
	NumericThreshold    float64
	Encoders            map[string]*preprocessing.LabelEncoder
	TargetEncoder       *preprocessing.LabelEncoder
	Scaler              *preprocessing.StandardScaler
	ModelType           string
	Params              map[string]interface{}
	Dataset             string
	TrainMetrics        Metrics
	CreatedAt           time.Time
}

// New returns a bundle with a fresh ID and creation time.
func New(name string, m model.Classifier, features []string, target string) *Bundle {
	return &Bundle{
		ID:           uuid.NewString(),
		Name:         name,
		Model:        m,
		FeatureNames: append([]string(nil), features...),
		TargetColumn: target,
		Encoders:     make(map[string]*preprocessing.LabelEncoder),
		CreatedAt:    time.Now().UTC(),
	}
}

// Validate checks the invariants every saved or loaded bundle satisfies.
func (b *Bundle) Validate() error {
	if b == nil {
		return errors.NewValueError("bundle.Validate", "nil bundle")
	}
	if err := ValidateName(b.Name); err != nil {
		return err
	}
	if b.Model == nil {
		return errors.NewValidationError("model", "must not be nil", nil)
	}
	if len(b.FeatureNames) == 0 {
		return errors.NewValidationError("feature_names", "must contain at least one feature", b.FeatureNames)
	}
	if strings.TrimSpace(b.TargetColumn) == "" {
		return errors.NewValidationError("target_column", "must be set", b.TargetColumn)
	}
	features := make(map[string]bool, len(b.FeatureNames))
	for _, f := range b.FeatureNames {
		if features[f] {
			return errors.NewValidationError("feature_names", "duplicate feature", f)
		}
		features[f] = true
	}
	if features[b.TargetColumn] {
		return errors.NewValidationError("target_column", "must not be a feature", b.TargetColumn)
	}
	for _, c := range b.CategoricalFeatures {
		if !features[c] {
			return errors.NewValidationError("categorical_features", "must be a subset of feature_names", c)
		}
	}
	if n := b.Model.NFeatures(); n != 0 && n != len(b.FeatureNames) {
		return errors.NewDimensionError("bundle.Validate", len(b.FeatureNames), n, 1)
	}
	return nil
}

// ValidateName rejects names that are empty or would escape the store directory.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewValidationError("name", "must not be empty", name)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return errors.NewValidationError("name", "must be a plain file name", name)
	}
	return nil
}

// ClassNames returns the display names of the model's classes, decoded
// through the target encoder when there is one.
func (b *Bundle) ClassNames() []string {
	classes := b.Model.Classes()
	names := make([]string, len(classes))
	for i, c := range classes {
		names[i] = b.DecodeLabel(float64(c))
	}
	return names
}

// DecodeLabel maps a predicted class code back to the original target value.
func (b *Bundle) DecodeLabel(code float64) string {
	if b.TargetEncoder != nil {
		if s, ok := b.TargetEncoder.Inverse(code); ok {
			return s
		}
	}
	return formatCode(code)
}
