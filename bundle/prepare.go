package bundle

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/dataset"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/preprocessing"
)

// Cleaner returns a cleaner that prepares new data the way the training data
// was prepared: same slash columns, declared kinds and threshold, and the
// persisted label encoders.
func (b *Bundle) Cleaner() *preprocessing.Cleaner {
	opts := []preprocessing.Option{
		preprocessing.WithSlashColumns(b.SlashColumns...),
		preprocessing.WithCategorical(b.CategoricalFeatures...),
		preprocessing.WithEncoders(b.Encoders),
		preprocessing.WithTarget(b.TargetColumn),
	}
	if len(b.Schema) > 0 {
		opts = append(opts, preprocessing.WithSchema(b.Schema))
	}
	if b.NumericThreshold > 0 {
		opts = append(opts, preprocessing.WithNumericThreshold(b.NumericThreshold))
	}
	return preprocessing.NewCleaner(opts...)
}

// MissingFeatures returns, in bundle order, the features f lacks.
func (b *Bundle) MissingFeatures(f *dataset.Frame) []string {
	return f.Missing(b.FeatureNames)
}

// FeatureMatrix builds the model input from a cleaned frame, applying the
// bundle scaler when there is one. Every absent feature is named in the
// returned MissingFeatureError.
func (b *Bundle) FeatureMatrix(f *dataset.Frame) (*mat.Dense, error) {
	if absent := b.MissingFeatures(f); len(absent) > 0 {
		return nil, errors.NewMissingFeatureError("bundle.FeatureMatrix", absent)
	}
	X, err := f.Matrix(b.FeatureNames)
	if err != nil {
		return nil, err
	}
	if b.Scaler == nil {
		return X, nil
	}
	scaled, err := b.Scaler.Transform(X)
	if err != nil {
		return nil, errors.Wrap(err, "scale features")
	}
	return mat.DenseCopyOf(scaled), nil
}

// EncodeTarget maps raw target values to class codes with the target
// encoder. Values unseen at training are NaN.
func (b *Bundle) EncodeTarget(values []string) (codes []float64, unseen []string) {
	if b.TargetEncoder == nil {
		codes = make([]float64, len(values))
		for i, v := range values {
			p := preprocessing.ParseNumber(v)
			codes[i] = p.Value
			if !p.OK {
				unseen = append(unseen, v)
			}
		}
		return codes, unseen
	}
	return b.TargetEncoder.Transform(values)
}
