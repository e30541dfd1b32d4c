// Package inference applies a trained bundle to new data: predictions,
// and the explanation report (importance, SHAP, correlation, performance).
package inference

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/bundle"
	"github.com/YuminosukeSato/insightml/dataset"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/pkg/log"
	"github.com/YuminosukeSato/insightml/preprocessing"
)

// PredictionColumn is the name of the label column added by Prediction.Frame.
const PredictionColumn = "prediction"

// Prediction is the result of Predict.
type Prediction struct {
	// Labels holds one decoded target value per row.
	Labels []string
	// Codes holds the raw class codes returned by the model.
	Codes []float64
	// Probabilities is (rows, classes), columns in ClassNames order.
	Probabilities *mat.Dense
	ClassNames    []string
	// Cleaned is the processed input the model saw, before scaling.
	Cleaned  *dataset.Frame
	Cleaning *preprocessing.Report
}

// Predict cleans raw the way the bundle's training data was cleaned and
// returns one label per row. Every feature the data lacks is named in the
// returned MissingFeatureError.
func Predict(b *bundle.Bundle, raw *dataset.Frame) (*Prediction, error) {
	if b == nil || b.Model == nil {
		return nil, errors.NewValueError("inference.Predict", "nil bundle")
	}
	if raw == nil || raw.Empty() {
		return nil, errors.Wrap(errors.ErrEmptyData, "predict")
	}
	if absent := b.MissingFeatures(raw); len(absent) > 0 {
		return nil, errors.NewMissingFeatureError("inference.Predict", absent)
	}

	cleaned, err := b.Cleaner().Clean(raw)
	if err != nil {
		return nil, err
	}
	X, err := b.FeatureMatrix(cleaned.Frame)
	if err != nil {
		return nil, err
	}

	proba, err := b.Model.PredictProba(X)
	if err != nil {
		return nil, errors.Wrap(err, "predict probabilities")
	}
	pred, err := b.Model.Predict(X)
	if err != nil {
		return nil, errors.Wrap(err, "predict")
	}

	n, _ := X.Dims()
	p := &Prediction{
		Labels:        make([]string, n),
		Codes:         make([]float64, n),
		Probabilities: mat.DenseCopyOf(proba),
		ClassNames:    b.ClassNames(),
		Cleaned:       cleaned.Frame,
		Cleaning:      cleaned.Report,
	}
	for i := 0; i < n; i++ {
		p.Codes[i] = pred.At(i, 0)
		p.Labels[i] = b.DecodeLabel(p.Codes[i])
	}

	log.GetLoggerWithName("inference").Info("predicted",
		log.OperationKey, log.OperationPredict,
		log.BundleNameKey, b.Name,
		log.PredsKey, n,
	)
	return p, nil
}

// Frame returns the cleaned input with the predicted label and one
// probability column per class appended, ready for export.
func (p *Prediction) Frame() (*dataset.Frame, error) {
	out := p.Cleaned.Copy()
	name := PredictionColumn
	for out.Has(name) {
		name = "_" + name
	}
	if err := out.AddColumn(dataset.NewStringColumn(name, append([]string(nil), p.Labels...))); err != nil {
		return nil, err
	}
	n, _ := p.Probabilities.Dims()
	for j, class := range p.ClassNames {
		col := "proba_" + class
		if out.Has(col) {
			continue
		}
		if err := out.AddColumn(dataset.NewValueColumn(col, dataset.KindNumeric, mat.Col(make([]float64, n), j, p.Probabilities))); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Counts returns how many rows received each label.
func (p *Prediction) Counts() map[string]int {
	out := make(map[string]int, len(p.ClassNames))
	for _, l := range p.Labels {
		out[l]++
	}
	return out
}
