package inference

import (
	"context"
	"runtime"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/bundle"
	"github.com/YuminosukeSato/insightml/core/model"
	"github.com/YuminosukeSato/insightml/dataset"
	"github.com/YuminosukeSato/insightml/metrics"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/pkg/log"
	"github.com/YuminosukeSato/insightml/preprocessing"
)

// Section names.
const (
	SectionImportance  = "importance"
	SectionSHAP        = "shap"
	SectionCorrelation = "correlation"
	SectionPerformance = "performance"
)

// ReasonNoImportances is the reason given when the model has no importances.
const ReasonNoImportances = "model does not expose feature importances"

// Options control the cost of the SHAP section.
type Options struct {
	// MaxRows caps how many rows are explained (the first MaxRows rows).
	MaxRows int
	// BackgroundSize is the number of rows sampled as the reference set.
	BackgroundSize int
	// Permutations is the number of sampled feature orders per row.
	Permutations int
	Seed         int64
	// Workers bounds SHAP parallelism. <= 0 uses every CPU.
	Workers int
}

// DefaultOptions returns the defaults used by the CLI and dashboard.
func DefaultOptions() Options {
	return Options{
		MaxRows:        100,
		BackgroundSize: 25,
		Permutations:   4,
		Seed:           0,
		Workers:        runtime.NumCPU(),
	}
}

// Section is the status of one part of a Report.
type Section struct {
	Name      string
	Available bool
	Reason    string
}

// ImportanceSection holds model feature importances, sorted descending.
type ImportanceSection struct {
	Section
	Features []string
	Scores   []float64
}

// SHAPSection holds Shapley values for the explained rows.
type SHAPSection struct {
	Section
	Values *SHAPValues
}

// CorrelationSection holds the Pearson matrix over the features and, when
// present, the encoded target.
type CorrelationSection struct {
	Section
	Columns []string
	Matrix  *mat.SymDense
}

// PerformanceSection holds classification metrics against the target column.
type PerformanceSection struct {
	Section
	Report    *metrics.ClassificationReport
	Text      string
	Confusion *mat.Dense
	// Labels names the rows and columns of Confusion.
	Labels  []string
	Samples int
	AUC     float64
	HasAUC  bool
}

// Report is the explanation of a bundle on one dataset. Every section is
// either available or carries the reason it is not.
type Report struct {
	Bundle    string
	ModelType string
	Params    map[string]interface{}
	Rows      int
	Columns   int
	Features  []string
	Cleaning  *preprocessing.Report

	Importance  ImportanceSection
	SHAP        SHAPSection
	Correlation CorrelationSection
	Performance PerformanceSection
}

// Sections returns the status of every section in display order.
func (r *Report) Sections() []Section {
	return []Section{r.Importance.Section, r.SHAP.Section, r.Correlation.Section, r.Performance.Section}
}

// Explain computes every section it can. It never fails as a whole: a
// section that errors or panics is marked unavailable and reported through
// errors.Warn as an ExplanationUnavailableWarning.
func Explain(ctx context.Context, b *bundle.Bundle, raw *dataset.Frame, opts Options) *Report {
	start := time.Now()
	r := &Report{
		Importance:  ImportanceSection{Section: Section{Name: SectionImportance}},
		SHAP:        SHAPSection{Section: Section{Name: SectionSHAP}},
		Correlation: CorrelationSection{Section: Section{Name: SectionCorrelation}},
		Performance: PerformanceSection{Section: Section{Name: SectionPerformance}},
	}
	data := []*Section{&r.SHAP.Section, &r.Correlation.Section, &r.Performance.Section}

	if b == nil || b.Model == nil {
		err := errors.NewValueError("inference.Explain", "nil bundle")
		unavailable(&r.Importance.Section, err)
		for _, s := range data {
			unavailable(s, err)
		}
		return r
	}
	r.Bundle, r.ModelType, r.Params = b.Name, b.ModelType, b.Params
	r.Features = append([]string(nil), b.FeatureNames...)
	r.Rows, r.Columns = raw.NumRows(), raw.NumCols()

	logger := log.GetLoggerWithName("inference").With(
		log.OperationKey, log.OperationExplain,
		log.BundleNameKey, b.Name,
	)

	run(&r.Importance.Section, func() error { return r.importance(b) })

	cleaned, X, err := prepare(b, raw)
	if err != nil {
		for _, s := range data {
			unavailable(s, err)
		}
		logger.Warn("explanation data unusable", err)
		return r
	}
	r.Cleaning = cleaned.Report

	run(&r.SHAP.Section, func() error {
		values, err := sampleSHAP(ctx, b.Model, X, opts)
		if err != nil {
			return err
		}
		rows, d := values.Values.Dims()
		unscaled, err := cleaned.Frame.Matrix(b.FeatureNames)
		if err != nil {
			return err
		}
		values.Data = mat.DenseCopyOf(unscaled.Slice(0, rows, 0, d))
		values.Features = r.Features
		r.SHAP.Values = values
		return nil
	})
	run(&r.Correlation.Section, func() error { return r.correlation(b, cleaned.Frame) })
	run(&r.Performance.Section, func() error { return r.performance(b, cleaned.Frame, X) })

	available := 0
	for _, s := range r.Sections() {
		if s.Available {
			available++
		}
	}
	logger.Info("explanation computed",
		log.SamplesKey, r.Rows,
		log.FeaturesKey, len(r.Features),
		"sections_available", available,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return r
}

func prepare(b *bundle.Bundle, raw *dataset.Frame) (*preprocessing.Result, *mat.Dense, error) {
	if raw == nil || raw.Empty() {
		return nil, nil, errors.Wrap(errors.ErrEmptyData, "explain")
	}
	if absent := b.MissingFeatures(raw); len(absent) > 0 {
		return nil, nil, errors.NewMissingFeatureError("inference.Explain", absent)
	}
	cleaned, err := b.Cleaner().Clean(raw)
	if err != nil {
		return nil, nil, err
	}
	X, err := b.FeatureMatrix(cleaned.Frame)
	if err != nil {
		return nil, nil, err
	}
	return cleaned, X, nil
}

func run(s *Section, fn func() error) {
	if err := errors.SafeExecute("explain."+s.Name, fn); err != nil {
		unavailable(s, err)
		return
	}
	s.Available = true
}

func unavailable(s *Section, err error) {
	w := errors.NewExplanationUnavailableWarning(s.Name, err)
	s.Available, s.Reason = false, w.Reason
	errors.Warn(w)
}

func (r *Report) importance(b *bundle.Bundle) error {
	fi, ok := b.Model.(model.FeatureImporter)
	if !ok {
		return errors.New(ReasonNoImportances)
	}
	scores := fi.GetFeatureImportances()
	if len(scores) != len(b.FeatureNames) {
		return errors.NewDimensionError("inference.importance", len(b.FeatureNames), len(scores), 0)
	}
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, c int) bool { return scores[idx[a]] > scores[idx[c]] })
	for _, i := range idx {
		r.Importance.Features = append(r.Importance.Features, b.FeatureNames[i])
		r.Importance.Scores = append(r.Importance.Scores, scores[i])
	}
	return nil
}

func (r *Report) correlation(b *bundle.Bundle, f *dataset.Frame) error {
	names := append([]string(nil), b.FeatureNames...)
	columns := make([][]float64, 0, len(names)+1)
	for _, name := range names {
		c, _ := f.Column(name)
		if !c.Kind.IsValued() {
			return errors.NewValueError("inference.correlation", "column "+name+" is "+c.Kind.String())
		}
		columns = append(columns, c.Values)
	}
	if tc, ok := f.Column(b.TargetColumn); ok {
		var codes []float64
		if tc.Kind.IsValued() {
			codes = tc.Values
		} else {
			codes, _ = b.EncodeTarget(tc.Strings)
		}
		names = append(names, b.TargetColumn)
		columns = append(columns, codes)
	}
	m, err := metrics.CorrelationMatrix(columns)
	if err != nil {
		return err
	}
	r.Correlation.Columns, r.Correlation.Matrix = names, m
	return nil
}

// performance compares decoded predictions with the target as strings, so
// target values unseen at training count as their own (never predicted) class.
func (r *Report) performance(b *bundle.Bundle, f *dataset.Frame, X *mat.Dense) error {
	tc, ok := f.Column(b.TargetColumn)
	if !ok {
		return errors.NewColumnNotFoundError(b.TargetColumn, "target")
	}
	pred, err := b.Model.Predict(X)
	if err != nil {
		return err
	}

	names := b.ClassNames()
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	labelOf := func(s string) int {
		i, ok := index[s]
		if !ok {
			i = len(names)
			names = append(names, s)
			index[s] = i
		}
		return i
	}

	var keep []int
	var yTrue, yPred []int
	for i := 0; i < tc.Len(); i++ {
		raw := tc.Cell(i)
		if dataset.IsMissing(raw) {
			continue
		}
		keep = append(keep, i)
		yTrue = append(yTrue, labelOf(preprocessing.Canonical(raw)))
		yPred = append(yPred, labelOf(b.DecodeLabel(pred.At(i, 0))))
	}
	if len(keep) == 0 {
		return errors.NewValueError("inference.performance", "target column "+b.TargetColumn+" has no values")
	}

	labels := metrics.Labels(yTrue, yPred)
	display := make([]string, len(labels))
	for i, l := range labels {
		display[i] = names[l]
	}
	report, err := metrics.NewClassificationReport(yTrue, yPred, labels, display)
	if err != nil {
		return err
	}
	p := &r.Performance
	p.Report, p.Text, p.Confusion, p.Labels, p.Samples = report, report.String(), report.Confusion, display, len(keep)

	if len(b.Model.Classes()) != 2 {
		return nil
	}
	proba, err := b.Model.PredictProba(X)
	if err != nil {
		return err
	}
	var bin, score []float64
	seen := [2]bool{}
	for k, i := range keep {
		if yTrue[k] > 1 {
			continue
		}
		seen[yTrue[k]] = true
		bin = append(bin, float64(yTrue[k]))
		score = append(score, proba.At(i, 1))
	}
	if !seen[0] || !seen[1] {
		return nil
	}
	auc, err := metrics.AUC(mat.NewVecDense(len(bin), bin), mat.NewVecDense(len(score), score))
	if err != nil {
		return err
	}
	p.AUC, p.HasAUC = auc, true
	return nil
}
