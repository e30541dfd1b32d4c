package train

import (
	"context"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
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

// Config describes one training run.
type Config struct {
	// Name of the resulting bundle. Defaults to "<dataset>_<model>".
	Name string
	// Dataset is recorded in the bundle for display.
	Dataset   string
	Target    string
	ModelType string
	// Features to train on. Empty means every numeric, boolean or
	// categorical column except the target.
	Features         []string
	Categorical      []string
	SlashColumns     []string
	Schema           map[string]dataset.Kind
	NumericThreshold float64
	// TestSize is the holdout fraction in [0, 1).
	TestSize float64
	Seed     int64
	Params   map[string]interface{}
}

// DefaultConfig returns the defaults used by the CLI and dashboard.
func DefaultConfig() Config {
	return Config{
		ModelType:        bundle.TypeRandomForest,
		SlashColumns:     preprocessing.DefaultSlashColumns(),
		NumericThreshold: preprocessing.DefaultNumericThreshold,
		TestSize:         0.2,
		Seed:             42,
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Target) == "" {
		return errors.NewValidationError("target", "must be set", c.Target)
	}
	if c.TestSize < 0 || c.TestSize >= 1 {
		return errors.NewValidationError("test_size", "must be in [0, 1)", c.TestSize)
	}
	for _, f := range c.Features {
		if f == c.Target {
			return errors.NewValidationError("features", "must not include the target", f)
		}
	}
	return nil
}

func (c *Config) bundleName() string {
	if c.Name != "" {
		return c.Name
	}
	base := strings.TrimSuffix(filepath.Base(c.Dataset), filepath.Ext(c.Dataset))
	if base == "" || base == "." {
		return c.ModelType
	}
	return base + "_" + c.ModelType
}

// Result is the outcome of Train.
type Result struct {
	Bundle      *bundle.Bundle
	Cleaning    *preprocessing.Report
	Holdout     *metrics.ClassificationReport
	DroppedRows int
	Duration    time.Duration
}

// Train cleans raw, drops rows without a target, splits a shuffled holdout,
// fits the configured model and returns a bundle carrying holdout metrics.
func Train(ctx context.Context, raw *dataset.Frame, cfg Config) (*Result, error) {
	start := time.Now()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m, err := NewModel(cfg.ModelType, cfg.Params, cfg.Seed)
	if err != nil {
		return nil, err
	}
	if raw == nil || raw.Empty() {
		return nil, errors.Wrap(errors.ErrEmptyData, "train")
	}
	targetCol, ok := raw.Column(cfg.Target)
	if !ok {
		return nil, errors.NewColumnNotFoundError(cfg.Target, "target")
	}

	logger := log.GetLoggerWithName("train").With(
		log.OperationKey, log.OperationFit,
		log.ModelTypeKey, cfg.ModelType,
		log.TargetKey, cfg.Target,
	)

	var keep []int
	for i, v := range targetCol.Strings {
		if !dataset.IsMissing(v) {
			keep = append(keep, i)
		}
	}
	if len(keep) < 2 {
		return nil, errors.NewValueError("train.Train", "need at least 2 rows with a target value")
	}
	dropped := raw.NumRows() - len(keep)
	if dropped > 0 {
		logger.Warn("rows without target dropped", log.MissingKey, dropped)
	}
	frame := raw.Select(keep)

	opts := []preprocessing.Option{
		preprocessing.WithSlashColumns(cfg.SlashColumns...),
		preprocessing.WithCategorical(cfg.Categorical...),
		preprocessing.WithTarget(cfg.Target),
		preprocessing.WithRequireColumns(),
	}
	if len(cfg.Schema) > 0 {
		opts = append(opts, preprocessing.WithSchema(cfg.Schema))
	}
	if cfg.NumericThreshold > 0 {
		opts = append(opts, preprocessing.WithNumericThreshold(cfg.NumericThreshold))
	}
	cleaned, err := preprocessing.NewCleaner(opts...).Clean(frame)
	if err != nil {
		return nil, err
	}

	features := cfg.Features
	if len(features) == 0 {
		features = modelColumns(cleaned.Frame, cfg.Target)
	}
	if len(features) == 0 {
		return nil, errors.NewValueError("train.Train", "no numeric, boolean or categorical feature columns")
	}

	b := bundle.New(cfg.bundleName(), m, features, cfg.Target)
	b.ModelType = cfg.ModelType
	b.Dataset = cfg.Dataset
	b.SlashColumns = append([]string(nil), cfg.SlashColumns...)
	b.NumericThreshold = cfg.NumericThreshold
	b.Schema = make(map[string]dataset.Kind)
	for _, f := range features {
		if enc, ok := cleaned.Encoders[f]; ok {
			b.CategoricalFeatures = append(b.CategoricalFeatures, f)
			b.Encoders[f] = enc
			continue
		}
		if col, ok := cleaned.Frame.Column(f); ok && col.Kind.IsValued() {
			b.Schema[f] = col.Kind
		}
	}

	X, err := b.FeatureMatrix(cleaned.Frame)
	if err != nil {
		return nil, err
	}
	tc, _ := cleaned.Frame.Column(cfg.Target)
	b.TargetEncoder = preprocessing.NewLabelEncoder(cfg.Target)
	codes := b.TargetEncoder.FitTransform(tc.Strings)
	if len(b.TargetEncoder.Classes) < 2 {
		return nil, errors.NewValueError("train.Train", "target has a single class: "+strings.Join(b.TargetEncoder.Classes, ""))
	}

	trainIdx, testIdx := split(len(codes), cfg.TestSize, cfg.Seed)
	Xtr, ytr := rows(X, codes, trainIdx)

	if NeedsScaling(cfg.ModelType) {
		b.Scaler = preprocessing.NewStandardScalerDefault()
		if err := b.Scaler.Fit(Xtr); err != nil {
			return nil, err
		}
		X, err = b.FeatureMatrix(cleaned.Frame)
		if err != nil {
			return nil, err
		}
		Xtr, ytr = rows(X, codes, trainIdx)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.Fit(Xtr, ytr); err != nil {
		return nil, errors.Wrapf(err, "fit %s", cfg.ModelType)
	}
	if pg, ok := m.(model.ParameterGetter); ok {
		b.Params = pg.GetParams()
	}

	evalIdx := testIdx
	if len(evalIdx) == 0 {
		evalIdx = trainIdx
	}
	Xte, yte := rows(X, codes, evalIdx)
	holdout, err := evaluate(b, Xte, yte)
	if err != nil {
		return nil, err
	}
	b.TrainMetrics.TrainSamples = len(trainIdx)
	b.TrainMetrics.TestSamples = len(testIdx)

	res := &Result{
		Bundle:      b,
		Cleaning:    cleaned.Report,
		Holdout:     holdout,
		DroppedRows: dropped,
		Duration:    time.Since(start),
	}
	logger.Info("model trained",
		log.BundleNameKey, b.Name,
		log.SamplesKey, len(codes),
		log.FeaturesKey, len(features),
		log.AccuracyKey, b.TrainMetrics.Accuracy,
		log.DurationMsKey, res.Duration.Milliseconds(),
	)
	return res, nil
}

// modelColumns returns the valued columns other than target, in frame order.
func modelColumns(f *dataset.Frame, target string) []string {
	var out []string
	for _, c := range f.Columns() {
		if c.Name != target && c.Kind.IsValued() {
			out = append(out, c.Name)
		}
	}
	return out
}

// split shuffles [0, n) with seed and returns the train and test indices,
// each sorted. The training side always keeps at least one row.
func split(n int, testSize float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(math.Round(float64(n) * testSize))
	if nTest >= n {
		nTest = n - 1
	}
	test = append([]int(nil), perm[:nTest]...)
	train = append([]int(nil), perm[nTest:]...)
	sort.Ints(test)
	sort.Ints(train)
	return train, test
}

func rows(X *mat.Dense, y []float64, idx []int) (*mat.Dense, *mat.Dense) {
	_, p := X.Dims()
	Xs := mat.NewDense(len(idx), p, nil)
	ys := mat.NewDense(len(idx), 1, nil)
	for i, r := range idx {
		Xs.SetRow(i, X.RawRowView(r))
		ys.Set(i, 0, y[r])
	}
	return Xs, ys
}

// evaluate records holdout accuracy, AUC and log loss for binary targets and the
// classification report on b.TrainMetrics.
func evaluate(b *bundle.Bundle, X, y *mat.Dense) (*metrics.ClassificationReport, error) {
	pred, err := b.Model.Predict(X)
	if err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	yTrue := make([]int, n)
	yPred := make([]int, n)
	for i := 0; i < n; i++ {
		yTrue[i] = int(y.At(i, 0))
		yPred[i] = int(pred.At(i, 0))
	}
	acc, err := metrics.Accuracy(mat.NewVecDense(n, mat.Col(nil, 0, y)), mat.NewVecDense(n, mat.Col(nil, 0, pred)))
	if err != nil {
		return nil, err
	}
	b.TrainMetrics.Accuracy = acc

	classes := b.Model.Classes()
	if len(classes) == 2 && hasBoth(yTrue, classes) {
		proba, err := b.Model.PredictProba(X)
		if err != nil {
			return nil, err
		}
		pos := make([]float64, n)
		bin := make([]float64, n)
		for i := 0; i < n; i++ {
			pos[i] = proba.At(i, 1)
			if yTrue[i] == classes[1] {
				bin[i] = 1
			}
		}
		yBin, yPos := mat.NewVecDense(n, bin), mat.NewVecDense(n, pos)
		auc, err := metrics.AUC(yBin, yPos)
		if err != nil {
			return nil, err
		}
		ll, err := metrics.BinaryLogLoss(yBin, yPos)
		if err != nil {
			return nil, err
		}
		b.TrainMetrics.AUC, b.TrainMetrics.HasAUC = auc, true
		b.TrainMetrics.LogLoss = ll
	}

	labels := metrics.Labels(yTrue, yPred)
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = b.DecodeLabel(float64(l))
	}
	report, err := metrics.NewClassificationReport(yTrue, yPred, labels, names)
	if err != nil {
		return nil, err
	}
	b.TrainMetrics.Report = report.String()
	return report, nil
}

func hasBoth(y []int, classes []int) bool {
	seen0, seen1 := false, false
	for _, v := range y {
		seen0 = seen0 || v == classes[0]
		seen1 = seen1 || v == classes[1]
	}
	return seen0 && seen1
}
