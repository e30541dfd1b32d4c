// Package ensemble implements bagged tree ensembles.
package ensemble

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/core/model"
	"github.com/YuminosukeSato/insightml/core/parallel"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/sklearn/tree"
)

// 木の数がこれ以下なら予測は逐次実行する
const parallelTreeThreshold = 8

// RandomForestClassifier averages the class probabilities of decision trees
// fitted on bootstrap samples with random feature subsets.
type RandomForestClassifier struct {
	state *model.StateManager

	// Hyperparameters
	nEstimators     int
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string // "sqrt", "log2" or "all"
	bootstrap       bool
	randomState     int64
	nJobs           int

	// Fitted attributes
	trees               []*tree.DecisionTreeClassifier
	classes_            []int
	featureImportances_ []float64
}

// Option is a functional option for RandomForestClassifier.
type Option func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithMaxDepth limits the depth of every tree. -1 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the per-split feature subset rule: "sqrt", "log2" or "all".
func WithMaxFeatures(rule string) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = rule }
}

// WithBootstrap toggles bootstrap sampling.
func WithBootstrap(b bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = b }
}

// WithRandomState seeds bootstrap sampling and feature subsampling. Tree i
// uses seed+i, so results do not depend on scheduling.
func WithRandomState(seed int64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs sets the number of trees fitted concurrently. 0 uses all CPUs.
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// NewRandomForestClassifier creates a new RandomForestClassifier.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

func (rf *RandomForestClassifier) validate() error {
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", rf.nEstimators)
	}
	switch rf.maxFeatures {
	case "sqrt", "log2", "all":
	default:
		return errors.NewValidationError("max_features", "must be sqrt, log2 or all", rf.maxFeatures)
	}
	return nil
}

func (rf *RandomForestClassifier) featuresPerSplit(nFeatures int) int {
	var k int
	switch rf.maxFeatures {
	case "sqrt":
		k = int(math.Sqrt(float64(nFeatures)))
	case "log2":
		k = int(math.Log2(float64(nFeatures)))
	default:
		return 0
	}
	if k < 1 {
		k = 1
	}
	return k
}

// Fit fits nEstimators trees concurrently.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	if err := rf.validate(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, _ := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != nSamples {
		return errors.NewDimensionError("RandomForestClassifier.Fit", nSamples, yRows, 0)
	}

	rf.classes_ = distinctClasses(y)
	k := rf.featuresPerSplit(nFeatures)
	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)

	jobs := rf.nJobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	var g errgroup.Group
	g.SetLimit(jobs)
	for i := range trees {
		seed := rf.randomState + int64(i)
		g.Go(func() error {
			Xb, yb := rf.sample(X, y, seed)
			t := tree.NewDecisionTreeClassifier(
				tree.WithMaxDepth(rf.maxDepth),
				tree.WithMinSamplesSplit(rf.minSamplesSplit),
				tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
				tree.WithMaxFeatures(k),
				tree.WithRandomState(seed),
			)
			if err := t.Fit(Xb, yb); err != nil {
				return errors.Wrapf(err, "tree %d", i)
			}
			trees[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.NewModelError("RandomForestClassifier.Fit", "tree fitting failed", err)
	}
	rf.trees = trees

	rf.featureImportances_ = make([]float64, nFeatures)
	for _, t := range trees {
		for j, v := range t.GetFeatureImportances() {
			rf.featureImportances_[j] += v
		}
	}
	total := 0.0
	for _, v := range rf.featureImportances_ {
		total += v
	}
	if total > 0 {
		for j := range rf.featureImportances_ {
			rf.featureImportances_[j] /= total
		}
	}

	rf.state.SetDimensions(nFeatures, nSamples)
	rf.state.SetFitted()
	return nil
}

// sample draws a bootstrap sample, or copies the data when bootstrap is off.
func (rf *RandomForestClassifier) sample(X, y mat.Matrix, seed int64) (*mat.Dense, *mat.Dense) {
	n, p := X.Dims()
	if !rf.bootstrap {
		return mat.DenseCopyOf(X), mat.DenseCopyOf(y)
	}
	rng := rand.New(rand.NewSource(seed))
	Xb := mat.NewDense(n, p, nil)
	yb := mat.NewDense(n, 1, nil)
	row := make([]float64, p)
	for i := 0; i < n; i++ {
		src := rng.Intn(n)
		mat.Row(row, src, X)
		Xb.SetRow(i, row)
		yb.Set(i, 0, y.At(src, 0))
	}
	return Xb, yb
}

func distinctClasses(y mat.Matrix) []int {
	n, _ := y.Dims()
	seen := make(map[int]bool)
	var classes []int
	for i := 0; i < n; i++ {
		c := int(y.At(i, 0))
		if !seen[c] {
			seen[c] = true
			classes = append(classes, c)
		}
	}
	sort.Ints(classes)
	return classes
}

func (rf *RandomForestClassifier) checkPredict(X mat.Matrix, method string) error {
	if err := rf.state.RequireFitted("RandomForestClassifier", method); err != nil {
		return err
	}
	return rf.state.RequireFeatures("RandomForestClassifier."+method, X)
}

// PredictProba averages tree probabilities. A bootstrap sample can miss a
// class, so each tree's columns are mapped onto the forest's classes.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.checkPredict(X, "PredictProba"); err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	pos := make(map[int]int, len(rf.classes_))
	for k, c := range rf.classes_ {
		pos[c] = k
	}
	probas := make([]mat.Matrix, len(rf.trees))
	errs := make([]error, len(rf.trees))
	parallel.ParallelizeWithThreshold(len(rf.trees), parallelTreeThreshold, func(start, end int) {
		for t := start; t < end; t++ {
			probas[t], errs[t] = rf.trees[t].PredictProba(X)
		}
	})
	out := mat.NewDense(n, len(rf.classes_), nil)
	for ti, t := range rf.trees {
		if errs[ti] != nil {
			return nil, errs[ti]
		}
		for k, c := range t.Classes() {
			col := pos[c]
			for i := 0; i < n; i++ {
				out.Set(i, col, out.At(i, col)+probas[ti].At(i, k))
			}
		}
	}
	out.Scale(1/float64(len(rf.trees)), out)
	return out, nil
}

// Predict returns the class with the highest averaged probability.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	n, k := proba.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, float64(rf.classes_[best]))
	}
	return out, nil
}

// Score returns the mean accuracy on the given data.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0
	}
	n, _ := X.Dims()
	correct := 0
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n)
}

// Classes returns the sorted class labels seen during Fit.
func (rf *RandomForestClassifier) Classes() []int {
	return append([]int(nil), rf.classes_...)
}

// NFeatures returns the number of features seen during Fit.
func (rf *RandomForestClassifier) NFeatures() int {
	n, _ := rf.state.GetDimensions()
	return n
}

// NEstimators returns the number of fitted trees.
func (rf *RandomForestClassifier) NEstimators() int { return len(rf.trees) }

// GetFeatureImportances returns the mean impurity importances over trees.
func (rf *RandomForestClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), rf.featureImportances_...)
}

// GetParams returns the model hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

// SetParams sets the model hyperparameters.
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "n_estimators":
			rf.nEstimators, err = model.ParamInt(key, value)
		case "max_depth":
			rf.maxDepth, err = model.ParamInt(key, value)
		case "min_samples_split":
			rf.minSamplesSplit, err = model.ParamInt(key, value)
		case "min_samples_leaf":
			rf.minSamplesLeaf, err = model.ParamInt(key, value)
		case "max_features":
			rf.maxFeatures, err = model.ParamString(key, value)
		case "bootstrap":
			rf.bootstrap, err = model.ParamBool(key, value)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(key, value)
			rf.randomState = int64(seed)
		case "n_jobs":
			rf.nJobs, err = model.ParamInt(key, value)
		default:
			err = errors.NewValueError("RandomForestClassifier.SetParams", fmt.Sprintf("unknown parameter: %s", key))
		}
		if err != nil {
			return err
		}
	}
	return rf.validate()
}

type forestSnapshot struct {
	State              model.ModelState
	NEstimators        int
	MaxDepth           int
	MinSamplesSplit    int
	MinSamplesLeaf     int
	MaxFeatures        string
	Bootstrap          bool
	RandomState        int64
	NJobs              int
	Trees              []*tree.DecisionTreeClassifier
	Classes            []int
	FeatureImportances []float64
}

// GobEncode implements gob.GobEncoder.
func (rf *RandomForestClassifier) GobEncode() ([]byte, error) {
	return model.EncodeSnapshot(forestSnapshot{
		State:              rf.state.GetState(),
		NEstimators:        rf.nEstimators,
		MaxDepth:           rf.maxDepth,
		MinSamplesSplit:    rf.minSamplesSplit,
		MinSamplesLeaf:     rf.minSamplesLeaf,
		MaxFeatures:        rf.maxFeatures,
		Bootstrap:          rf.bootstrap,
		RandomState:        rf.randomState,
		NJobs:              rf.nJobs,
		Trees:              rf.trees,
		Classes:            rf.classes_,
		FeatureImportances: rf.featureImportances_,
	})
}

// GobDecode implements gob.GobDecoder.
func (rf *RandomForestClassifier) GobDecode(data []byte) error {
	var s forestSnapshot
	if err := model.DecodeSnapshot(data, &s); err != nil {
		return err
	}
	rf.state = model.NewStateManager()
	rf.state.SetState(s.State)
	rf.nEstimators = s.NEstimators
	rf.maxDepth = s.MaxDepth
	rf.minSamplesSplit = s.MinSamplesSplit
	rf.minSamplesLeaf = s.MinSamplesLeaf
	rf.maxFeatures = s.MaxFeatures
	rf.bootstrap = s.Bootstrap
	rf.randomState = s.RandomState
	rf.nJobs = s.NJobs
	rf.trees = s.Trees
	rf.classes_ = s.Classes
	rf.featureImportances_ = s.FeatureImportances
	return nil
}

var (
	_ model.Classifier      = (*RandomForestClassifier)(nil)
	_ model.FeatureImporter = (*RandomForestClassifier)(nil)
	_ model.ParameterGetter = (*RandomForestClassifier)(nil)
	_ model.ParameterSetter = (*RandomForestClassifier)(nil)
)
