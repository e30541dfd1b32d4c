// Package tree implements a CART decision tree classifier compatible with
// scikit-learn's DecisionTreeClassifier.
package tree

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/core/model"
	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// Node is one node of a fitted tree. Nodes are stored in a flat slice;
// Left and Right index into it. Value holds class fractions at the node.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Leaf      bool
	Value     []float64
	NSamples  int
	Impurity  float64
}

// DecisionTreeClassifier is a CART classifier using gini or entropy impurity.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string
	maxDepth        int // -1 for unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 for all features
	randomState     int64

	// Fitted attributes
	classes_            []int
	nClasses_           int
	nodes               []Node
	featureImportances_ []float64
	depth               int
	nLeaves             int
}

// Option is a functional option for DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the impurity criterion: "gini" or "entropy".
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth limits the depth of the tree. -1 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many randomly chosen features are considered at
// each split. 0 considers every feature.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = n }
}

// WithRandomState seeds feature subsampling.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) { dt.randomState = seed }
}

// NewDecisionTreeClassifier creates a new DecisionTreeClassifier.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

func (dt *DecisionTreeClassifier) validate() error {
	if dt.criterion != "gini" && dt.criterion != "entropy" {
		return errors.NewValidationError("criterion", "must be gini or entropy", dt.criterion)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.minSamplesLeaf)
	}
	return nil
}

// Fit builds the tree from X and class labels y (n, 1).
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	if err := dt.validate(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", 1, yCols, 1)
	}

	var labels []int
	dt.classes_, labels = encodeClasses(y)
	dt.nClasses_ = len(dt.classes_)

	b := &builder{
		dt:          dt,
		X:           mat.DenseCopyOf(X),
		labels:      labels,
		nFeatures:   nFeatures,
		importances: make([]float64, nFeatures),
		rng:         rand.New(rand.NewSource(dt.randomState)),
	}
	idx := make([]int, nSamples)
	for i := range idx {
		idx[i] = i
	}
	dt.nodes = dt.nodes[:0]
	dt.depth, dt.nLeaves = 0, 0
	b.build(idx, 0)

	total := 0.0
	for _, v := range b.importances {
		total += v
	}
	dt.featureImportances_ = make([]float64, nFeatures)
	if total > 0 {
		for j, v := range b.importances {
			dt.featureImportances_[j] = v / total
		}
	}

	dt.state.SetDimensions(nFeatures, nSamples)
	dt.state.SetFitted()
	return nil
}

// encodeClasses returns the sorted distinct labels and each row's index into them.
func encodeClasses(y mat.Matrix) ([]int, []int) {
	n, _ := y.Dims()
	seen := make(map[int]bool)
	raw := make([]int, n)
	for i := 0; i < n; i++ {
		raw[i] = int(y.At(i, 0))
		seen[raw[i]] = true
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	pos := make(map[int]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}
	labels := make([]int, n)
	for i, c := range raw {
		labels[i] = pos[c]
	}
	return classes, labels
}

type builder struct {
	dt          *DecisionTreeClassifier
	X           *mat.Dense
	labels      []int
	nFeatures   int
	importances []float64
	rng         *rand.Rand
}

type split struct {
	feature   int
	threshold float64
	impurity  float64 // weighted child impurity
	pos       int     // number of samples going left
}

// build appends the subtree for idx and returns its node index.
func (b *builder) build(idx []int, depth int) int {
	dt := b.dt
	counts := make([]float64, dt.nClasses_)
	for _, i := range idx {
		counts[b.labels[i]]++
	}
	n := len(idx)
	impurity := dt.impurity(counts, float64(n))

	value := make([]float64, len(counts))
	for k, c := range counts {
		value[k] = c / float64(n)
	}
	nodeID := len(dt.nodes)
	dt.nodes = append(dt.nodes, Node{Leaf: true, Value: value, NSamples: n, Impurity: impurity, Left: -1, Right: -1})
	if depth > dt.depth {
		dt.depth = depth
	}

	if impurity <= 1e-12 ||
		(dt.maxDepth >= 0 && depth >= dt.maxDepth) ||
		n < dt.minSamplesSplit ||
		n < 2*dt.minSamplesLeaf {
		dt.nLeaves++
		return nodeID
	}

	best, ok := b.bestSplit(idx)
	if !ok {
		dt.nLeaves++
		return nodeID
	}

	// Partition idx in place by the chosen split.
	sort.SliceStable(idx, func(a, c int) bool {
		return b.X.At(idx[a], best.feature) < b.X.At(idx[c], best.feature)
	})
	left := append([]int(nil), idx[:best.pos]...)
	right := append([]int(nil), idx[best.pos:]...)

	b.importances[best.feature] += float64(n)*impurity - float64(n)*best.impurity

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	dt.nodes[nodeID] = Node{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      l,
		Right:     r,
		Value:     value,
		NSamples:  n,
		Impurity:  impurity,
	}
	return nodeID
}

func (b *builder) candidateFeatures() []int {
	features := make([]int, b.nFeatures)
	for j := range features {
		features[j] = j
	}
	k := b.dt.maxFeatures
	if k <= 0 || k >= b.nFeatures {
		return features
	}
	b.rng.Shuffle(len(features), func(i, j int) { features[i], features[j] = features[j], features[i] })
	features = features[:k]
	sort.Ints(features)
	return features
}

func (b *builder) bestSplit(idx []int) (split, bool) {
	dt := b.dt
	n := len(idx)
	best := split{impurity: math.Inf(1)}
	found := false

	sorted := make([]int, n)
	left := make([]float64, dt.nClasses_)
	right := make([]float64, dt.nClasses_)

	for _, f := range b.candidateFeatures() {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.X.At(sorted[a], f) < b.X.At(sorted[c], f)
		})
		for k := range left {
			left[k], right[k] = 0, 0
		}
		for _, i := range sorted {
			right[b.labels[i]]++
		}

		for pos := 1; pos < n; pos++ {
			moved := b.labels[sorted[pos-1]]
			left[moved]++
			right[moved]--

			lo, hi := b.X.At(sorted[pos-1], f), b.X.At(sorted[pos], f)
			if hi <= lo || pos < dt.minSamplesLeaf || n-pos < dt.minSamplesLeaf {
				continue
			}
			nl, nr := float64(pos), float64(n-pos)
			weighted := (nl*dt.impurity(left, nl) + nr*dt.impurity(right, nr)) / float64(n)
			if weighted < best.impurity-1e-12 {
				best = split{feature: f, threshold: lo + (hi-lo)/2, impurity: weighted, pos: pos}
				found = true
			}
		}
	}
	return best, found
}

func (dt *DecisionTreeClassifier) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	if dt.criterion == "entropy" {
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / n
				h -= p * math.Log2(p)
			}
		}
		return h
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

func (dt *DecisionTreeClassifier) leaf(X mat.Matrix, i int) *Node {
	node := &dt.nodes[0]
	for !node.Leaf {
		if X.At(i, node.Feature) <= node.Threshold {
			node = &dt.nodes[node.Left]
		} else {
			node = &dt.nodes[node.Right]
		}
	}
	return node
}

func (dt *DecisionTreeClassifier) checkPredict(X mat.Matrix, method string) error {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", method); err != nil {
		return err
	}
	return dt.state.RequireFeatures("DecisionTreeClassifier."+method, X)
}

// Predict returns the majority class of the leaf each row falls into.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkPredict(X, "Predict"); err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, float64(dt.classes_[argmax(dt.leaf(X, i).Value)]))
	}
	return out, nil
}

// PredictProba returns the class fractions of the leaf each row falls into.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkPredict(X, "PredictProba"); err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	out := mat.NewDense(n, dt.nClasses_, nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, dt.leaf(X, i).Value)
	}
	return out, nil
}

// Score returns the mean accuracy on the given data.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
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
func (dt *DecisionTreeClassifier) Classes() []int {
	return append([]int(nil), dt.classes_...)
}

// NFeatures returns the number of features seen during Fit.
func (dt *DecisionTreeClassifier) NFeatures() int {
	n, _ := dt.state.GetDimensions()
	return n
}

// GetFeatureImportances returns normalised impurity decreases per feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.featureImportances_...)
}

// GetDepth returns the depth of the fitted tree. A single leaf has depth 0.
func (dt *DecisionTreeClassifier) GetDepth() int { return dt.depth }

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int { return dt.nLeaves }

// GetParams returns the model hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams sets the model hyperparameters.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "criterion":
			dt.criterion, err = model.ParamString(key, value)
		case "max_depth":
			dt.maxDepth, err = model.ParamInt(key, value)
		case "min_samples_split":
			dt.minSamplesSplit, err = model.ParamInt(key, value)
		case "min_samples_leaf":
			dt.minSamplesLeaf, err = model.ParamInt(key, value)
		case "max_features":
			dt.maxFeatures, err = model.ParamInt(key, value)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(key, value)
			dt.randomState = int64(seed)
		default:
			err = errors.NewValueError("DecisionTreeClassifier.SetParams", fmt.Sprintf("unknown parameter: %s", key))
		}
		if err != nil {
			return err
		}
	}
	return dt.validate()
}

func argmax(v []float64) int {
	best := 0
	for k := 1; k < len(v); k++ {
		if v[k] > v[best] {
			best = k
		}
	}
	return best
}

var (
	_ model.Classifier      = (*DecisionTreeClassifier)(nil)
	_ model.FeatureImporter = (*DecisionTreeClassifier)(nil)
	_ model.ParameterGetter = (*DecisionTreeClassifier)(nil)
	_ model.ParameterSetter = (*DecisionTreeClassifier)(nil)
)

type treeSnapshot struct {
	State              model.ModelState
	Params             treeParams
	Classes            []int
	Nodes              []Node
	FeatureImportances []float64
	Depth              int
	NLeaves            int
}

type treeParams struct {
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	RandomState     int64
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeClassifier) GobEncode() ([]byte, error) {
	return model.EncodeSnapshot(treeSnapshot{
		State: dt.state.GetState(),
		Params: treeParams{
			Criterion:       dt.criterion,
			MaxDepth:        dt.maxDepth,
			MinSamplesSplit: dt.minSamplesSplit,
			MinSamplesLeaf:  dt.minSamplesLeaf,
			MaxFeatures:     dt.maxFeatures,
			RandomState:     dt.randomState,
		},
		Classes:            dt.classes_,
		Nodes:              dt.nodes,
		FeatureImportances: dt.featureImportances_,
		Depth:              dt.depth,
		NLeaves:            dt.nLeaves,
	})
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeClassifier) GobDecode(data []byte) error {
	var s treeSnapshot
	if err := model.DecodeSnapshot(data, &s); err != nil {
		return err
	}
	dt.state = model.NewStateManager()
	dt.state.SetState(s.State)
	dt.criterion = s.Params.Criterion
	dt.maxDepth = s.Params.MaxDepth
	dt.minSamplesSplit = s.Params.MinSamplesSplit
	dt.minSamplesLeaf = s.Params.MinSamplesLeaf
	dt.maxFeatures = s.Params.MaxFeatures
	dt.randomState = s.Params.RandomState
	dt.classes_ = s.Classes
	dt.nClasses_ = len(s.Classes)
	dt.nodes = s.Nodes
	dt.featureImportances_ = s.FeatureImportances
	dt.depth = s.Depth
	dt.nLeaves = s.NLeaves
	return nil
}
