package linear_model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/core/model"
	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// LogisticRegression implements logistic regression for classification.
// Binary targets fit one sigmoid model; multiclass targets fit one-vs-rest
// models whose scores are combined with softmax.
// Compatible with scikit-learn's LogisticRegression.
type LogisticRegression struct {
	state *model.StateManager

	// Hyperparameters
	penalty      string  // "l2", "l1" or "none"
	C            float64 // Inverse regularization strength
	fitIntercept bool
	maxIter      int
	tol          float64
	randomState  int64

	// Model parameters
	coef_      [][]float64 // 1 x n_features for binary, n_classes x n_features otherwise
	intercept_ []float64
	classes_   []int
	nClasses_  int
	nFeatures_ int
	nIter_     []int
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		maxIter:      100,
		tol:          1e-4,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.penalty = penalty }
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.C = c }
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.fitIntercept = fit }
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.maxIter = maxIter }
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.tol = tol }
}

// WithLRRandomState seeds the weight initialisation
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.randomState = seed }
}

func (lr *LogisticRegression) validate() error {
	switch lr.penalty {
	case "l2", "l1", "none":
	default:
		return errors.NewValidationError("penalty", "must be l2, l1 or none", lr.penalty)
	}
	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", lr.maxIter)
	}
	return nil
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	lr.state.Reset()
	if err := lr.validate(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LogisticRegression.Fit", 1, yCols, 1)
	}

	lr.extractClasses(y)
	if lr.nClasses_ < 2 {
		return errors.NewValueError("LogisticRegression.Fit",
			fmt.Sprintf("needs samples of at least 2 classes in the data, but the data contains only one class: %d", lr.classes_[0]))
	}
	lr.nFeatures_ = nFeatures
	lr.initializeWeights(nFeatures)

	Xd := mat.DenseCopyOf(X)
	if lr.nClasses_ == 2 {
		if err := lr.fitBinary(Xd, indicator(y, lr.classes_[1]), 0); err != nil {
			return err
		}
	} else {
		for k, class := range lr.classes_ {
			if err := lr.fitBinary(Xd, indicator(y, class), k); err != nil {
				return err
			}
		}
	}

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()
	return nil
}

// extractClasses identifies unique class labels, sorted
func (lr *LogisticRegression) extractClasses(y mat.Matrix) {
	rows, _ := y.Dims()
	seen := make(map[int]bool)
	lr.classes_ = lr.classes_[:0]
	for i := 0; i < rows; i++ {
		label := int(y.At(i, 0))
		if !seen[label] {
			seen[label] = true
			lr.classes_ = append(lr.classes_, label)
		}
	}
	for i := 1; i < len(lr.classes_); i++ {
		for j := i; j > 0 && lr.classes_[j] < lr.classes_[j-1]; j-- {
			lr.classes_[j], lr.classes_[j-1] = lr.classes_[j-1], lr.classes_[j]
		}
	}
	lr.nClasses_ = len(lr.classes_)
}

func indicator(y mat.Matrix, class int) []float64 {
	n, _ := y.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if int(y.At(i, 0)) == class {
			out[i] = 1
		}
	}
	return out
}

// initializeWeights sets small seeded random weights
func (lr *LogisticRegression) initializeWeights(nFeatures int) {
	nModels := lr.nClasses_
	if nModels == 2 {
		nModels = 1
	}
	rng := rand.New(rand.NewSource(lr.randomState))
	lr.coef_ = make([][]float64, nModels)
	for k := range lr.coef_ {
		lr.coef_[k] = make([]float64, nFeatures)
		for j := range lr.coef_[k] {
			lr.coef_[k][j] = rng.NormFloat64() * 0.01
		}
	}
	lr.intercept_ = make([]float64, nModels)
	lr.nIter_ = make([]int, nModels)
}

// fitBinary runs full-batch gradient descent for model k against 0/1 targets.
// It stops with a NumericalInstabilityError once a weight becomes NaN or Inf.
func (lr *LogisticRegression) fitBinary(X *mat.Dense, target []float64, k int) error {
	nSamples, nFeatures := X.Dims()
	weights := lr.coef_[k]
	intercept := &lr.intercept_[k]
	grad := make([]float64, nFeatures)
	params := make([]float64, 0, nFeatures+1)
	lambda := 1.0 / lr.C

	converged := false
	for iter := 0; iter < lr.maxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		gradIntercept := 0.0
		for i := 0; i < nSamples; i++ {
			row := X.RawRowView(i)
			z := *intercept
			for j, w := range weights {
				z += row[j] * w
			}
			residual := sigmoid(z) - target[i]
			gradIntercept += residual
			for j := range grad {
				grad[j] += residual * row[j]
			}
		}
		for j := range grad {
			grad[j] /= float64(nSamples)
			switch lr.penalty {
			case "l2":
				grad[j] += lambda * weights[j]
			case "l1":
				grad[j] += lambda * sign(weights[j])
			}
		}
		gradIntercept /= float64(nSamples)

		learningRate := 1.0 / (1.0 + 0.1*float64(iter))
		for j := range weights {
			weights[j] -= learningRate * grad[j]
		}
		if lr.fitIntercept {
			*intercept -= learningRate * gradIntercept
		}
		lr.nIter_[k] = iter + 1
		params = append(append(params[:0], weights...), *intercept)
		if err := errors.CheckNumericalStability("LogisticRegression.Fit", params, iter); err != nil {
			return err
		}

		maxGrad := math.Abs(gradIntercept)
		for _, g := range grad {
			maxGrad = math.Max(maxGrad, math.Abs(g))
		}
		if maxGrad < lr.tol {
			converged = true
			break
		}
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.maxIter,
			"gradient descent did not converge; increase max_iter or scale the data"))
	}
	return nil
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func (lr *LogisticRegression) decision(X mat.Matrix, i, k int) float64 {
	z := lr.intercept_[k]
	for j := 0; j < lr.nFeatures_; j++ {
		z += X.At(i, j) * lr.coef_[k][j]
	}
	return z
}

func (lr *LogisticRegression) checkPredict(X mat.Matrix, method string) error {
	if err := lr.state.RequireFitted("LogisticRegression", method); err != nil {
		return err
	}
	return lr.state.RequireFeatures("LogisticRegression."+method, X)
}

// Predict returns the class with the highest probability
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	nSamples, _ := X.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		best := 0
		for k := 1; k < lr.nClasses_; k++ {
			if probas.At(i, k) > probas.At(i, best) {
				best = k
			}
		}
		predictions.Set(i, 0, float64(lr.classes_[best]))
	}
	return predictions, nil
}

// PredictProba returns probability estimates for each class
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.checkPredict(X, "PredictProba"); err != nil {
		return nil, err
	}
	nSamples, _ := X.Dims()
	probas := mat.NewDense(nSamples, lr.nClasses_, nil)

	if lr.nClasses_ == 2 {
		for i := 0; i < nSamples; i++ {
			p1 := sigmoid(lr.decision(X, i, 0))
			probas.Set(i, 0, 1.0-p1)
			probas.Set(i, 1, p1)
		}
		return probas, nil
	}

	scores := make([]float64, lr.nClasses_)
	for i := 0; i < nSamples; i++ {
		maxScore := math.Inf(-1)
		for k := range scores {
			scores[k] = lr.decision(X, i, k)
			maxScore = math.Max(maxScore, scores[k])
		}
		sum := 0.0
		for k := range scores {
			scores[k] = errors.StabilizeExp(scores[k] - maxScore)
			sum += scores[k]
		}
		for k := range scores {
			probas.Set(i, k, scores[k]/sum)
		}
	}
	return probas, nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0.0
	}
	nSamples, _ := X.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples)
}

// Classes returns the sorted class labels seen during Fit.
func (lr *LogisticRegression) Classes() []int {
	return append([]int(nil), lr.classes_...)
}

// NFeatures returns the number of features seen during Fit.
func (lr *LogisticRegression) NFeatures() int { return lr.nFeatures_ }

// Coefficients returns a copy of the fitted weights, one row per model.
func (lr *LogisticRegression) Coefficients() [][]float64 {
	out := make([][]float64, len(lr.coef_))
	for k, row := range lr.coef_ {
		out[k] = append([]float64(nil), row...)
	}
	return out
}

// NIter returns the number of iterations run per model.
func (lr *LogisticRegression) NIter() []int {
	return append([]int(nil), lr.nIter_...)
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
		"random_state":  lr.randomState,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "penalty":
			lr.penalty, err = model.ParamString(key, value)
		case "C":
			lr.C, err = model.ParamFloat(key, value)
		case "fit_intercept":
			lr.fitIntercept, err = model.ParamBool(key, value)
		case "max_iter":
			lr.maxIter, err = model.ParamInt(key, value)
		case "tol":
			lr.tol, err = model.ParamFloat(key, value)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(key, value)
			lr.randomState = int64(seed)
		default:
			err = errors.NewValueError("LogisticRegression.SetParams", fmt.Sprintf("unknown parameter: %s", key))
		}
		if err != nil {
			return err
		}
	}
	return lr.validate()
}

type logisticSnapshot struct {
	State        model.ModelState
	Penalty      string
	C            float64
	FitIntercept bool
	MaxIter      int
	Tol          float64
	RandomState  int64
	Coef         [][]float64
	Intercept    []float64
	Classes      []int
	NFeatures    int
	NIter        []int
}

// GobEncode implements gob.GobEncoder.
func (lr *LogisticRegression) GobEncode() ([]byte, error) {
	return model.EncodeSnapshot(logisticSnapshot{
		State:        lr.state.GetState(),
		Penalty:      lr.penalty,
		C:            lr.C,
		FitIntercept: lr.fitIntercept,
		MaxIter:      lr.maxIter,
		Tol:          lr.tol,
		RandomState:  lr.randomState,
		Coef:         lr.coef_,
		Intercept:    lr.intercept_,
		Classes:      lr.classes_,
		NFeatures:    lr.nFeatures_,
		NIter:        lr.nIter_,
	})
}

// GobDecode implements gob.GobDecoder.
func (lr *LogisticRegression) GobDecode(data []byte) error {
	var s logisticSnapshot
	if err := model.DecodeSnapshot(data, &s); err != nil {
		return err
	}
	lr.state = model.NewStateManager()
	lr.state.SetState(s.State)
	lr.penalty = s.Penalty
	lr.C = s.C
	lr.fitIntercept = s.FitIntercept
	lr.maxIter = s.MaxIter
	lr.tol = s.Tol
	lr.randomState = s.RandomState
	lr.coef_ = s.Coef
	lr.intercept_ = s.Intercept
	lr.classes_ = s.Classes
	lr.nClasses_ = len(s.Classes)
	lr.nFeatures_ = s.NFeatures
	lr.nIter_ = s.NIter
	return nil
}

// sigmoid computes the sigmoid function
func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + errors.StabilizeExp(-z))
}

var (
	_ model.Classifier      = (*LogisticRegression)(nil)
	_ model.ParameterGetter = (*LogisticRegression)(nil)
	_ model.ParameterSetter = (*LogisticRegression)(nil)
)
