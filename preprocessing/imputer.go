package preprocessing

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/core/model"
	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// Median returns the median of the non-NaN values. ok is false when there are
// none.
func Median(values []float64) (median float64, ok bool) {
	observed := make(stats.Float64Data, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			observed = append(observed, v)
		}
	}
	if len(observed) == 0 {
		return 0, false
	}
	m, err := observed.Median()
	if err != nil {
		return 0, false
	}
	return m, true
}

// MedianImputer replaces NaN with the per-column median learned by Fit.
// Columns with no observed value are filled with 0 and flagged in Empty.
type MedianImputer struct {
	state *model.StateManager

	// Statistics は列ごとの中央値
	Statistics []float64
	// Empty marks columns that had no observed values during Fit.
	Empty []bool
}

// NewMedianImputer returns an unfitted imputer.
func NewMedianImputer() *MedianImputer {
	return &MedianImputer{state: model.NewStateManager()}
}

// Fit は列ごとの中央値を計算する
func (m *MedianImputer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("MedianImputer.Fit", "empty data", errors.ErrEmptyData)
	}
	m.Statistics = make([]float64, c)
	m.Empty = make([]bool, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			col[i] = X.At(i, j)
		}
		med, ok := Median(col)
		m.Statistics[j] = med
		m.Empty[j] = !ok
	}
	m.state.SetDimensions(c, r)
	m.state.SetFitted()
	return nil
}

// Transform returns a copy of X with NaN replaced.
func (m *MedianImputer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted("MedianImputer", "Transform"); err != nil {
		return nil, err
	}
	if err := m.state.RequireFeatures("MedianImputer.Transform", X); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	out := mat.DenseCopyOf(X)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(out.At(i, j)) {
				out.Set(i, j, m.Statistics[j])
			}
		}
	}
	return out, nil
}

// FitTransform はFitとTransformを同時に実行する
func (m *MedianImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

var _ model.Transformer = (*MedianImputer)(nil)
