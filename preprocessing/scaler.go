package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/insightml/core/model"
	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// minScale 未満の標準偏差を持つ列は定数列とみなし、スケールを1にする
const minScale = 1e-8

// StandardScaler は各列を平均0・標準偏差1に揃える。ロジスティック回帰の
// 前処理としてバンドルに保存されるため、フィールドは公開している。
type StandardScaler struct {
	Mean  []float64 // 列ごとの平均 (WithMean=false なら0)
	Scale []float64 // 列ごとの母標準偏差、定数列は1

	WithMean bool
	WithStd  bool
}

func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{WithMean: withMean, WithStd: withStd}
}

// NewStandardScalerDefault centres and scales.
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

func (s *StandardScaler) IsFitted() bool {
	return len(s.Mean) > 0 && len(s.Mean) == len(s.Scale)
}

// Fit computes per-column statistics of X.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	mean := make([]float64, c)
	scale := make([]float64, c)
	col := make([]float64, r)
	for j := range mean {
		mat.Col(col, j, X)
		m, sd := stat.PopMeanStdDev(col, nil)
		scale[j] = 1
		if s.WithMean {
			mean[j] = m
		}
		if s.WithStd && sd >= minScale {
			scale[j] = sd
		}
	}
	s.Mean, s.Scale = mean, scale
	return nil
}

func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	return s.apply("Transform", X, func(v float64, j int) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	})
}

func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps standardised values back to the original units.
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	return s.apply("InverseTransform", X, func(v float64, j int) float64 {
		return v*s.Scale[j] + s.Mean[j]
	})
}

func (s *StandardScaler) apply(method string, X mat.Matrix, fn func(v float64, j int) float64) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", method)
	}
	r, c := X.Dims()
	if c != len(s.Mean) {
		return nil, errors.NewDimensionError("StandardScaler."+method, len(s.Mean), c, 1)
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 { return fn(v, j) }, X)
	return out, nil
}

func (s *StandardScaler) String() string {
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)", s.WithMean, s.WithStd, len(s.Mean))
}

var _ model.Transformer = (*StandardScaler)(nil)
