package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// CorrelationMatrix returns the Pearson correlation between every pair of
// columns. Rows where either value is NaN are skipped for that pair. Pairs
// with zero variance are 0 off the diagonal and 1 on it. Entries are clipped
// to [-1, 1].
func CorrelationMatrix(columns [][]float64) (*mat.SymDense, error) {
	k := len(columns)
	if k == 0 {
		return nil, errors.NewValueError("CorrelationMatrix", "no columns")
	}
	n := len(columns[0])
	for _, c := range columns {
		if len(c) != n {
			return nil, errors.NewDimensionError("CorrelationMatrix", n, len(c), 0)
		}
	}
	if n == 0 {
		return nil, errors.NewValueError("CorrelationMatrix", "empty columns")
	}

	corr := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		corr.SetSym(i, i, 1)
		for j := i + 1; j < k; j++ {
			corr.SetSym(i, j, Pearson(columns[i], columns[j]))
		}
	}
	return corr, nil
}

// Pearson returns the correlation of x and y over rows where both are
// present, or 0 when it is undefined.
func Pearson(x, y []float64) float64 {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 {
		return 0
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return errors.ClipValue(r, -1, 1)
}
