package inference

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/core/model"
	"github.com/YuminosukeSato/insightml/core/parallel"
	"github.com/YuminosukeSato/insightml/pkg/errors"
)

// SHAPValues are per-row Shapley attributions of the probability of each
// row's predicted class.
type SHAPValues struct {
	Features []string
	// Values is (rows, features).
	Values *mat.Dense
	// Data holds the explained rows before scaling, for colouring plots.
	Data *mat.Dense
	// Output is f(x), the probability of the predicted class.
	Output []float64
	// Expected is the mean of the same class probability over the background.
	Expected []float64
	// Class is the predicted class column for each row.
	Class []int
	// MeanAbs is mean |φ| per feature.
	MeanAbs []float64
}

// Ranked returns feature indices ordered by descending MeanAbs.
func (s *SHAPValues) Ranked() []int {
	idx := make([]int, len(s.MeanAbs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return s.MeanAbs[idx[a]] > s.MeanAbs[idx[b]] })
	return idx
}

// background picks a deterministic sample of at most size rows.
func background(X *mat.Dense, size int, seed int64) *mat.Dense {
	n, d := X.Dims()
	if size <= 0 || size >= n {
		return mat.DenseCopyOf(X)
	}
	idx := rand.New(rand.NewSource(seed)).Perm(n)[:size]
	sort.Ints(idx)
	bg := mat.NewDense(size, d, nil)
	for i, r := range idx {
		bg.SetRow(i, X.RawRowView(r))
	}
	return bg
}

func argmax(row []float64) int {
	best := 0
	for j, v := range row {
		if v > row[best] {
			best = j
		}
	}
	return best
}

// sampleSHAP estimates Shapley values by sampling feature permutations.
// For each permutation and background row z, features are switched from z
// to x one at a time and each switch is credited with the change in f. The
// credits of one walk telescope to f(x) - f(z), so every row satisfies
// Σφ = f(x) - E_bg f exactly.
func sampleSHAP(ctx context.Context, m model.Classifier, X *mat.Dense, opts Options) (*SHAPValues, error) {
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return nil, errors.ErrEmptyData
	}
	bg := background(X, opts.BackgroundSize, opts.Seed)
	nb, _ := bg.Dims()

	bgProba, err := m.PredictProba(bg)
	if err != nil {
		return nil, errors.Wrap(err, "background probabilities")
	}
	rows := n
	if opts.MaxRows > 0 && rows > opts.MaxRows {
		rows = opts.MaxRows
	}
	explained := mat.DenseCopyOf(X.Slice(0, rows, 0, d))
	proba, err := m.PredictProba(explained)
	if err != nil {
		return nil, errors.Wrap(err, "row probabilities")
	}
	_, k := bgProba.Dims()
	expected := make([]float64, k)
	for i := 0; i < nb; i++ {
		for c := 0; c < k; c++ {
			expected[c] += bgProba.At(i, c) / float64(nb)
		}
	}

	perms := opts.Permutations
	if perms <= 0 {
		perms = 1
	}
	out := &SHAPValues{
		Values:   mat.NewDense(rows, d, nil),
		Output:   make([]float64, rows),
		Expected: make([]float64, rows),
		Class:    make([]int, rows),
		MeanAbs:  make([]float64, d),
	}
	for i := 0; i < rows; i++ {
		c := argmax(mat.Row(nil, i, proba))
		out.Class[i] = c
		out.Output[i] = proba.At(i, c)
		out.Expected[i] = expected[c]
	}

	err = parallel.ParallelizeErr(rows, opts.Workers, func(start, end int) error {
		batch := mat.NewDense(nb*d, d, nil)
		phi := make([]float64, d)
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(opts.Seed + int64(i) + 1))
			x := explained.RawRowView(i)
			c := out.Class[i]
			for j := range phi {
				phi[j] = 0
			}
			for p := 0; p < perms; p++ {
				order := rng.Perm(d)
				for b := 0; b < nb; b++ {
					v := append([]float64(nil), bg.RawRowView(b)...)
					for s, j := range order {
						v[j] = x[j]
						batch.SetRow(b*d+s, v)
					}
				}
				f, err := m.PredictProba(batch)
				if err != nil {
					return err
				}
				for b := 0; b < nb; b++ {
					prev := bgProba.At(b, c)
					for s, j := range order {
						cur := f.At(b*d+s, c)
						phi[j] += cur - prev
						prev = cur
					}
				}
			}
			scale := float64(perms * nb)
			for j, v := range phi {
				out.Values.Set(i, j, v/scale)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for j := 0; j < d; j++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += math.Abs(out.Values.At(i, j))
		}
		out.MeanAbs[j] = sum / float64(rows)
	}
	return out, nil
}
