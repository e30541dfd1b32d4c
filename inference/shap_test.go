package inference

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// additive is a two-class model whose class-1 probability is linear in x.
type additive struct{ w []float64 }

func (a *additive) Fit(X, y mat.Matrix) error { return nil }

func (a *additive) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, d := X.Dims()
	out := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p := 0.5
		for j := 0; j < d; j++ {
			p += a.w[j] * X.At(i, j)
		}
		out.Set(i, 0, 1-p)
		out.Set(i, 1, p)
	}
	return out, nil
}

func (a *additive) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, _ := a.PredictProba(X)
	n, _ := X.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if proba.At(i, 1) > proba.At(i, 0) {
			out.Set(i, 0, 1)
		}
	}
	return out, nil
}

func (a *additive) Classes() []int                { return []int{0, 1} }
func (a *additive) Score(X, y mat.Matrix) float64 { return 0 }
func (a *additive) NFeatures() int                { return len(a.w) }

func TestSampleSHAPAdditiveModel(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		-1, 0,
		0, 1,
		1, 2,
		2, 3,
	})
	m := &additive{w: []float64{0.1, -0.05}}
	// 背景は全行
	opts := Options{BackgroundSize: 0, Permutations: 3, Seed: 7, Workers: 2}

	got, err := sampleSHAP(context.Background(), m, X, opts)
	if err != nil {
		t.Fatalf("sampleSHAP: %v", err)
	}
	means := []float64{0.5, 1.5}
	for i := 0; i < 4; i++ {
		sign := 1.0
		if got.Class[i] == 0 {
			sign = -1
		}
		for j := 0; j < 2; j++ {
			want := sign * m.w[j] * (X.At(i, j) - means[j])
			if math.Abs(got.Values.At(i, j)-want) > 1e-12 {
				t.Errorf("phi[%d][%d] = %v, want %v", i, j, got.Values.At(i, j), want)
			}
		}
	}
}

func TestSampleSHAPEfficiency(t *testing.T) {
	n, d := 30, 3
	X := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			X.Set(i, j, math.Sin(float64(i*(j+1)))*2)
		}
	}
	m := &additive{w: []float64{0.08, -0.04, 0.02}}
	opts := Options{MaxRows: 12, BackgroundSize: 10, Permutations: 2, Seed: 1}

	got, err := sampleSHAP(context.Background(), m, X, opts)
	if err != nil {
		t.Fatalf("sampleSHAP: %v", err)
	}
	rows, _ := got.Values.Dims()
	if rows != 12 {
		t.Fatalf("rows = %d, want 12", rows)
	}
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < d; j++ {
			sum += got.Values.At(i, j)
		}
		if diff := sum - (got.Output[i] - got.Expected[i]); math.Abs(diff) > 1e-9 {
			t.Errorf("row %d: sum(phi) - (f(x) - E f) = %v", i, diff)
		}
	}
	for j, v := range got.MeanAbs {
		if v < 0 {
			t.Errorf("MeanAbs[%d] = %v", j, v)
		}
	}
}

func TestSampleSHAPCancelled(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{0, 1, 1, 0, 1, 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sampleSHAP(ctx, &additive{w: []float64{0.1, 0.1}}, X, DefaultOptions())
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestBackgroundIsDeterministic(t *testing.T) {
	X := mat.NewDense(50, 1, nil)
	for i := 0; i < 50; i++ {
		X.Set(i, 0, float64(i))
	}
	a := background(X, 10, 3)
	b := background(X, 10, 3)
	if !mat.Equal(a, b) {
		t.Error("same seed must select the same rows")
	}
	if r, _ := background(X, 100, 3).Dims(); r != 50 {
		t.Errorf("rows = %d, want 50", r)
	}
}
