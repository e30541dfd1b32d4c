package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func vec(v []float64) *mat.VecDense {
	if len(v) == 0 {
		return nil
	}
	return mat.NewVecDense(len(v), v)
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{"all correct", []float64{0, 1, 2}, []float64{0, 1, 2}, 1, false},
		{"three of four", []float64{1, 1, 0, 0}, []float64{1, 0, 0, 0}, 0.75, false},
		{"length mismatch", []float64{1, 0}, []float64{1}, 0, true},
		{"nil input", nil, nil, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accuracy(vec(tt.yTrue), vec(tt.yPred))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Accuracy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Accuracy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAUC(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		score   []float64
		want    float64
		wantErr bool
	}{
		{"separable", []float64{0, 0, 1, 1}, []float64{0.1, 0.2, 0.7, 0.9}, 1, false},
		{"inverted", []float64{0, 0, 1, 1}, []float64{0.9, 0.7, 0.2, 0.1}, 0, false},
		{"one misordered pair", []float64{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}, 0.75, false},
		// tie between a positive and a negative counts as half a pair
		{"tied scores", []float64{0, 1, 0, 1}, []float64{0.2, 0.2, 0.1, 0.9}, 0.875, false},
		{"constant score", []float64{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5, false},
		{"single class is undefined", []float64{1, 1, 1}, []float64{0.2, 0.6, 0.9}, 0.5, false},
		{"labels not 0/1", []float64{0, 2, 1}, []float64{0.1, 0.5, 0.9}, 0, true},
		{"length mismatch", []float64{0, 1}, []float64{0.3}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUC(vec(tt.yTrue), vec(tt.score))
			if (err != nil) != tt.wantErr {
				t.Fatalf("AUC() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("AUC() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBinaryLogLoss(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		proba   []float64
		want    float64
		wantErr bool
	}{
		{"certain and right", []float64{1, 0}, []float64{1, 0}, 0, false},
		{"coin flip", []float64{1, 0, 1}, []float64{0.5, 0.5, 0.5}, math.Ln2, false},
		{"certain and wrong stays finite", []float64{1}, []float64{0}, -math.Log(1e-15), false},
		{"labels not 0/1", []float64{1, 3}, []float64{0.5, 0.5}, 0, true},
		{"length mismatch", []float64{1, 0}, []float64{0.5}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BinaryLogLoss(vec(tt.yTrue), vec(tt.proba))
			if (err != nil) != tt.wantErr {
				t.Fatalf("BinaryLogLoss() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("BinaryLogLoss() = %v, want %v", got, tt.want)
			}
		})
	}
}

func BenchmarkAUC(b *testing.B) {
	const n = 1000
	y := make([]float64, n)
	s := make([]float64, n)
	for i := range y {
		y[i] = float64(i % 2)
		s[i] = float64((i*37)%n) / n
	}
	yv, sv := vec(y), vec(s)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = AUC(yv, sv)
	}
}
