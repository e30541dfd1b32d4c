package metrics

import (
	"math"
	"strings"
	"testing"

	"github.com/YuminosukeSato/insightml/pkg/errors"
)

func TestConfusionMatrix(t *testing.T) {
	yTrue := []int{0, 0, 1, 1, 2}
	yPred := []int{0, 1, 1, 1, 0}

	cm, err := ConfusionMatrix(yTrue, yPred, nil)
	if err != nil {
		t.Fatalf("ConfusionMatrix() error = %v", err)
	}
	want := [][]float64{
		{1, 1, 0},
		{0, 2, 0},
		{1, 0, 0},
	}
	for i := range want {
		for j := range want[i] {
			if cm.At(i, j) != want[i][j] {
				t.Errorf("cm[%d][%d] = %v, want %v", i, j, cm.At(i, j), want[i][j])
			}
		}
	}

	if _, err := ConfusionMatrix([]int{0}, []int{0, 1}, nil); err == nil {
		t.Error("expected dimension error")
	}
}

func TestClassificationReport(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	yTrue := []int{0, 0, 1, 1}
	yPred := []int{0, 1, 1, 1}
	r, err := NewClassificationReport(yTrue, yPred, nil, []string{"no", "yes"})
	if err != nil {
		t.Fatalf("NewClassificationReport() error = %v", err)
	}

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"precision no", r.Classes[0].Precision, 1.0},
		{"recall no", r.Classes[0].Recall, 0.5},
		{"f1 no", r.Classes[0].F1, 2.0 / 3.0},
		{"precision yes", r.Classes[1].Precision, 2.0 / 3.0},
		{"recall yes", r.Classes[1].Recall, 1.0},
		{"f1 yes", r.Classes[1].F1, 0.8},
		{"accuracy", r.Accuracy, 0.75},
		{"macro precision", r.MacroAvg.Precision, 5.0 / 6.0},
		{"weighted f1", r.WeightedAvg.F1, (2.0/3.0 + 0.8) / 2},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	text := r.String()
	for _, want := range []string{
		"   precision    recall  f1-score   support",
		"          no       1.00      0.50      0.67         2",
		"    accuracy                           0.75         4",
		"weighted avg       0.83      0.75      0.73         4",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing line %q:\n%s", want, text)
		}
	}
}

func TestClassificationReportUndefinedPrecision(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	r, err := NewClassificationReport([]int{0, 1}, []int{0, 0}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Classes[1].Precision != 0 || r.Classes[1].F1 != 0 {
		t.Errorf("ill-defined precision should be 0, got %+v", r.Classes[1])
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	var uw *errors.UndefinedMetricWarning
	if !errors.As(warnings[0], &uw) {
		t.Errorf("expected UndefinedMetricWarning, got %T", warnings[0])
	}
}

func TestCorrelationMatrix(t *testing.T) {
	cols := [][]float64{
		{1, 2, 3, 4},
		{2, 4, 6, 8},
		{4, 3, 2, 1},
		{5, 5, 5, 5},
		{1, math.NaN(), 3, 4},
	}
	corr, err := CorrelationMatrix(cols)
	if err != nil {
		t.Fatalf("CorrelationMatrix() error = %v", err)
	}

	tests := []struct {
		i, j int
		want float64
	}{
		{0, 1, 1},
		{0, 2, -1},
		{0, 3, 0},
		{3, 3, 1},
		{0, 4, 1},
	}
	for _, tt := range tests {
		if got := corr.At(tt.i, tt.j); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("corr[%d][%d] = %v, want %v", tt.i, tt.j, got, tt.want)
		}
	}
	k, _ := corr.Dims()
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			if v := corr.At(i, j); v < -1 || v > 1 {
				t.Errorf("corr[%d][%d] = %v out of range", i, j, v)
			}
		}
	}

	if _, err := CorrelationMatrix([][]float64{{1, 2}, {1}}); err == nil {
		t.Error("expected dimension error")
	}
}
