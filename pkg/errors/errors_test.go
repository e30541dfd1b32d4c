package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "insightml: Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			err:     nil,
			wantMsg: "insightml: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 4, 3, 1)

	want := "insightml: Predict: dimension mismatch on axis 1 (features). Expected 4, got 3"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Fatal("Error should be castable to *DimensionError")
	}
	if dimErr.Expected != 4 || dimErr.Got != 3 {
		t.Errorf("unexpected fields: %+v", dimErr)
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("DecisionTreeClassifier", "Predict")

	want := "insightml: DecisionTreeClassifier: this model is not fitted yet. Call Fit() before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewValueError(t *testing.T) {
	err := NewValueError("SetParams", "max_depth: -1 (must be positive)")
	want := "insightml: SetParams: max_depth: -1 (must be positive)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var valErr *ValueError
	if !As(err, &valErr) {
		t.Error("Error should be castable to *ValueError")
	}
}

func TestNewMissingFeatureError(t *testing.T) {
	cols := []string{"Age", "Fees"}
	err := NewMissingFeatureError("Predict", cols)
	cols[0] = "mutated"

	want := "insightml: Predict: missing feature column(s): Age, Fees"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var mf *MissingFeatureError
	if !As(err, &mf) {
		t.Fatal("Error should be castable to *MissingFeatureError")
	}
	if len(mf.Columns) != 2 || mf.Columns[0] != "Age" {
		t.Errorf("Columns = %v, want [Age Fees]", mf.Columns)
	}
}

func TestResourceNotFound(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		target  error
		wantMsg string
	}{
		{
			name:    "named bundle",
			err:     NewBundleNotFoundError("churn"),
			target:  ErrBundleNotFound,
			wantMsg: `insightml: bundle "churn" not found`,
		},
		{
			name:    "empty model directory",
			err:     WithStack(ErrNoModels),
			target:  ErrNoModels,
			wantMsg: "insightml: no models found",
		},
		{
			name:    "empty dataset directory",
			err:     Wrap(ErrNoDatasets, "load page"),
			target:  ErrNoDatasets,
			wantMsg: "load page: insightml: no datasets found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.wantMsg)
			}
			if !Is(tt.err, tt.target) {
				t.Errorf("Is(err, %v) = false", tt.target)
			}
			if !Is(tt.err, ErrNotFound) {
				t.Error("Expected every not-found error to match ErrNotFound")
			}
			var rnf *ResourceNotFoundError
			if !As(tt.err, &rnf) {
				t.Error("Error should be castable to *ResourceNotFoundError")
			}
		})
	}

	if Is(NewBundleNotFoundError("x"), ErrNoModels) {
		t.Error("bundle-not-found must not match ErrNoModels")
	}
}

func TestCorruptBundleError(t *testing.T) {
	cause := fmt.Errorf("unexpected EOF")
	err := NewCorruptBundleError("models/a.bundle", cause)

	if !strings.Contains(err.Error(), "models/a.bundle") {
		t.Errorf("Error() = %q, want path", err.Error())
	}
	if !Is(err, cause) {
		t.Error("Expected CorruptBundleError to unwrap to its cause")
	}
}

func TestWarnings(t *testing.T) {
	conv := NewConvergenceWarning("LogisticRegression", 1000, "loss did not decrease")
	want := "LogisticRegression failed to converge after 1000 iterations: loss did not decrease"
	if conv.Error() != want {
		t.Errorf("Error() = %v, want %v", conv.Error(), want)
	}

	dc := NewDataConversionWarning("Age", "string", "float64", 2, "unparsable prefix")
	if !strings.Contains(dc.Error(), `column "Age": 2 value(s)`) {
		t.Errorf("unexpected message %q", dc.Error())
	}

	ex := NewExplanationUnavailableWarning("shap", fmt.Errorf("boom"))
	if ex.Error() != "shap unavailable: boom" {
		t.Errorf("unexpected message %q", ex.Error())
	}
	if NewExplanationUnavailableWarning("shap", nil).Reason != "unknown error" {
		t.Error("nil cause should produce a placeholder reason")
	}
}

func TestWarnRouting(t *testing.T) {
	defer SetZerologWarnFunc(nil)

	var handled, structured []error
	SetWarningHandler(func(w error) { handled = append(handled, w) })
	defer SetWarningHandler(func(w error) {})

	Warn(NewUndefinedMetricWarning("precision", "no predicted samples", 0))
	if len(handled) != 1 {
		t.Fatalf("fallback handler called %d times, want 1", len(handled))
	}

	SetZerologWarnFunc(func(w error) { structured = append(structured, w) })
	Warn(NewUndefinedMetricWarning("recall", "no true samples", 0))
	if len(structured) != 1 || len(handled) != 1 {
		t.Errorf("structured=%d handled=%d, want 1 and 1", len(structured), len(handled))
	}
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "Predict", 10, 5)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}

	expectedMsg := "in Predict: expected 10, got 5"
	if !strings.Contains(wrapped.Error(), expectedMsg) {
		t.Errorf("Expected wrapped error to contain %q", expectedMsg)
	}
}

func TestErrorChaining(t *testing.T) {
	err1 := fmt.Errorf("base error")
	err2 := Wrap(err1, "wrapped once")
	err3 := NewModelError("Operation", "failed", err2)

	if !strings.Contains(err3.Error(), "base error") {
		t.Error("Expected error chain to contain base error")
	}

	// スタックトレースの確認（詳細表示）
	formatted := fmt.Sprintf("%+v", err3)
	if !strings.Contains(formatted, "errors_test.go") {
		t.Error("Expected detailed error to contain stack trace")
	}
}

func TestNumericalHelpers(t *testing.T) {
	if got := SafeDivide(1, 0); got != 0 {
		t.Errorf("SafeDivide(1, 0) = %v, want 0", got)
	}
	if got := ClipValue(1.5, -1, 1); got != 1 {
		t.Errorf("ClipValue = %v, want 1", got)
	}
	if err := CheckNumericalStability("fit", []float64{1, 2}, 0); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	var nie *NumericalInstabilityError
	err := CheckNumericalStability("fit", []float64{1, math.NaN()}, 3)
	if !As(err, &nie) || nie.Iteration != 3 {
		t.Errorf("expected NumericalInstabilityError, got %v", err)
	}
}
