package model

import (
	"bytes"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/pkg/errors"
)

func TestStateManager(t *testing.T) {
	s := NewStateManager()

	err := s.RequireFitted("DecisionTreeClassifier", "Predict")
	var nf *errors.NotFittedError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFittedError, got %v", err)
	}

	s.SetDimensions(3, 10)
	s.SetFitted()
	if err := s.RequireFitted("x", "Predict"); err != nil {
		t.Errorf("unexpected error %v", err)
	}

	if err := s.RequireFeatures("Predict", mat.NewDense(2, 3, nil)); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	err = s.RequireFeatures("Predict", mat.NewDense(2, 2, nil))
	var dim *errors.DimensionError
	if !errors.As(err, &dim) || dim.Expected != 3 || dim.Got != 2 {
		t.Errorf("expected DimensionError 3/2, got %v", err)
	}

	restored := NewStateManager()
	restored.SetState(s.GetState())
	if !restored.IsFitted() {
		t.Error("state should survive GetState/SetState")
	}

	s.Reset()
	if s.IsFitted() {
		t.Error("Reset should clear fitted state")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	type snapshot struct {
		Weights []float64
		Classes []int
	}
	in := snapshot{Weights: []float64{0.5, -1}, Classes: []int{0, 1}}

	data, err := EncodeSnapshot(in)
	if err != nil {
		t.Fatal(err)
	}
	var out snapshot
	if err := DecodeSnapshot(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Weights[1] != -1 || len(out.Classes) != 2 {
		t.Errorf("decoded %+v", out)
	}

	if err := LoadModelFromReader(&out, bytes.NewReader([]byte("garbage"))); err == nil {
		t.Error("expected decode error for garbage input")
	}
}
